package engine

import (
	"strings"

	"github.com/stackrag/stackrag/internal/models"
)

// nodesByType flattens the graph into a type-keyed lookup. When a type
// appears more than once the later node wins; execution never consults edges.
func nodesByType(wf *models.Workflow) map[string]models.Node {
	byType := make(map[string]models.Node, len(wf.Nodes))
	for _, node := range wf.Nodes {
		byType[node.Type] = node
	}
	return byType
}

// llmSettings is the per-request view of the llm node's configuration. It is
// re-extracted on every call; credentials are never cached across requests.
type llmSettings struct {
	APIKey     string
	Model      string
	WebSearch  bool
	SerpAPIKey string
}

func llmSettingsFrom(node models.Node) llmSettings {
	return llmSettings{
		APIKey:     stringField(node.Data, "apiKey"),
		Model:      stringField(node.Data, "model"),
		WebSearch:  boolField(node.Data, "webSearch"),
		SerpAPIKey: stringField(node.Data, "serpApi"),
	}
}

// kbSettings is the per-request view of the knowledge-base node's
// configuration with explicit defaults.
type kbSettings struct {
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
	TopK           int
}

func kbSettingsFrom(node models.Node, defaultModel string) kbSettings {
	s := kbSettings{
		EmbeddingModel: stringField(node.Data, "embeddingModel"),
		ChunkSize:      intField(node.Data, "chunkSize"),
		ChunkOverlap:   intField(node.Data, "chunkOverlap"),
		TopK:           intField(node.Data, "topK"),
	}
	if s.EmbeddingModel == "" {
		s.EmbeddingModel = defaultModel
	}
	if s.TopK <= 0 {
		s.TopK = 3
	}
	return s
}

// validateChunking rejects chunking parameters that could never produce a
// chunk, before any document is touched. Zero values select defaults and
// are always valid.
func (s kbSettings) validateChunking() error {
	if s.ChunkSize < 0 {
		return &ValidationError{Field: "knowledge-base.chunkSize", Message: "chunk size must be positive"}
	}
	if s.ChunkOverlap < 0 {
		return &ValidationError{Field: "knowledge-base.chunkOverlap", Message: "chunk overlap must be non-negative"}
	}
	if s.ChunkSize > 0 && s.ChunkOverlap >= s.ChunkSize {
		return &ValidationError{Field: "knowledge-base.chunkOverlap", Message: "chunk overlap must be less than chunk size"}
	}
	return nil
}

// documentRecords resolves the workflow's attached documents. The explicit
// data.documents list wins; otherwise any data key prefixed "knowledge-base"
// is scanned for document records.
func documentRecords(wf *models.Workflow) []models.DocumentRecord {
	if wf.Data == nil {
		return nil
	}

	if docs, ok := wf.Data["documents"]; ok {
		return decodeRecords(docs)
	}

	var records []models.DocumentRecord
	for key, value := range wf.Data {
		if strings.HasPrefix(key, models.NodeKnowledgeBase) {
			records = append(records, decodeRecords(value)...)
		}
	}
	return records
}

func decodeRecords(value interface{}) []models.DocumentRecord {
	switch v := value.(type) {
	case []interface{}:
		var records []models.DocumentRecord
		for _, item := range v {
			records = append(records, decodeRecords(item)...)
		}
		return records
	case map[string]interface{}:
		rec := models.DocumentRecord{
			ID:       stringField(v, "id"),
			FileName: stringField(v, "file_name"),
			Path:     stringField(v, "path"),
		}
		if rec.Path == "" {
			return nil
		}
		return []models.DocumentRecord{rec}
	default:
		return nil
	}
}

func stringField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}

func boolField(data map[string]interface{}, key string) bool {
	if data == nil {
		return false
	}
	if b, ok := data[key].(bool); ok {
		return b
	}
	return false
}

func intField(data map[string]interface{}, key string) int {
	if data == nil {
		return 0
	}
	switch v := data[key].(type) {
	case int:
		return v
	case float64: // JSON numbers decode to float64
		return int(v)
	default:
		return 0
	}
}
