package models

// Node types the executor understands. The set is open: unknown types are
// carried through the graph untouched.
const (
	NodeUserInput     = "user-input"
	NodeKnowledgeBase = "knowledge-base"
	NodeLLM           = "llm"
	NodeOutput        = "output"
)

type Node struct {
	ID   string                 `json:"id"`
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"nodeData"`
}

type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Workflow is the persisted graph for one stack. Edges are stored but not
// consulted during execution; the executor flattens nodes by type.
type Workflow struct {
	ID      string                 `json:"id"`
	StackID string                 `json:"stack_id"`
	Nodes   []Node                 `json:"nodes"`
	Edges   []Edge                 `json:"edges"`
	Data    map[string]interface{} `json:"data"`
}

// DocumentRecord describes an uploaded file attached to a workflow under
// Data["documents"].
type DocumentRecord struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
	Path     string `json:"path"`
}

type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type ContextUsed struct {
	KnowledgeBase []string `json:"knowledge_base"`
	WebSearch     []string `json:"web_search"`
}

// ExecutionResult is the transient envelope returned by a build or chat run.
type ExecutionResult struct {
	Answer      string      `json:"answer"`
	ContextUsed ContextUsed `json:"context_used"`
}
