package ingest

import "strings"

// ChunkWords splits text into word-count chunks. Chunk i starts at word
// offset i*(size-overlap) and holds up to size words; the last chunk may be
// shorter. Whitespace is normalized, so re-chunking the same text with the
// same parameters is stable.
func ChunkWords(text string, size, overlap int) []string {
	if size < 1 || overlap < 0 || overlap >= size {
		return nil
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := size - overlap

	var chunks []string
	for start := 0; start < len(words); start += step {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}

	return chunks
}
