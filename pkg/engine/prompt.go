package engine

import "fmt"

// BuildPrompt renders the final prompt deterministically. The output
// instruction suffix is omitted entirely when the graph carries none.
func BuildPrompt(combinedContext, outputInstruction, userQuery string) string {
	suffix := ""
	if outputInstruction != "" {
		suffix = "\n\nOutput: " + outputInstruction
	}
	return fmt.Sprintf("Context:\n%s%s\n\nUser Query: %s\nAnswer:", combinedContext, suffix, userQuery)
}
