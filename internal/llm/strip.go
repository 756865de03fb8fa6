package llm

import "strings"

// StripMarkdownFence removes ```json or ``` wrappers from model output.
// Hosted models sometimes fence JSON despite being told not to.
func StripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```JSON") {
		s = strings.TrimPrefix(s, "```JSON")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}

	if strings.HasSuffix(s, "```") {
		s = strings.TrimSuffix(s, "```")
	}

	return strings.TrimSpace(s)
}
