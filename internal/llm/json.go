package llm

import (
	"fmt"
	"strings"
)

// ExtractJSON pulls the JSON payload out of an LLM response, stripping
// markdown code fences if the model wrapped its answer in one. Validation of
// the payload itself is the caller's job.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	// Strip markdown code fences
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		endIdx := len(lines) - 1
		for i := len(lines) - 1; i > 0; i-- {
			if strings.TrimSpace(lines[i]) == "```" {
				endIdx = i
				break
			}
		}
		text = strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
	}

	if !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		// Some models preface the JSON with prose. Take everything from the
		// first brace onward.
		if i := strings.IndexAny(text, "{["); i >= 0 {
			text = text[i:]
		} else {
			return nil, fmt.Errorf("no JSON object in response")
		}
	}

	return []byte(text), nil
}
