package semantic

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONArray unmarshals the first JSON array found in text into out.
// Models often wrap JSON in prose or markdown fences, so the extraction is
// permissive: everything from the first '[' through the last ']' is treated
// as the candidate array.
func ExtractJSONArray(text string, out any) error {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return fmt.Errorf("semantic: no JSON array in response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("semantic: parse JSON array: %w", err)
	}
	return nil
}
