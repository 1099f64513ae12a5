package judge

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// cleanJSON strips the decoration models wrap around JSON payloads: code
// fences, leading prose, trailing commentary. It returns the outermost
// object slice, or the trimmed input when no braces are found.
func cleanJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// parseResponse decodes the capability's text output into a Response.
// Anything undecodable is reported as ErrMalformed so the caller can issue
// the clarifying retry.
func parseResponse(content string) (Response, error) {
	var resp Response
	if err := json.Unmarshal([]byte(cleanJSON(content)), &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if resp.Action == "" {
		return Response{}, fmt.Errorf("%w: missing action", ErrMalformed)
	}
	return resp, nil
}
