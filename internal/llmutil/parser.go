// File: internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedObject extracts a JSON object wrapped in a markdown code fence.
// \x60 is a backtick; raw strings cannot contain one.
var fencedObject = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// ExtractJSONObject locates the JSON object inside a model response that may be
// fenced in markdown or surrounded by conversational text.
func ExtractJSONObject(response string) (string, error) {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		if m := fencedObject.FindStringSubmatch(response); len(m) > 1 {
			return m[1], nil
		}
	}
	if strings.HasPrefix(response, "{") {
		return response, nil
	}
	first := strings.Index(response, "{")
	last := strings.LastIndex(response, "}")
	if first == -1 || last <= first {
		return "", fmt.Errorf("no JSON object found in response: %s", truncate(response, 200))
	}
	return response[first : last+1], nil
}

// ParseJSONResponse decodes the JSON object embedded in a model response into T.
func ParseJSONResponse[T any](response string) (*T, error) {
	raw, err := ExtractJSONObject(response)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.UnmarshalFromString(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncate(raw, 500))
	}
	return &out, nil
}

// CleanText strips code fences and surrounding quotes from a prose response.
func CleanText(response string) string {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl != -1 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.Trim(strings.TrimSpace(s), `"`)
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
