package prompt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// Completion is the decoded payload of an analysis_complete call or a final
// synthesis text response.
type Completion struct {
	RootCause          string            `json:"rootCause"`
	Confidence         report.Confidence `json:"confidence"`
	Reasoning          string            `json:"reasoning"`
	Evidence           []string          `json:"evidence,omitempty"`
	Recommendations    []string          `json:"recommendations,omitempty"`
	AdditionalFindings json.RawMessage   `json:"additionalFindings,omitempty"`
}

// Checkpoint is the decoded payload of a checkpoint_complete call.
type Checkpoint struct {
	Facts       []string `json:"facts"`
	Hypotheses  []string `json:"hypotheses,omitempty"`
	Evidence    []string `json:"evidence,omitempty"`
	DoNotRepeat []string `json:"doNotRepeat,omitempty"`
	NextSteps   []string `json:"nextSteps,omitempty"`
}

// CoerceAdditionalFindings applies the additionalFindings tolerance rules:
// strings are trimmed (empty dropped), numbers and booleans are stringified,
// objects and arrays are stringified as compact JSON, nulls and
// whitespace-only entries are dropped. A non-array value is treated as a
// single-element array.
func CoerceAdditionalFindings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	elems, ok := v.([]any)
	if !ok {
		elems = []any{v}
	}
	var out []string
	for _, elem := range elems {
		switch e := elem.(type) {
		case nil:
			continue
		case string:
			trimmed := strings.TrimSpace(e)
			if trimmed == "" {
				continue
			}
			out = append(out, trimmed)
		case bool:
			out = append(out, strconv.FormatBool(e))
		case float64:
			out = append(out, strconv.FormatFloat(e, 'f', -1, 64))
		default:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			out = append(out, string(data))
		}
	}
	return out
}

// ParseCompletion decodes an analysis_complete tool call's arguments.
func ParseCompletion(raw json.RawMessage) (*Completion, error) {
	var c Completion
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("bad analysis_complete arguments: %w", err)
	}
	if strings.TrimSpace(c.RootCause) == "" {
		return nil, fmt.Errorf("analysis_complete requires a rootCause")
	}
	if c.Confidence == "" {
		c.Confidence = report.ConfidenceLow
	}
	return &c, nil
}

// ParseFinalSynthesisText extracts the completion JSON from a tool-free
// synthesis response. The model may wrap the object in prose or a code
// fence; the first balanced top-level JSON object is taken.
func ParseFinalSynthesisText(text string) (*Completion, error) {
	obj := extractJSONObject(text)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in synthesis response")
	}
	var c Completion
	if err := json.Unmarshal([]byte(obj), &c); err != nil {
		return nil, fmt.Errorf("bad synthesis JSON: %w", err)
	}
	if strings.TrimSpace(c.RootCause) == "" {
		return nil, fmt.Errorf("synthesis JSON has no rootCause")
	}
	if c.Confidence == "" {
		c.Confidence = report.ConfidenceLow
	}
	return &c, nil
}

// extractJSONObject returns the first balanced {...} region of text, aware
// of JSON string quoting.
func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
