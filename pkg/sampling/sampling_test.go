package sampling

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_RoundTrip(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentBlock{
			TextContentBlock{Text: "looking at the faulting thread"},
			ToolUseContentBlock{ID: "tu_1", Name: "report_get", Input: json.RawMessage(`{"path":"metadata"}`)},
			ToolResultContentBlock{ToolUseID: "tu_1", Content: `{"dumpId":"d1"}`},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"text"`)
	assert.Contains(t, string(data), `"type":"tool_use"`)
	assert.Contains(t, string(data), `"type":"tool_result"`)

	var back Message
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, msg.Role, back.Role)
	require.Len(t, back.Content, 3)
	assert.IsType(t, TextContentBlock{}, back.Content[0])
	tu, ok := back.Content[1].(ToolUseContentBlock)
	require.True(t, ok)
	assert.Equal(t, "report_get", tu.Name)
	assert.JSONEq(t, `{"path":"metadata"}`, string(tu.Input))
}

func TestResult_RoundTrip(t *testing.T) {
	res := CreateMessageResult{
		Model: "test-model",
		Role:  RoleAssistant,
		Content: []ContentBlock{
			ToolUseContentBlock{ID: "a", Name: "exec", Input: json.RawMessage(`{"command":"!threads"}`)},
		},
	}
	data, err := json.Marshal(res)
	require.NoError(t, err)

	var back CreateMessageResult
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, "test-model", back.Model)
	require.Len(t, back.ToolUses(), 1)
	assert.Equal(t, "exec", back.ToolUses()[0].Name)
}

func TestResult_UnknownDiscriminator(t *testing.T) {
	var back CreateMessageResult
	err := json.Unmarshal([]byte(`{"model":"m","role":"assistant","content":[{"type":"image"}]}`), &back)
	assert.Error(t, err)
}

func TestResult_IsEmpty(t *testing.T) {
	assert.True(t, (&CreateMessageResult{}).IsEmpty())
	assert.True(t, (&CreateMessageResult{Content: []ContentBlock{TextContentBlock{}}}).IsEmpty())
	assert.False(t, (&CreateMessageResult{Content: []ContentBlock{TextContentBlock{Text: "x"}}}).IsEmpty())
	assert.False(t, (&CreateMessageResult{Content: []ContentBlock{ToolUseContentBlock{ID: "1"}}}).IsEmpty())
}

func TestResult_TextContent(t *testing.T) {
	res := &CreateMessageResult{Content: []ContentBlock{
		TextContentBlock{Text: "a"},
		ToolUseContentBlock{ID: "x"},
		TextContentBlock{Text: "b"},
	}}
	assert.Equal(t, "a\nb", res.TextContent())
}
