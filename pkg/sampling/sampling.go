// Package sampling defines the MCP sampling client boundary the AI
// orchestrator speaks through: request/result shapes and the
// tagged ContentBlock sum type. The actual transport (an MCP
// server's sampling capability) is an external collaborator; dumpscope only
// consumes this interface.
package sampling

import (
	"context"
	"encoding/json"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Roles used in sampling messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolChoice values. A nil ToolChoice on the request means the model is
// free to answer in text (used by final synthesis).
const (
	ToolChoiceRequired = "required"
	ToolChoiceAuto     = "auto"
)

// ContentBlock is the tagged sum over text, tool-use and tool-result
// content. Serialization uses a "type" discriminator field,
// the same shape the mcpsdk Content family uses on the wire.
type ContentBlock interface {
	blockType() string
}

// TextContentBlock is plain model- or orchestrator-authored text.
type TextContentBlock struct {
	Text string `json:"text"`
}

func (TextContentBlock) blockType() string { return "text" }

// ToolUseContentBlock is one tool invocation requested by the model.
type ToolUseContentBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

func (ToolUseContentBlock) blockType() string { return "tool_use" }

// ToolResultContentBlock carries one tool's output back to the model.
type ToolResultContentBlock struct {
	ToolUseID string `json:"toolUseId"`
	Content   string `json:"content"`
	IsError   bool   `json:"isError,omitempty"`
}

func (ToolResultContentBlock) blockType() string { return "tool_result" }

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// CreateMessageRequestParams is the sampling request. Tools are
// handed to the client as mcpsdk tool listings directly — the dispatcher's
// schemas need no re-encoding step.
type CreateMessageRequestParams struct {
	SystemPrompt string         `json:"systemPrompt,omitempty"`
	Messages     []Message      `json:"messages"`
	Tools        []*mcpsdk.Tool `json:"tools,omitempty"`
	ToolChoice   *string        `json:"toolChoice,omitempty"`
	MaxTokens    int            `json:"maxTokens"`
}

// CreateMessageResult is the sampling response.
type CreateMessageResult struct {
	Model   string         `json:"model"`
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Client is the consumed sampling interface. Implementations
// bridge to an MCP peer's sampling capability.
type Client interface {
	IsSamplingSupported() bool
	IsToolUseSupported() bool
	RequestCompletion(ctx context.Context, req *CreateMessageRequestParams) (*CreateMessageResult, error)
}

// envelope is the wire shape of one ContentBlock with its discriminator.
type envelope struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"toolUseId,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

func toEnvelopes(blocks []ContentBlock) ([]envelope, error) {
	envs := make([]envelope, 0, len(blocks))
	for _, b := range blocks {
		switch blk := b.(type) {
		case TextContentBlock:
			envs = append(envs, envelope{Type: "text", Text: blk.Text})
		case ToolUseContentBlock:
			envs = append(envs, envelope{Type: "tool_use", ID: blk.ID, Name: blk.Name, Input: blk.Input})
		case ToolResultContentBlock:
			envs = append(envs, envelope{Type: "tool_result", ToolUseID: blk.ToolUseID, Content: blk.Content, IsError: blk.IsError})
		default:
			return nil, fmt.Errorf("unknown content block type %T", b)
		}
	}
	return envs, nil
}

// MarshalJSON emits the discriminated wire shape for a Message's content.
func (m Message) MarshalJSON() ([]byte, error) {
	envs, err := toEnvelopes(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Role    string     `json:"role"`
		Content []envelope `json:"content"`
	}{Role: m.Role, Content: envs})
}

// UnmarshalJSON decodes the discriminated wire shape back into typed blocks.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role    string     `json:"role"`
		Content []envelope `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Role = wire.Role
	m.Content = m.Content[:0]
	for _, env := range wire.Content {
		blk, err := env.toBlock()
		if err != nil {
			return err
		}
		m.Content = append(m.Content, blk)
	}
	return nil
}

// MarshalJSON emits the result with discriminated content blocks.
func (r CreateMessageResult) MarshalJSON() ([]byte, error) {
	envs, err := toEnvelopes(r.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Model   string     `json:"model"`
		Role    string     `json:"role"`
		Content []envelope `json:"content"`
	}{Model: r.Model, Role: r.Role, Content: envs})
}

// UnmarshalJSON decodes a result's discriminated content blocks.
func (r *CreateMessageResult) UnmarshalJSON(data []byte) error {
	var wire struct {
		Model   string     `json:"model"`
		Role    string     `json:"role"`
		Content []envelope `json:"content"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Model = wire.Model
	r.Role = wire.Role
	r.Content = r.Content[:0]
	for _, env := range wire.Content {
		blk, err := env.toBlock()
		if err != nil {
			return err
		}
		r.Content = append(r.Content, blk)
	}
	return nil
}

func (env envelope) toBlock() (ContentBlock, error) {
	switch env.Type {
	case "text":
		return TextContentBlock{Text: env.Text}, nil
	case "tool_use":
		return ToolUseContentBlock{ID: env.ID, Name: env.Name, Input: env.Input}, nil
	case "tool_result":
		return ToolResultContentBlock{ToolUseID: env.ToolUseID, Content: env.Content, IsError: env.IsError}, nil
	default:
		return nil, fmt.Errorf("unknown content block discriminator %q", env.Type)
	}
}

// ToolUses returns the tool_use blocks of a result in emission order.
func (r *CreateMessageResult) ToolUses() []ToolUseContentBlock {
	var uses []ToolUseContentBlock
	for _, b := range r.Content {
		if tu, ok := b.(ToolUseContentBlock); ok {
			uses = append(uses, tu)
		}
	}
	return uses
}

// TextContent concatenates the text blocks of a result.
func (r *CreateMessageResult) TextContent() string {
	var out string
	for _, b := range r.Content {
		if tb, ok := b.(TextContentBlock); ok {
			if out != "" {
				out += "\n"
			}
			out += tb.Text
		}
	}
	return out
}

// IsEmpty reports whether the result carries no usable content (triggers a
// sampling retry without consuming an iteration).
func (r *CreateMessageResult) IsEmpty() bool {
	if r == nil || len(r.Content) == 0 {
		return true
	}
	for _, b := range r.Content {
		switch blk := b.(type) {
		case TextContentBlock:
			if blk.Text != "" {
				return false
			}
		case ToolUseContentBlock:
			return false
		case ToolResultContentBlock:
			return false
		}
	}
	return true
}

// ToolChoicePtr is a convenience for building requests with a literal
// tool-choice value.
func ToolChoicePtr(v string) *string { return &v }
