// Package llm provides the chat-completion backend used by the planner,
// executor and judge, plus context-budget trimming of message histories.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCallID links a tool-result turn to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool-result turns.
	Name string `json:"name,omitempty"`

	// ToolCalls is set on synthetic assistant turns that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is one normalized tool invocation request.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON argument payload
}

// ToolSchema advertises one tool to the backend.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON schema for the arguments
}

// Response is a normalized backend reply. If Content is non-empty,
// ToolCalls is nil; a turn is never both.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Backend sends a message history to a chat-completion service.
type Backend interface {
	Chat(ctx context.Context, messages []Message, tools []ToolSchema, maxTokens int) (*Response, error)
}

// SystemMessage builds a system turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds the tool turn answering call with result.
func ToolResultMessage(call ToolCall, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}
