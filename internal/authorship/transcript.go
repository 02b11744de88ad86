package authorship

import "encoding/json"

// MessageType tags one entry of an agent conversation transcript.
type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageToolUse   MessageType = "tool_use"
)

// Message is one turn of an agent transcript. The populated fields
// depend on Type: user and assistant carry Text, tool_use carries Name
// and Input. Timestamps are whatever the agent reported, kept verbatim.
type Message struct {
	Type      MessageType     `json:"type"`
	Text      string          `json:"text,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// UserMessage builds a user turn.
func UserMessage(text string) Message {
	return Message{Type: MessageUser, Text: text}
}

// AssistantMessage builds an assistant turn.
func AssistantMessage(text string) Message {
	return Message{Type: MessageAssistant, Text: text}
}

// ToolUseMessage builds a tool invocation turn.
func ToolUseMessage(name string, input json.RawMessage) Message {
	return Message{Type: MessageToolUse, Name: name, Input: input}
}

// redactMessages strips conversational content while keeping enough
// shape for stats: used when prompt storage is disabled.
func redactMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Type: m.Type, Timestamp: m.Timestamp}
		if m.Type == MessageToolUse {
			out[i].Name = m.Name
		}
	}
	return out
}
