package models

// Envelope is the typed message passed on the Messaging Bus (§4.B, §3).
// Textually serialized (JSON) when it crosses the transport boundary.
type Envelope struct {
	Sender         string         `json:"sender"`
	Recipient      string         `json:"recipient,omitempty"`
	Topic          string         `json:"topic"`
	Payload        map[string]any `json:"payload"`
	MessageID      string         `json:"message_id"`
	ReplyTo        string         `json:"reply_to,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}
