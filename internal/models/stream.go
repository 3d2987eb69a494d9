package models

// ChatRequest is the body posted to the generation endpoint.
type ChatRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId,omitempty"`
}

// Delta is one incremental fragment of generated text. Deltas are never
// persisted; only the accumulated content of a stream becomes a Message.
type Delta struct {
	Content        string `json:"content"`
	Done           bool   `json:"done"`
	ConversationID string `json:"chatId,omitempty"`
}
