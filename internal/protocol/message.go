package protocol

import "encoding/json"

// Message is the JSON envelope exchanged with a remote prompt responder.
// Ops: "prompt.request" (req, bridge -> responder) and its "res" reply
// carrying {"response": string}.
type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
	Error   *ErrPayload     `json:"error,omitempty"`
}

type ErrPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PromptRequest is the payload of a prompt.request message.
type PromptRequest struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// PromptResponse is the payload of a prompt.request reply.
type PromptResponse struct {
	Response string `json:"response"`
}

func MustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
