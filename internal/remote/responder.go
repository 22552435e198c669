package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"promptbridge/internal/logging"
	"promptbridge/internal/promptdetect"
	"promptbridge/internal/protocol"
)

// Client forwards deferred prompts to a remote responder over a text
// socket and waits for the answer. The bridge keeps at most one prompt in
// flight, so request/reply pairing is strictly sequential.
type Client struct {
	sock   Socket
	logger *slog.Logger
}

func NewClient(sock Socket, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewDiscard()
	}
	return &Client{sock: sock, logger: logger}
}

// Respond satisfies the bridge's responder contract.
func (c *Client) Respond(ctx context.Context, match promptdetect.Match) (string, error) {
	if c == nil || c.sock == nil {
		return "", errors.New("remote responder socket is not connected")
	}

	id := fmt.Sprintf("req_%d", time.Now().UnixNano())
	req := protocol.Message{
		ID:   id,
		Type: "req",
		Op:   "prompt.request",
		Payload: protocol.MustRaw(protocol.PromptRequest{
			Kind: string(match.Kind),
			Text: match.Text,
		}),
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	if err := c.sock.WriteText(ctx, string(raw)); err != nil {
		return "", fmt.Errorf("send prompt request: %w", err)
	}
	c.logger.Info("prompt forwarded to remote responder", "kind", match.Kind, "request_id", id)

	for {
		text, err := c.sock.ReadText(ctx)
		if err != nil {
			return "", fmt.Errorf("await prompt response: %w", err)
		}
		var msg protocol.Message
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			c.logger.Warn("discarding malformed responder message", "err", err)
			continue
		}
		if msg.Type != "res" || msg.ID != id {
			continue
		}
		if msg.Error != nil {
			return "", fmt.Errorf("responder error %s: %s", msg.Error.Code, msg.Error.Message)
		}
		var payload protocol.PromptResponse
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return "", fmt.Errorf("decode prompt response: %w", err)
		}
		return payload.Response, nil
	}
}

func (c *Client) Close() error {
	if c == nil || c.sock == nil {
		return nil
	}
	return c.sock.Close()
}
