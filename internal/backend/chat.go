package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content"`
}

// ChatRequest is one user turn sent to the completion endpoint.
type ChatRequest struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	Message        string        `json:"message" validate:"required"`
	History        []ChatMessage `json:"history,omitempty" validate:"dive"`
	NoteIDs        []string      `json:"note_ids,omitempty"`
	FilePaths      []string      `json:"file_paths,omitempty"`
}

// OpenChatStream starts a completion and returns the event stream body.
// The caller must close it.
func (c *Client) OpenChatStream(ctx context.Context, chatReq ChatRequest) (io.ReadCloser, error) {
	const op = "chat.open"
	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, c.cfg.chatURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "text/event-stream")
	req.Header.Set("cache-control", "no-cache")

	resp, err := c.do(op, c.streamClient, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("content_type", resp.Header.Get("Content-Type")).
		Str("conversation_id", chatReq.ConversationID).
		Msg("Chat stream opened")
	return resp.Body, nil
}
