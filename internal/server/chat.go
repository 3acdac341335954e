package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
)

const maxChatBody = 1 << 20

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	requestBodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxChatBody))
	if err != nil {
		s.logger.Error().Err(err).Msg("Error reading request body")
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	var req backend.ChatRequest
	if err := json.Unmarshal(requestBodyBytes, &req); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, "chat.decode", err))
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		s.logger.Warn().Msg("ResponseWriter does not support flushing - streaming may be buffered")
		flusher = noopFlusher{}
	}
	events := newEventStream(w, flusher)

	s.logger.Info().
		Str("conversation_id", req.ConversationID).
		Int("history_count", len(req.History)).
		Int("message_len", len(req.Message)).
		Msg("Processing chat request")

	chunkCount := 0
	streamStart := time.Now()
	text, err := s.svc.Chat.Send(r.Context(), req, func(progress string) {
		chunkCount++
		if err := events.send(ChatEvent{Type: "progress", Text: progress}); err != nil {
			s.logger.Debug().Err(err).Msg("Dropping progress event")
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Debug().Int("chunks", chunkCount).Msg("Chat request cancelled by client")
			return
		}
		if !events.started {
			s.writeError(w, r, err)
			return
		}
		s.logger.Warn().Err(err).Int("chunks", chunkCount).Msg("Chat stream failed")
		events.send(ChatEvent{
			Type:     "error",
			Kind:     apperr.KindOf(err).String(),
			Message:  apperr.ClientMessage(err),
			MIMEType: apperr.MIMETypeOf(err),
		})
		return
	}

	events.send(ChatEvent{Type: "done", Text: text})
	s.logger.Debug().
		Int("chunks", chunkCount).
		Dur("elapsed", time.Since(streamStart)).
		Msg("Streaming response completed")
}

type noopFlusher struct{}

func (noopFlusher) Flush() {}
