package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/dvcrn/notebook-gateway/internal/executor"
	"github.com/dvcrn/notebook-gateway/internal/stream"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const readChunkSize = 4096

// ProgressFunc receives the decoded text of everything streamed so far.
type ProgressFunc func(text string)

type ChatOptions struct {
	MaxRetries     int
	PersistRetries int
}

// Chat sends user turns to the completion endpoint and streams the reply.
type Chat struct {
	provider       executor.ClientProvider
	maxRetries     int
	persistRetries int
	validate       *validator.Validate
	logger         zerolog.Logger
	now            func() time.Time
	newID          func() string
}

func NewChat(provider executor.ClientProvider, opts ChatOptions, logger zerolog.Logger) *Chat {
	return &Chat{
		provider:       provider,
		maxRetries:     opts.MaxRetries,
		persistRetries: opts.PersistRetries,
		validate:       validator.New(),
		logger:         logger.With().Str("component", "chat").Logger(),
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// Send streams the reply to req. onProgress is called once per received
// chunk with the projection of the whole buffer, in order, and never after
// ctx is done. The returned text is the projection of the ended stream.
func (s *Chat) Send(ctx context.Context, req backend.ChatRequest, onProgress ProgressFunc) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "chat.send", err)
	}
	if onProgress == nil {
		onProgress = func(string) {}
	}

	body, err := executor.ExecuteLogged(ctx, s.provider, func(ctx context.Context, c *backend.Client) (io.ReadCloser, error) {
		return c.OpenChatStream(ctx, req)
	}, s.maxRetries, &s.logger)
	if err != nil {
		return "", err
	}
	defer body.Close()

	dec := stream.NewDecoder()
	buf := make([]byte, readChunkSize)
	chunks := 0
	start := time.Now()
	for {
		n, readErr := body.Read(buf)
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.logger.Debug().Int("chunks", chunks).Msg("Chat stream cancelled")
			return "", ctxErr
		}
		if n > 0 {
			dec.Write(buf[:n])
			chunks++
			onProgress(dec.Projection())
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", apperr.Wrap(apperr.KindRemote, "chat.read", readErr)
		}
	}

	text := dec.Final()
	s.logger.Debug().
		Int("chunks", chunks).
		Int("bytes", dec.Len()).
		Dur("elapsed", time.Since(start)).
		Msg("Chat stream completed")

	if req.ConversationID != "" {
		s.persistTurn(ctx, req, text)
	}
	return text, nil
}

// persistTurn stores the user message and the reply. Failures are logged;
// the reply has already been delivered.
func (s *Chat) persistTurn(ctx context.Context, req backend.ChatRequest, reply string) {
	now := s.now().UTC()
	msgs := []backend.Message{
		{ID: s.newID(), ConversationID: req.ConversationID, Role: "user", Content: req.Message, CreatedAt: now},
		{ID: s.newID(), ConversationID: req.ConversationID, Role: "assistant", Content: reply, CreatedAt: now.Add(time.Millisecond)},
	}
	_, err := executor.ExecuteLogged(ctx, s.provider, func(ctx context.Context, c *backend.Client) (struct{}, error) {
		return struct{}{}, c.InsertMessages(ctx, msgs)
	}, s.persistRetries, &s.logger)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("conversation_id", req.ConversationID).
			Msg("Failed to persist chat turn")
	}
}
