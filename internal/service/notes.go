package service

import (
	"context"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/dvcrn/notebook-gateway/internal/executor"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type NoteInput struct {
	ID       string  `json:"id"        validate:"omitempty,max=64"`
	FolderID *string `json:"folder_id" validate:"omitempty,max=64"`
	Title    string  `json:"title"     validate:"max=500"`
	Content  string  `json:"content"   validate:"max=1000000"`
}

// Notes reads and writes notebook notes.
type Notes struct {
	provider   executor.ClientProvider
	maxRetries int
	validate   *validator.Validate
	logger     zerolog.Logger
	now        func() time.Time
	newID      func() string
}

func NewNotes(provider executor.ClientProvider, maxRetries int, logger zerolog.Logger) *Notes {
	return &Notes{
		provider:   provider,
		maxRetries: maxRetries,
		validate:   validator.New(),
		logger:     logger.With().Str("component", "notes").Logger(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

func (n *Notes) List(ctx context.Context, page backend.Page) ([]backend.Note, error) {
	if page.Number < 0 {
		return nil, apperr.New(apperr.KindValidation, "notes.list", "page must not be negative")
	}
	if page.Size <= 0 {
		page.Size = defaultPageSize
	}
	if page.Size > maxPageSize {
		page.Size = maxPageSize
	}
	return executor.ExecuteLogged(ctx, n.provider, func(ctx context.Context, c *backend.Client) ([]backend.Note, error) {
		return c.ListNotes(ctx, page)
	}, n.maxRetries, &n.logger)
}

// Save creates or updates a note. A note without id gets one assigned here,
// so retries write the same row.
func (n *Notes) Save(ctx context.Context, in NoteInput) (backend.Note, error) {
	if err := n.validate.Struct(in); err != nil {
		return backend.Note{}, apperr.Wrap(apperr.KindValidation, "notes.save", err)
	}
	note := backend.Note{
		ID:        in.ID,
		FolderID:  in.FolderID,
		Title:     in.Title,
		Content:   in.Content,
		UpdatedAt: n.now().UTC(),
	}
	if note.ID == "" {
		note.ID = n.newID()
	}
	saved, err := executor.ExecuteLogged(ctx, n.provider, func(ctx context.Context, c *backend.Client) (backend.Note, error) {
		return c.UpsertNote(ctx, note)
	}, n.maxRetries, &n.logger)
	if err != nil {
		return backend.Note{}, err
	}
	n.logger.Debug().Str("note_id", saved.ID).Msg("Note saved")
	return saved, nil
}

func (n *Notes) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperr.New(apperr.KindValidation, "notes.delete", "id is required")
	}
	_, err := executor.ExecuteLogged(ctx, n.provider, func(ctx context.Context, c *backend.Client) (struct{}, error) {
		return struct{}{}, c.DeleteNote(ctx, id)
	}, n.maxRetries, &n.logger)
	return err
}
