package service

import (
	"context"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/dvcrn/notebook-gateway/internal/executor"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Upload is a file handed over by the UI.
type Upload struct {
	Name        string `validate:"omitempty,max=255"`
	Path        string `validate:"omitempty,max=1024"`
	ContentType string `validate:"omitempty,max=255"`
	Data        []byte
}

type UploadResult struct {
	Path        string `json:"path"`
	Key         string `json:"key"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type FilesOptions struct {
	AllowedMIMETypes []string
	MaxSize          int64
	MaxRetries       int
}

// Files uploads and removes notebook attachments.
type Files struct {
	provider   executor.ClientProvider
	allowed    map[string]struct{}
	maxSize    int64
	maxRetries int
	validate   *validator.Validate
	logger     zerolog.Logger
	newID      func() string
}

func NewFiles(provider executor.ClientProvider, opts FilesOptions, logger zerolog.Logger) *Files {
	allowed := make(map[string]struct{}, len(opts.AllowedMIMETypes))
	for _, mt := range opts.AllowedMIMETypes {
		allowed[normalizeMIME(mt)] = struct{}{}
	}
	return &Files{
		provider:   provider,
		allowed:    allowed,
		maxSize:    opts.MaxSize,
		maxRetries: opts.MaxRetries,
		validate:   validator.New(),
		logger:     logger.With().Str("component", "files").Logger(),
		newID:      uuid.NewString,
	}
}

// Upload checks the file locally, then stores it. Rejected content types
// fail before any credential is requested. The object path is fixed before
// the first attempt so a retried upload overwrites the same object.
func (f *Files) Upload(ctx context.Context, up Upload) (UploadResult, error) {
	const op = "files.upload"
	if err := f.validate.Struct(up); err != nil {
		return UploadResult{}, apperr.Wrap(apperr.KindValidation, op, err)
	}
	if len(up.Data) == 0 {
		return UploadResult{}, apperr.New(apperr.KindValidation, op, "file is empty")
	}
	if f.maxSize > 0 && int64(len(up.Data)) > f.maxSize {
		return UploadResult{}, apperr.New(apperr.KindQuotaExceeded, op, "file exceeds the maximum upload size")
	}

	contentType := f.contentType(up)
	if !f.Allowed(contentType) {
		f.logger.Warn().Str("content_type", contentType).Str("name", up.Name).Msg("Rejected upload with unsupported content type")
		return UploadResult{}, apperr.UnsupportedContentType(op, contentType)
	}

	objectPath := strings.TrimLeft(up.Path, "/")
	if objectPath == "" {
		objectPath = f.newID() + "/" + safeName(up.Name, contentType)
	}

	obj := backend.Object{
		Path:        objectPath,
		ContentType: contentType,
		Data:        up.Data,
		Upsert:      true,
	}
	key, err := executor.ExecuteLogged(ctx, f.provider, func(ctx context.Context, c *backend.Client) (string, error) {
		return c.Upload(ctx, obj)
	}, f.maxRetries, &f.logger)
	if err != nil {
		return UploadResult{}, err
	}

	f.logger.Info().
		Str("path", objectPath).
		Str("content_type", contentType).
		Int("size", len(up.Data)).
		Msg("File uploaded")
	return UploadResult{Path: objectPath, Key: key, ContentType: contentType, Size: len(up.Data)}, nil
}

// Delete removes the object at objectPath. Removing a missing object succeeds.
func (f *Files) Delete(ctx context.Context, objectPath string) error {
	const op = "files.delete"
	objectPath = strings.TrimLeft(strings.TrimSpace(objectPath), "/")
	if objectPath == "" {
		return apperr.New(apperr.KindValidation, op, "path is required")
	}
	_, err := executor.ExecuteLogged(ctx, f.provider, func(ctx context.Context, c *backend.Client) (struct{}, error) {
		return struct{}{}, c.Remove(ctx, objectPath)
	}, f.maxRetries, &f.logger)
	return err
}

// Allowed reports whether contentType may be uploaded. An empty allow-list
// permits everything.
func (f *Files) Allowed(contentType string) bool {
	if len(f.allowed) == 0 {
		return true
	}
	_, ok := f.allowed[normalizeMIME(contentType)]
	return ok
}

func (f *Files) contentType(up Upload) string {
	if up.ContentType != "" {
		return normalizeMIME(up.ContentType)
	}
	if ext := path.Ext(up.Name); ext != "" {
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return normalizeMIME(byExt)
		}
	}
	return normalizeMIME(http.DetectContentType(up.Data))
}

// normalizeMIME drops parameters and lowercases, "Text/Plain; charset=utf-8" -> "text/plain".
func normalizeMIME(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func safeName(name, contentType string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20, r == '#', r == '?', r == '%':
			return -1
		}
		return r
	}, name)
}
