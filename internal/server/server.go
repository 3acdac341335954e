package server

import (
	"context"
	"net/http"
	"time"

	"github.com/dvcrn/notebook-gateway/internal/auth"
	"github.com/dvcrn/notebook-gateway/internal/backend"
	"github.com/dvcrn/notebook-gateway/internal/service"
	"github.com/rs/zerolog"
)

// ChatService streams replies for chat turns. *service.Chat implements it.
type ChatService interface {
	Send(ctx context.Context, req backend.ChatRequest, onProgress service.ProgressFunc) (string, error)
}

// FileService is implemented by *service.Files.
type FileService interface {
	Upload(ctx context.Context, up service.Upload) (service.UploadResult, error)
	Delete(ctx context.Context, path string) error
}

// NoteService is implemented by *service.Notes.
type NoteService interface {
	List(ctx context.Context, page backend.Page) ([]backend.Note, error)
	Save(ctx context.Context, in service.NoteInput) (backend.Note, error)
	Delete(ctx context.Context, id string) error
}

// CredentialManager is the part of *auth.Manager the admin endpoints use.
type CredentialManager interface {
	Status() auth.Status
	ForceRefresh(ctx context.Context) (*backend.Client, error)
}

type Services struct {
	Chat        ChatService
	Files       FileService
	Notes       NoteService
	Credentials CredentialManager
}

type Options struct {
	AdminAPIKey string
	// MaxUploadSize caps multipart bodies. Zero means 50 MiB.
	MaxUploadSize int64
}

type Server struct {
	svc           Services
	adminKey      string
	maxUploadSize int64
	mux           *http.ServeMux
	logger        zerolog.Logger
}

func New(logger zerolog.Logger, svc Services, opts Options) *Server {
	s := &Server{
		svc:           svc,
		adminKey:      opts.AdminAPIKey,
		maxUploadSize: opts.MaxUploadSize,
		mux:           http.NewServeMux(),
		logger:        logger,
	}
	if s.maxUploadSize <= 0 {
		s.maxUploadSize = 50 << 20
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/chat", s.chatHandler)
	s.mux.HandleFunc("POST /v1/files", s.uploadHandler)
	s.mux.HandleFunc("DELETE /v1/files", s.deleteFileHandler)
	s.mux.HandleFunc("GET /v1/notes", s.listNotesHandler)
	s.mux.HandleFunc("PUT /v1/notes/{id}", s.saveNoteHandler)
	s.mux.HandleFunc("DELETE /v1/notes/{id}", s.deleteNoteHandler)
	s.mux.HandleFunc("GET /health", s.healthHandler)
	s.mux.HandleFunc("GET /admin/credentials/status", s.adminMiddleware(s.credentialsStatusHandler))
	s.mux.HandleFunc("POST /admin/credentials/refresh", s.adminMiddleware(s.credentialsRefreshHandler))
	s.mux.HandleFunc("/", s.notFoundHandler)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.loggingMiddleware(s.mux).ServeHTTP(w, r)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("Incoming request")
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("uri", r.RequestURI).
			Dur("duration", time.Since(start)).
			Msg("Finished request")
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn().
		Str("method", r.Method).
		Str("uri", r.RequestURI).
		Str("remote_addr", r.RemoteAddr).
		Str("user_agent", r.UserAgent()).
		Msg("Unhandled route")
	http.NotFound(w, r)
}
