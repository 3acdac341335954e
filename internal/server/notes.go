package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/dvcrn/notebook-gateway/internal/backend"
	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/dvcrn/notebook-gateway/internal/service"
)

const maxNoteBody = 4 << 20

func (s *Server) listNotesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		s.writeError(w, r, apperr.New(apperr.KindValidation, "notes.list", "page must be a number"))
		return
	}
	size, err := intParam(q.Get("size"), 0)
	if err != nil {
		s.writeError(w, r, apperr.New(apperr.KindValidation, "notes.list", "size must be a number"))
		return
	}

	notes, err := s.svc.Notes.List(r.Context(), backend.Page{Number: page, Size: size, FolderID: q.Get("folder_id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NotesResponse{Notes: notes, Page: page, Size: size})
}

func (s *Server) saveNoteHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNoteBody))
	if err != nil {
		s.logger.Error().Err(err).Msg("Error reading request body")
		http.Error(w, "Failed to read request body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	var in service.NoteInput
	if err := json.Unmarshal(body, &in); err != nil {
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, "notes.decode", err))
		return
	}
	in.ID = r.PathValue("id")

	saved, err := s.svc.Notes.Save(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Notes.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
