package server

import (
	"errors"
	"io"
	"net/http"

	apperr "github.com/dvcrn/notebook-gateway/internal/errors"
	"github.com/dvcrn/notebook-gateway/internal/service"
)

const multipartMemory = 8 << 20

func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, apperr.New(apperr.KindQuotaExceeded, "files.upload", "upload is too large"))
			return
		}
		s.writeError(w, r, apperr.Wrap(apperr.KindValidation, "files.upload", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, apperr.New(apperr.KindValidation, "files.upload", "multipart field \"file\" is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error reading uploaded file")
		http.Error(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	contentType := r.FormValue("content_type")
	if contentType == "" {
		if partType := header.Header.Get("Content-Type"); partType != "application/octet-stream" {
			contentType = partType
		}
	}

	res, err := s.svc.Files.Upload(r.Context(), service.Upload{
		Name:        header.Filename,
		Path:        r.FormValue("path"),
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) deleteFileHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Files.Delete(r.Context(), r.URL.Query().Get("path")); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
