package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	ingestx "github.com/tanpawarit/PolicyPilot/agent/ingest"
)

type categoriesResponse struct {
	Categories []string `json:"categories"`
}

type uploadResponse struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Filename string `json:"filename"`
}

func handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: contractx.CategoryNames()})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	category := r.FormValue("category")
	var (
		filename string
		content  []byte
	)
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		writeDetail(w, http.StatusBadRequest, "Invalid multipart form")
		return
	default:
		defer file.Close()
		filename = header.Filename
		content, err = io.ReadAll(file)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "Could not read uploaded file")
			return
		}
	}

	job, err := s.uploads.Submit(r.Context(), filename, category, content)
	if err != nil {
		var invalid *ingestx.ValidationError
		switch {
		case errors.As(err, &invalid):
			writeDetail(w, http.StatusBadRequest, invalid.Detail)
		case errors.Is(err, ingestx.ErrQueueFull), errors.Is(err, ingestx.ErrClosed):
			writeDetail(w, http.StatusServiceUnavailable, "Ingestion is busy, try again later")
		default:
			log.Ctx(r.Context()).Error().Err(err).Msg("upload failed")
			writeDetail(w, http.StatusInternalServerError, "Upload failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		OK:       true,
		Message:  "File uploaded and ingestion started.",
		Category: string(job.Category),
		Filename: filename,
	})
}
