package server

import (
	"bufio"
	"fmt"
	"net/http"

	"plantkeeper/internal/api"
	"plantkeeper/internal/metrics"
)

const sniffLen = 512

func (s *Server) handleReplaceImage(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if !s.acquireLimiter(s.uploadLimiter, w, r, "upload") {
		return
	}
	defer s.releaseLimiter(s.uploadLimiter)

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MultipartMaxMemory); err != nil {
		metrics.ObserveUpload("rejected")
		s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(api.ImageFormField)
	if err != nil {
		metrics.ObserveUpload("rejected")
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("%s file is required", api.ImageFormField), ErrCodeMissingImage))
		return
	}
	defer file.Close()

	buffered := bufio.NewReaderSize(file, sniffLen)
	peek, _ := buffered.Peek(sniffLen)
	if len(peek) == 0 {
		metrics.ObserveUpload("rejected")
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("%s file is empty", api.ImageFormField), ErrCodeMissingImage))
		return
	}

	plant, err := s.service.ReplaceImage(r.Context(), id, ImageUpload{
		Filename:          header.Filename,
		DeclaredMediaType: header.Header.Get("Content-Type"),
		SniffedMediaType:  http.DetectContentType(peek),
		Content:           buffered,
	})
	if err != nil {
		metrics.ObserveUpload("rejected")
		s.writeServiceError(w, r, err)
		return
	}
	metrics.ObserveUpload("accepted")

	s.writeJSON(w, http.StatusOK, api.ImageUploadResponse{
		Message: "Upload successful",
		NewPath: plant.ImagePath,
		Plant:   plant,
	})
	s.scheduleNormalize(plant.ImagePath)
}

// scheduleNormalize hands the committed image to the background runner.
func (s *Server) scheduleNormalize(imagePath string) {
	if s.runner == nil {
		return
	}
	file, err := s.service.Images().FilePath(imagePath)
	if err != nil {
		s.log().Warn("skip normalization", "path", imagePath, "error", err)
		return
	}
	s.runner.Submit(file)
}
