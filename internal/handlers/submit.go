package handlers

import (
	"errors"
	"io"
	"net/http"

	"detectfront/internal/frontend"
	"detectfront/internal/logger"
	"detectfront/internal/submit"
)

// CaptureHandler grabs the current camera frame and submits it.
func CaptureHandler(session *frontend.Session, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := session.Capture(r.Context(), paramsFromRequest(r))
		if err != nil {
			logger.Warning("Capture not submitted: %v", err)
		}
		if err := writeJSON(w, stateStatus(err), state); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// UploadHandler submits a file chosen in the file dialog or dropped on the
// page. The multipart field is "file"; "model" and "confidence" are optional.
func UploadHandler(session *frontend.Session, maxBytes int64, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file is too large"})
				return
			}
			if !errors.Is(err, http.ErrNotMultipart) {
				logger.Warning("Invalid upload: %v", err)
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid upload"})
				return
			}
		}

		img, err := readUploadedImage(r)
		if err != nil {
			logger.Error("Error reading upload: %v", err)
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "could not read uploaded file"})
			return
		}

		state, err := session.Upload(r.Context(), img, paramsFromRequest(r))
		if err != nil {
			logger.Warning("Upload not submitted: %v", err)
		}
		if err := writeJSON(w, stateStatus(err), state); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}

// readUploadedImage returns nil without error when no file was attached.
func readUploadedImage(r *http.Request) (*submit.Image, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	return &submit.Image{
		Data:     data,
		MIMEType: mimeType,
		Filename: header.Filename,
		Source:   submit.SourceFile,
	}, nil
}
