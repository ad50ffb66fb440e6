package handlers

import (
	"io"
	"net/http"

	"detectfront/internal/logger"
	"detectfront/internal/submit"

	"github.com/gorilla/mux"
)

// RenderedResultHandler serves /uploads/{name} by fetching the annotated
// image from the detection backend.
func RenderedResultHandler(client *submit.Client, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]

		resp, err := client.FetchRendered(r.Context(), name)
		if err != nil {
			logger.Error("Error fetching rendered result %s: %v", name, err)
			http.Error(w, "Unable to fetch result image", http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			http.Error(w, "Result image not found", resp.StatusCode)
			return
		}

		if contentType := resp.Header.Get("Content-Type"); contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Warning("Error streaming result image %s: %v", name, err)
		}
	}
}
