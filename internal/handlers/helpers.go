package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"detectfront/internal/submit"
)

// ErrorResponse is returned for requests that never reach the pipeline.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// paramsFromRequest reads the opaque model/confidence fields. Both are
// forwarded without interpretation.
func paramsFromRequest(r *http.Request) submit.Params {
	return submit.Params{
		Model:      r.FormValue("model"),
		Confidence: r.FormValue("confidence"),
	}
}

// stateStatus maps a pipeline outcome to an HTTP status. Settled requests
// answer 200 whether they ended in a result or an error; the state body
// carries the user-visible outcome.
func stateStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, submit.ErrBusy), errors.Is(err, submit.ErrStale):
		return http.StatusConflict
	case errors.Is(err, submit.ErrNoImage):
		return http.StatusBadRequest
	}
	return http.StatusOK
}
