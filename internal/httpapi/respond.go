package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"signflow.dev/internal/apperr"
)

// errorEnvelope is the §7 wire shape for every non-2xx response.
type errorEnvelope struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err through apperr.HTTPStatus and writes the {message}
// envelope every endpoint in §6 uses for failures.
func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	writeJSON(w, status, errorEnvelope{Message: err.Error()})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrValidation)
	}
	return nil
}
