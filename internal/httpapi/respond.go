package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/lightbasehq/corehub/internal/apperr"
	"github.com/lightbasehq/corehub/internal/observability/logger"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to the documented {key,status,info,cause?} body.
// Anything that isn't an *apperr.Error is logged at error level, since it
// represents a programmer mistake rather than a documented failure mode.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := apperr.AsHTTP(err)
	if _, ok := apperr.AsAppError(err); !ok {
		logger.From(r.Context()).Error("unhandled error at http boundary", logger.Err(err), logger.Path(r.URL.Path))
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("httpapi.decode.emptyBody")
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("httpapi.decode.invalidJson")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
