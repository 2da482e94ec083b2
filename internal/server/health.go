package server

import (
	"log/slog"
	"net/http"
)

// Pre-allocated response bodies and header value slice.
var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
	plainCT      = []string{"text/plain"}
)

func writePlain(w http.ResponseWriter, status int, body []byte) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(status)
	w.Write(body)
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusOK, okBody)
}

// handleReadyz reports whether the store answers. The chain node is not
// checked; reads degrade to 502/503 on their own when it is down.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			slog.LogAttrs(r.Context(), slog.LevelWarn, "readiness check failed",
				slog.String("error", err.Error()),
			)
			writePlain(w, http.StatusServiceUnavailable, notReadyBody)
			return
		}
	}
	writePlain(w, http.StatusOK, okBody)
}
