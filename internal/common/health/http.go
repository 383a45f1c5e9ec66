package health

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

const Path = "/health"

// Handler answers 204 while checker is healthy and 503 with the failure text otherwise.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := checker.Check(); err != nil {
			log.WithError(err).Warn("health check failed")
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// Register mounts the health handler at Path.
func Register(mux *http.ServeMux, checker Checker) {
	mux.Handle("GET "+Path, Handler(checker))
}
