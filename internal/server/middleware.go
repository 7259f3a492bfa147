package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
)

// wrap applies panic recovery and request logging to a handler.
func wrap(h http.HandlerFunc) http.HandlerFunc {
	return recoverer(logged(h))
}

func recoverer(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).Msg("handler panicked")
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		h(w, r)
	}
}

func logged(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).Dur("took", time.Since(start)).Msg("request")
	}
}
