// Package api serves the status HTTP API.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ItsNotGoodName/x-traybar/internal/app"
	"github.com/ItsNotGoodName/x-traybar/internal/build"
	"github.com/ItsNotGoodName/x-traybar/internal/bus"
	"github.com/ItsNotGoodName/x-traybar/internal/xbg"
	"github.com/ItsNotGoodName/x-traybar/pkg/chiext"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(model *app.Model) http.Handler {
	hub := bus.NewHub[xbg.Changed]().Register("api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chiext.Logger())

	r.Get("/api/build", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, build.Current)
	})

	r.Get("/api/client", func(w http.ResponseWriter, r *http.Request) {
		status := model.Status()
		if status == nil {
			respond(w, http.StatusNotFound, map[string]string{"error": "no embedded client"})
			return
		}
		respond(w, http.StatusOK, status)
	})

	// Server-sent events: a snapshot on connect, then one per background
	// change.
	r.Get("/api/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		eventC, cancel := hub.Subscribe()
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		writeEvent(w, model.Status())
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-eventC:
				writeEvent(w, model.Status())
				flusher.Flush()
			}
		}
	})

	return r
}

func writeEvent(w io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
