package aidispatch

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func writeError(w http.ResponseWriter, code int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func handleGenerate(w http.ResponseWriter, r *http.Request) {
	logger := slog.Default()
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("invalid request", "error", err)
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if req.Prompt == "" {
		logger.Error("missing required field: prompt")
		writeError(w, http.StatusBadRequest, "Field required: prompt")
		return
	}

	logger.Info("processing generation request",
		"provider", req.Provider,
		"model", req.Model,
		"stream", req.Stream,
	)

	provider, err := NewLLMProvider(req.Provider, req.Key, logger)
	if err != nil {
		logger.Error("failed to create provider", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	textChan, errChan := provider.Stream(&req)

	if !req.Stream {
		var content strings.Builder
		for textChan != nil || errChan != nil {
			select {
			case text, ok := <-textChan:
				if !ok {
					textChan = nil
					continue
				}
				content.WriteString(text)
			case err, ok := <-errChan:
				if !ok {
					errChan = nil
					continue
				}
				logger.Error("error generating response", "error", err)
				writeError(w, http.StatusBadGateway, err.Error())
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(GenerateResponse{Content: content.String()})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	notify := r.Context().Done()

	for {
		select {
		case text, ok := <-textChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", text)
			flusher.Flush()
		case err, ok := <-errChan:
			if !ok {
				return
			}
			logger.Error("error streaming response", "error", err)
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
			flusher.Flush()
			return
		case <-notify:
			logger.Info("client disconnected")
			return
		}
	}
}

func NewRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/dispatch/generate", handleGenerate)
	r.Get("/dispatch/health", handleHealth)

	return r
}
