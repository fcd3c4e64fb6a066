// Package server exposes the webhook HTTP surface: one endpoint per
// configured channel plus health reporting.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flowbot/pkg/config"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 8080

	// Provider webhook bodies are small; anything larger is hostile.
	maxPayloadBytes = 1 << 20
)

// Bot is the per-channel orchestrator surface the server drives.
type Bot interface {
	Process(ctx context.Context, payload []byte, initialState map[string]any) (string, error)
}

// Server routes webhook deliveries to the orchestrator of the addressed
// channel.
type Server struct {
	cfg  config.ServerConfig
	log  *slog.Logger
	bots map[string]Bot
}

type healthResponse struct {
	Status   string   `json:"status"`
	Channels []string `json:"channels"`
}

// New builds a server over the given channel orchestrators.
func New(cfg config.ServerConfig, bots map[string]Bot, log *slog.Logger) (*Server, error) {
	if len(bots) == 0 {
		return nil, errors.New("at least one channel is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:  cfg,
		log:  log.With("component", "server"),
		bots: bots,
	}, nil
}

// Handler returns the HTTP routing for webhook and health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/{channel}", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return mux
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	server := &http.Server{
		Addr:              host + ":" + strconv.Itoa(port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Webhook server started", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve webhooks: %w", err)
	}

	return nil
}

// handleWebhook delivers one raw provider payload to the addressed channel's
// orchestrator and echoes its response body back to the provider.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("channel")
	b, ok := s.bots[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	result, err := b.Process(r.Context(), payload, nil)
	if err != nil {
		s.log.Error("Failed to process webhook request", "channel", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	if result != "" {
		_, _ = io.WriteString(w, result)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	channels := make([]string, 0, len(s.bots))
	for name := range s.bots {
		channels = append(channels, name)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(healthResponse{Status: "ok", Channels: channels}); err != nil {
		s.log.Error("Failed to write health response", "error", err)
	}
}
