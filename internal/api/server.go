package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"mappls-navigation/internal/config"
	"mappls-navigation/internal/token"
)

// ConnectionHandler takes over an accepted navigation WebSocket.
type ConnectionHandler interface {
	HandleNewConnection(sessionID string, conn *websocket.Conn)
}

type CredentialSource interface {
	Credentials(ctx context.Context) (token.Credentials, error)
}

type Server struct {
	Config           *config.Config
	WebsocketManager ConnectionHandler
	Tokens           CredentialSource
	logger           *slog.Logger
}

func NewServer(config *config.Config, wsManager ConnectionHandler, tokens CredentialSource, logger *slog.Logger) *Server {
	return &Server{
		Config:           config,
		WebsocketManager: wsManager,
		Tokens:           tokens,
		logger:           logger,
	}
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("API server is started.")); err != nil {
		s.logger.Error(fmt.Sprintf("Error writing response: %v", err))
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /navigation", s.wsHandler())
	mux.HandleFunc("GET /api/token", s.tokenHandler())
	return cors(mux)
}

func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    net.JoinHostPort(s.Config.APIServerHost, s.Config.APIServerPort),
		Handler: s.routes(),
	}

	go func() {
		s.logger.Info("API server is running", "port", s.Config.APIServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server failed to listen and serve", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("API server failed to shutdown", "error", err)
		}
	}()

	wg.Wait()
	return nil
}

// cors lets the map frontend call the API from any origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
