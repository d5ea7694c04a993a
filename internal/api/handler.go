package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/matheodrd/httphelper/handler"

	"mappls-navigation/internal/token"
)

func (s *Server) wsHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			return handler.NewErrWithStatus(http.StatusBadRequest, errors.New("missing session_id"))
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return handler.NewErrWithStatus(http.StatusInternalServerError, fmt.Errorf("websocket accept: %w", err))
		}

		s.WebsocketManager.HandleNewConnection(sessionID, conn)
		return nil
	})
}

func (s *Server) tokenHandler() http.HandlerFunc {
	return handler.Handler(func(w http.ResponseWriter, r *http.Request) error {
		creds, err := s.Tokens.Credentials(r.Context())
		if err != nil {
			s.logger.Error("failed to get access token", "error", err)
			var upstream *token.UpstreamError
			if errors.As(err, &upstream) {
				return handler.NewErrWithStatus(upstream.StatusCode, errors.New("failed to get token"))
			}
			if errors.Is(err, token.ErrMissingCredentials) {
				return handler.NewErrWithStatus(http.StatusInternalServerError, err)
			}
			return handler.NewErrWithStatus(http.StatusBadGateway, errors.New("failed to get token"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(creds); err != nil {
			return fmt.Errorf("encoding token response: %w", err)
		}
		return nil
	})
}
