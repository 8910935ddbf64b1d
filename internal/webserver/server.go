// Package webserver serves the overlay WebSocket, the admin JSON API and the OAuth callback.
package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/bot"
	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/ranking"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/twitchtoken"
	"github.com/ichi0g0y/twitch-fanscore/internal/version"
	"go.uber.org/zap"
)

// Ranker serves the leaderboard. Nil when the ranking backend is not configured.
type Ranker interface {
	Top(ctx context.Context, n int) ([]ranking.Entry, error)
}

// EventHandler receives the synthetic events posted to the debug endpoints.
type EventHandler interface {
	HandleChat(ctx context.Context, msg bot.ChatMessage)
	HandleGift(ctx context.Context, userID, nickname, tag string, amount int)
	HandleLike(ctx context.Context, userID, nickname, tag string)
}

type Deps struct {
	Settings  *settings.SettingsManager
	Live      *settings.Live
	Fans      *fanscore.Aggregator
	Roulette  *roulette.Engine
	Quiz      *quiz.Master
	Ranking   Ranker
	Hub       *Hub
	Events    EventHandler
	DebugMode bool
}

type Server struct {
	d          Deps
	mux        *http.ServeMux
	httpServer *http.Server
}

func New(d Deps) *Server {
	s := &Server{d: d, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	mux := s.mux

	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/settings", corsMiddleware(s.handleSettings))
	mux.HandleFunc("/api/stream/status", corsMiddleware(handleStreamStatus))
	mux.HandleFunc("/api/logs", corsMiddleware(handleLogs))

	if s.d.Fans != nil {
		mux.HandleFunc("/api/users/", corsMiddleware(s.handleUser))
	}
	mux.HandleFunc("/api/ranking", corsMiddleware(s.handleRanking))

	if s.d.Roulette != nil {
		mux.HandleFunc("/api/roulette/templates", corsMiddleware(s.handleTemplates))
		mux.HandleFunc("/api/roulette/templates/", corsMiddleware(s.handleTemplateByID))
		mux.HandleFunc("/api/roulette/history", corsMiddleware(s.handleHistory))
		mux.HandleFunc("/api/roulette/counters", corsMiddleware(s.handleCounters))
	}
	if s.d.Quiz != nil {
		mux.HandleFunc("/api/quiz/questions", corsMiddleware(s.handleQuestions))
		mux.HandleFunc("/api/quiz/ask", corsMiddleware(s.handleQuizAsk))
	}

	// OAuth
	mux.HandleFunc("/auth", twitchtoken.AuthRedirectHandler)
	mux.HandleFunc("/callback", twitchtoken.CallbackHandler)

	if s.d.Hub != nil {
		mux.HandleFunc("/ws", s.d.Hub.handleWS)
	}

	if s.d.DebugMode && s.d.Events != nil {
		mux.HandleFunc("/debug/chat", corsMiddleware(s.handleDebugChat))
		mux.HandleFunc("/debug/cheer", corsMiddleware(s.handleDebugCheer))
		mux.HandleFunc("/debug/like", corsMiddleware(s.handleDebugLike))
		mux.HandleFunc("/debug/stream-online", corsMiddleware(handleDebugStreamOnline))
		mux.HandleFunc("/debug/stream-offline", corsMiddleware(handleDebugStreamOffline))
	}
}

// Start listens on port in the background. Binding errors are returned.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.Info("Starting web server", zap.String("address", addr))

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	// 即時のバインドエラーだけ待つ
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
		return
	}
	logger.Info("Web server shutdown complete")
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.d.Hub != nil {
		clients = s.d.Hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    version.Current(),
		"ws_clients": clients,
	})
}
