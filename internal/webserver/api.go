package webserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/status"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	defaultRankingLimit = 10
	maxListLimit        = 500
)

func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxListLimit)
}

// handleSettings returns every setting on GET and applies a batch on PUT.
// Secret values are masked on read.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all, err := s.d.Settings.GetAllSettings()
		if err != nil {
			logger.Error("Failed to get settings", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		for k, v := range all {
			if v.Type == settings.SettingTypeSecret {
				v.Value = ""
				all[k] = v
			}
		}
		writeJSON(w, http.StatusOK, all)

	case http.MethodPut:
		var values map[string]string
		if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.d.Settings.SetSettings(values); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if s.d.Live != nil {
			if err := s.d.Live.Reload(s.d.Settings); err != nil {
				logger.Error("Failed to reload game settings", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "settings saved but reload failed")
				return
			}
		}
		logger.Info("Settings updated", zap.Int("count", len(values)))
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "updated": len(values)})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, status.GetStreamStatus())
}

func handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries := logger.GetLogBuffer()
	if limit := queryLimit(r, 0); limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": entries, "count": len(entries)})
}

// handleUser returns /api/users/{id}: the fan record plus roulette holdings.
func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}

	ctx := r.Context()
	user, err := s.d.Fans.Lookup(ctx, userID)
	if err != nil {
		logger.Error("Failed to look up fan user", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	resp := map[string]any{"user": user}
	if s.d.Roulette != nil {
		tickets, err := s.d.Roulette.Tickets(ctx, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load roulette tickets")
			return
		}
		keep, err := s.d.Roulette.KeepItems(ctx, userID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load keep items")
			return
		}
		resp["roulette_tickets"] = tickets
		resp["keep_items"] = keep
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.d.Ranking == nil {
		writeError(w, http.StatusNotFound, "ranking is not enabled")
		return
	}
	entries, err := s.d.Ranking.Top(r.Context(), queryLimit(r, defaultRankingLimit))
	if err != nil {
		logger.Error("Failed to read ranking", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "ranking unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.d.Roulette.Templates(r.Context())
		if err != nil {
			logger.Error("Failed to get roulette templates", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load templates")
			return
		}
		if list == nil {
			list = []roulette.Template{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": list})
	case http.MethodPost:
		var t roulette.Template
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t.ID = ""
		s.saveTemplate(w, r, t, http.StatusCreated)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTemplateByID serves /api/roulette/templates/{id}.
func (s *Server) handleTemplateByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/roulette/templates/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "template id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		t, err := s.d.Roulette.Template(r.Context(), id)
		if err != nil {
			writeTemplateError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPut:
		if _, err := s.d.Roulette.Template(r.Context(), id); err != nil {
			writeTemplateError(w, err)
			return
		}
		var t roulette.Template
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t.ID = id
		s.saveTemplate(w, r, t, http.StatusOK)
	case http.MethodDelete:
		if err := s.d.Roulette.DeleteTemplate(r.Context(), id); err != nil {
			writeTemplateError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) saveTemplate(w http.ResponseWriter, r *http.Request, t roulette.Template, okStatus int) {
	saved, err := s.d.Roulette.SaveTemplate(r.Context(), t)
	if err != nil {
		writeTemplateError(w, err)
		return
	}
	writeJSON(w, okStatus, saved)
}

func writeTemplateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, roulette.ErrInvalidTemplate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, roulette.ErrTemplateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("Roulette template operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "template operation failed")
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	list, err := s.d.Roulette.History(r.Context(), queryLimit(r, defaultHistoryLimit))
	if err != nil {
		logger.Error("Failed to get roulette history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	counters, err := s.d.Roulette.Counters(r.Context())
	if err != nil {
		logger.Error("Failed to get roulette counters", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load counters")
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		qs, err := s.d.Quiz.Questions(r.Context())
		if err != nil {
			logger.Error("Failed to get quiz questions", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load questions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": qs})
	case http.MethodPut:
		var qs []quiz.Question
		if err := json.NewDecoder(r.Body).Decode(&qs); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.d.Quiz.SaveQuestions(r.Context(), qs); err != nil {
			if errors.Is(err, quiz.ErrInvalidQuestion) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.Error("Failed to save quiz questions", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save questions")
			return
		}
		saved, err := s.d.Quiz.Questions(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load questions")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": saved})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleQuizAsk opens a question immediately.
func (s *Server) handleQuizAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q, err := s.d.Quiz.Ask(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": q.ID, "question": q.Question})
	case errors.Is(err, quiz.ErrDisabled), errors.Is(err, quiz.ErrAlreadyWaiting), errors.Is(err, quiz.ErrNoQuestions):
		writeError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("Failed to ask quiz question", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to ask question")
	}
}
