package webserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/bot"
	"github.com/ichi0g0y/twitch-fanscore/internal/status"
)

// debugUser is the body accepted by the debug event endpoints.
type debugUser struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	Text     string `json:"text"`
	Bits     int    `json:"bits"`
	IsAdmin  bool   `json:"is_admin"`
}

func decodeDebugUser(w http.ResponseWriter, r *http.Request) (debugUser, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return debugUser{}, false
	}
	var req debugUser
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return debugUser{}, false
	}
	if req.Username == "" {
		req.Username = "DebugUser"
	}
	if req.UserID == "" {
		req.UserID = "debug-" + strings.ToLower(req.Username)
	}
	return req, true
}

func (s *Server) handleDebugChat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDebugUser(w, r)
	if !ok {
		return
	}
	s.d.Events.HandleChat(r.Context(), bot.ChatMessage{
		UserID:   req.UserID,
		Nickname: req.Username,
		Tag:      strings.ToLower(req.Username),
		Text:     req.Text,
		IsAdmin:  req.IsAdmin,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDebugCheer(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDebugUser(w, r)
	if !ok {
		return
	}
	if req.Bits == 0 {
		req.Bits = 100
	}
	s.d.Events.HandleGift(r.Context(), req.UserID, req.Username, strings.ToLower(req.Username), req.Bits)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDebugLike(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDebugUser(w, r)
	if !ok {
		return
	}
	s.d.Events.HandleLike(r.Context(), req.UserID, req.Username, strings.ToLower(req.Username))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleDebugStreamOnline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	now := time.Now()
	status.SetStreamOnline("debug-stream-"+now.Format("20060102150405"), now)
	writeJSON(w, http.StatusOK, status.GetStreamStatus())
}

func handleDebugStreamOffline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status.SetStreamOffline()
	writeJSON(w, http.StatusOK, status.GetStreamStatus())
}
