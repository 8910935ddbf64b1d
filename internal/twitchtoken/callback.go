package twitchtoken

import (
	"fmt"
	"html"
	"net/http"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>%s</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 80px;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`

// CallbackHandler completes the OAuth authorization code flow.
func CallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errParam := q.Get("error"); errParam != "" {
		errDesc := q.Get("error_description")
		logger.Error("OAuth error", zap.String("error", errParam), zap.String("description", errDesc))
		writePage(w, http.StatusBadRequest, "Authorization failed", errParam+": "+errDesc)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "code not found", http.StatusBadRequest)
		return
	}
	if _, err := ExchangeCode(r.Context(), code); err != nil {
		logger.Error("Failed to exchange OAuth code", zap.Error(err))
		writePage(w, http.StatusInternalServerError, "Authorization failed", err.Error())
		return
	}
	writePage(w, http.StatusOK, "Authorized", "You can close this window.")
}

// AuthRedirectHandler sends the browser to the Twitch authorize page.
func AuthRedirectHandler(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, GetAuthURL(), http.StatusFound)
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, pageTemplate, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}
