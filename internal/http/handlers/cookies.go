package handlers

import (
	"net/http"
	"time"

	"github.com/hongminglow/channel-be/internal/auth"
	"github.com/hongminglow/channel-be/internal/middleware"
)

const refreshTokenCookie = "refreshToken"

func (h *UserHandler) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	tokens := h.issuer.Tokens()
	http.SetCookie(w, h.sessionCookie(middleware.AccessTokenCookie, pair.AccessToken, tokens.TTL(auth.AccessToken)))
	http.SetCookie(w, h.sessionCookie(refreshTokenCookie, pair.RefreshToken, tokens.TTL(auth.RefreshToken)))
}

func (h *UserHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie} {
		c := h.sessionCookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *UserHandler) sessionCookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
