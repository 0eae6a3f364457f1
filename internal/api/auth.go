package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"medstock/m/domain"
	"medstock/m/internal/auth"
	"medstock/m/internal/ratelimit"
)

// authMiddleware verifies the bearer token and stores the typed claims on the request context.
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.sessions.Verify(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			h.fail(w, r, err, "authentication failed")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// ownerID returns the authenticated caller's id. Routes using it sit behind authMiddleware.
func ownerID(r *http.Request) int64 {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		return 0
	}
	return claims.UserID
}

func (h *Handler) rateLimit(rule ratelimit.Rule, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter != nil {
				ip := clientIP(r)
				if !h.limiter.Allow(rule, ip) {
					h.log.WithFields(logrus.Fields{
						"client_ip":       ip,
						"rule":            rule.Name,
						"tracked_clients": h.limiter.Len(),
					}).Warn("rate limit exceeded")
					h.fail(w, r, domain.RateLimited(message), message)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the Cloudflare header, then the address RealIP resolved.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token,omitempty"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.credentials.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, "registration failed")
		return
	}

	token, err := h.sessions.Issue(user)
	if err != nil {
		h.fail(w, r, err, "unable to generate token")
		return
	}
	respondData(w, http.StatusCreated, authResponse{User: *user, Token: token})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.credentials.VerifyCredentials(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err, "login failed")
		return
	}

	token, err := h.sessions.Issue(user)
	if err != nil {
		h.fail(w, r, err, "unable to generate token")
		return
	}
	respondData(w, http.StatusOK, authResponse{User: *user, Token: token})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFrom(r.Context())
	respondData(w, http.StatusOK, authResponse{User: domain.User{
		ID:       claims.UserID,
		Username: claims.Username,
		Email:    claims.Email,
	}})
}
