package api

import (
	"errors"
	"net/http"
	"strings"

	"louyass/core"
)

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// extractToken reads the bearer token. The websocket endpoint also accepts a
// token query parameter since browsers cannot set headers on upgrade.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if r.URL.Path == "/ws" {
		return r.URL.Query().Get("token")
	}
	return ""
}

// jwtAuthMiddleware validates the access token and loads the user into the context
func (a *API) jwtAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "Non authentifié", nil, nil)
			return
		}

		claims, err := a.tokens.Validate(r.Context(), tokenString)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrTokenRevoked) {
				writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", err, a.logger)
				return
			}
			a.logger.Debugw("Rejected token", "error", sanitizeLogMessage(err.Error()))
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "Impossible de valider les identifiants", nil, nil)
			return
		}

		user, err := a.users.Get(r.Context(), claims.UserID)
		if err != nil {
			// deleted accounts keep no valid session
			a.logger.Debugw("Token user not found", "user_id", claims.UserID, "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "Impossible de valider les identifiants", nil, nil)
			return
		}

		ctx := WithUser(r.Context(), user)
		ctx = WithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects authenticated users whose role is not listed
func RequireRole(roles ...core.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Non authentifié", nil, nil)
				return
			}
			for _, role := range roles {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, roleDenied(roles), nil, nil)
		})
	}
}

func roleDenied(roles []core.Role) string {
	if len(roles) == 1 {
		switch roles[0] {
		case core.RoleOwner:
			return "Accès réservé aux propriétaires"
		case core.RoleTenant:
			return "Accès réservé aux locataires"
		}
	}
	return "Action non autorisée"
}

// currentUser returns the authenticated user. Only called behind jwtAuthMiddleware.
func currentUser(r *http.Request) *core.User {
	u, _ := GetUser(r.Context())
	return u
}
