package api

import (
	"net/http"
	"strings"
	"time"

	"louyass/service"
)

// LoginRequest is the JSON login body. code is required when MFA is enabled.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Code     string `json:"code,omitempty" validate:"omitempty,numeric,len=6"`
}

// TokenResponse is returned by a successful login
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// register godoc
//
//	@Summary	Create an account
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		user	body		service.UserCreate	true	"Account"
//	@Success	201		{object}	core.User
//	@Failure	400		{object}	ErrorResponse	"Email already used"
//	@Failure	422		{object}	ErrorResponse
//	@Router		/auth/register [post]
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in service.UserCreate
	if !a.decodeJSONBody(w, r, &in) {
		return
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	u, err := a.services.Users.Register(r.Context(), in)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.logger.Infow("Account registered", "user_id", u.ID, "role", u.Role)
	a.respondJSON(w, u, http.StatusCreated)
}

// readLoginRequest accepts JSON or the OAuth2 password form (username/password)
func (a *API) readLoginRequest(w http.ResponseWriter, r *http.Request) (LoginRequest, bool) {
	var req LoginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		r.Body = http.MaxBytesReader(w, r.Body, a.config.API.BodyLimit)
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "Formulaire invalide", err, a.logger)
			return req, false
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
		req.Code = r.PostForm.Get("code")
		if err := a.validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, validationMessage(err), nil, nil)
			return req, false
		}
		return req, true
	}
	return req, a.decodeJSONBody(w, r, &req)
}

// login godoc
//
//	@Summary		Log in
//	@Description	Exchanges credentials (and the TOTP code when MFA is enabled) for a bearer token. Also accepts the OAuth2 password form.
//	@Tags			auth
//	@Accept			json
//	@Accept			x-www-form-urlencoded
//	@Produce		json
//	@Param			credentials	body		LoginRequest	true	"Credentials"
//	@Success		200			{object}	TokenResponse
//	@Failure		400			{object}	ErrorResponse	"Identifiants incorrects"
//	@Failure		401			{object}	ErrorResponse	"MFA code required or invalid"
//	@Failure		423			{object}	ErrorResponse	"Account locked"
//	@Failure		429			{object}	ErrorResponse
//	@Router			/auth/login [post]
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	req, ok := a.readLoginRequest(w, r)
	if !ok {
		return
	}

	u, err := a.services.Users.Authenticate(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password, req.Code)
	if err != nil {
		a.logger.Infow("Login failed",
			"email", sanitizeLogMessage(req.Email),
			"ip", getRealIP(r, a.trustedProxies),
			"error", err)
		a.writeServiceError(w, r, err)
		return
	}

	token, expiresAt, err := a.tokens.Issue(r.Context(), u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", err, a.logger)
		return
	}
	a.logger.Infow("Login succeeded", "user_id", u.ID)
	a.respondJSON(w, TokenResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt.UTC()}, http.StatusOK)
}

// logout godoc
//
//	@Summary	Log out
//	@Tags		auth
//	@Success	204
//	@Failure	401	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/auth/logout [post]
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	claims, _ := GetClaims(r.Context())
	if err := a.tokens.Revoke(r.Context(), claims); err != nil {
		writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", err, a.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// me godoc
//
//	@Summary	Current user
//	@Tags		auth
//	@Produce	json
//	@Success	200	{object}	core.User
//	@Failure	401	{object}	ErrorResponse
//	@Security	BearerAuth
//	@Router		/auth/me [get]
func (a *API) me(w http.ResponseWriter, r *http.Request) {
	a.respondJSON(w, currentUser(r), http.StatusOK)
}
