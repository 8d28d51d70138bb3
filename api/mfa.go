package api

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"net/http"
)

// MFACodeRequest carries a TOTP code
type MFACodeRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

// MFAEnrollResponse holds what an authenticator app needs
type MFAEnrollResponse struct {
	Secret  string `json:"secret"`
	QRCode  string `json:"qr_code"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// enrollMFA godoc
//
//	@Summary		Start MFA enrollment
//	@Description	Generates a TOTP secret and QR code. MFA is enabled once /auth/mfa/verify accepts a code.
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	MFAEnrollResponse
//	@Failure		400	{object}	ErrorResponse	"MFA already enabled"
//	@Security		BearerAuth
//	@Router			/auth/mfa/enroll [post]
func (a *API) enrollMFA(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	key, err := a.services.Users.EnrollMFA(r.Context(), user)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.users.Invalidate(user.ID)

	qrImage, err := key.Image(200, 200)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", err, a.logger)
		return
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qrImage); err != nil {
		writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", err, a.logger)
		return
	}

	a.logger.Infow("AUDIT: MFA enrollment initiated",
		"action", "mfa_enroll",
		"user_id", user.ID,
		"source_ip", getRealIP(r, a.trustedProxies))

	a.respondJSON(w, MFAEnrollResponse{
		Secret:  key.Secret(),
		QRCode:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		URL:     key.URL(),
		Message: "Scannez le QR code avec votre application d'authentification puis validez un code.",
	}, http.StatusOK)
}

// verifyMFA godoc
//
//	@Summary		Confirm MFA enrollment
//	@Description	Enables MFA and revokes every other session of the account
//	@Tags			auth
//	@Accept			json
//	@Param			code	body	MFACodeRequest	true	"TOTP code"
//	@Success		204
//	@Failure		401	{object}	ErrorResponse	"Invalid code"
//	@Security		BearerAuth
//	@Router			/auth/mfa/verify [post]
func (a *API) verifyMFA(w http.ResponseWriter, r *http.Request) {
	var req MFACodeRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	user := currentUser(r)
	if err := a.services.Users.ConfirmMFA(r.Context(), user, req.Code); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.afterMFAChange(r, user.ID, "mfa_enabled")
	w.WriteHeader(http.StatusNoContent)
}

// disableMFA godoc
//
//	@Summary	Disable MFA
//	@Tags		auth
//	@Accept		json
//	@Param		code	body	MFACodeRequest	true	"Current TOTP code"
//	@Success	204
//	@Failure	400	{object}	ErrorResponse	"MFA not enabled"
//	@Failure	401	{object}	ErrorResponse	"Invalid code"
//	@Security	BearerAuth
//	@Router		/auth/mfa/disable [post]
func (a *API) disableMFA(w http.ResponseWriter, r *http.Request) {
	var req MFACodeRequest
	if !a.decodeJSONBody(w, r, &req) {
		return
	}
	user := currentUser(r)
	if err := a.services.Users.DisableMFA(r.Context(), user, req.Code); err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.afterMFAChange(r, user.ID, "mfa_disabled")
	w.WriteHeader(http.StatusNoContent)
}

// afterMFAChange drops the cached user and revokes its sessions; the
// current token goes with them
func (a *API) afterMFAChange(r *http.Request, userID int64, action string) {
	a.users.Invalidate(userID)
	n, err := a.tokens.RevokeAll(r.Context(), userID)
	if err != nil {
		a.logger.Warnw("Failed to revoke sessions after MFA change", "user_id", userID, "error", err)
	}
	a.logger.Infow("AUDIT: MFA settings changed",
		"action", action,
		"user_id", userID,
		"revoked_sessions", n,
		"source_ip", getRealIP(r, a.trustedProxies))
}
