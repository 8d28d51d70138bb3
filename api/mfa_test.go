package api

import (
	"net/http"
	"strings"
	"testing"

	"louyass/core"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMFALifecycle(t *testing.T) {
	s := newTestServer(t)
	u, token := s.account(t, core.RoleOwner)

	rec := s.do(t, http.MethodPost, "/auth/mfa/enroll", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enroll MFAEnrollResponse
	decode(t, rec, &enroll)
	require.NotEmpty(t, enroll.Secret)
	assert.True(t, strings.HasPrefix(enroll.QRCode, "data:image/png;base64,"))
	assert.Contains(t, enroll.URL, "otpauth://totp/")

	// not enabled until a code is verified
	s.login(t, u.Email, "motdepasse123")

	rec = s.do(t, http.MethodPost, "/auth/mfa/verify", token, MFACodeRequest{Code: "000000"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(t, http.MethodPost, "/auth/mfa/verify", token, MFACodeRequest{Code: "12ab"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	code, err := totp.GenerateCode(enroll.Secret, s.clock.Now())
	require.NoError(t, err)
	rec = s.do(t, http.MethodPost, "/auth/mfa/verify", token, MFACodeRequest{Code: code})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// enabling MFA ends existing sessions
	rec = s.do(t, http.MethodGet, "/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": u.Email, "password": "motdepasse123"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Code MFA requis", detail(t, rec))

	rec = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": u.Email, "password": "motdepasse123", "code": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok TokenResponse
	decode(t, rec, &tok)

	rec = s.do(t, http.MethodGet, "/auth/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me core.User
	decode(t, rec, &me)
	assert.True(t, me.MFAEnabled)

	rec = s.do(t, http.MethodPost, "/auth/mfa/enroll", tok.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/mfa/disable", tok.AccessToken, MFACodeRequest{Code: code})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	s.login(t, u.Email, "motdepasse123")
}
