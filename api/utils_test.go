package api

import (
	"net/http/httptest"
	"strings"
	"testing"

	"louyass/core"
	"louyass/service"

	"github.com/stretchr/testify/assert"
)

func TestGetRealIP(t *testing.T) {
	trusted := parseTrustedProxies([]string{"10.0.0.0/8", "not-a-cidr"})
	assert.Len(t, trusted, 1)

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		trusted    bool
		want       string
	}{
		{"direct peer", "203.0.113.5:1234", "", "", true, "203.0.113.5"},
		{"forwarded by trusted proxy", "10.1.2.3:80", "198.51.100.9, 10.1.2.3", "", true, "198.51.100.9"},
		{"real ip header", "10.1.2.3:80", "", "198.51.100.10", true, "198.51.100.10"},
		{"spoofed from untrusted peer", "203.0.113.5:1234", "1.2.3.4", "", true, "203.0.113.5"},
		{"no trusted proxies configured", "10.1.2.3:80", "1.2.3.4", "", false, "10.1.2.3"},
		{"invalid forwarded value", "10.1.2.3:80", "not-an-ip", "", true, "10.1.2.3"},
		{"remote addr without port", "203.0.113.5", "", "", true, "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			nets := trusted
			if !tt.trusted {
				nets = nil
			}
			assert.Equal(t, tt.want, getRealIP(r, nets))
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	msg := sanitizeErrorMessage("open /var/lib/louyass/data.db: password=hunter2 via redis://cache:6379/0")
	assert.NotContains(t, msg, "/var/lib")
	assert.NotContains(t, msg, "hunter2")
	assert.NotContains(t, msg, "cache:6379")
	assert.Contains(t, msg, "[FILE_PATH]")
	assert.Contains(t, msg, "[CONNECTION]")

	long := sanitizeErrorMessage(strings.Repeat("a", core.MaxErrorMessageLength*2))
	assert.Len(t, long, core.MaxErrorMessageLength)
	assert.True(t, strings.HasSuffix(long, "..."))

	assert.Equal(t, "Chambre non trouvée", sanitizeErrorMessage("Chambre non trouvée"))
}

func TestSanitizeLogMessage(t *testing.T) {
	assert.Equal(t, `a\nb\rc`, sanitizeLogMessage("a\nb\rc\x00"))
}

func TestWriteServiceError(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.api.writeServiceError(rec, httptest.NewRequest("GET", "/", nil), service.ErrRoomLeased)
	assert.Equal(t, 409, rec.Code)
	assert.Equal(t, service.ErrRoomLeased.Detail, detail(t, rec))

	rec = httptest.NewRecorder()
	s.api.writeServiceError(rec, httptest.NewRequest("GET", "/", nil), assert.AnError)
	assert.Equal(t, 500, rec.Code)
	assert.Equal(t, "Erreur interne du serveur", detail(t, rec))
}

func TestValidationMessage(t *testing.T) {
	v := newValidator()
	err := v.Struct(service.UserCreate{Email: "pas-un-email", Password: "motdepasse123", Nom: "Ba", Role: core.RoleTenant})
	assert.Equal(t, "Le champ 'email' doit être un email valide", validationMessage(err))

	err = v.Struct(service.UserCreate{Email: "a@b.sn", Password: "motdepasse123", Nom: "Ba", Role: "admin"})
	assert.Contains(t, validationMessage(err), "Le champ 'role' doit valoir")

	err = v.Struct(service.UserCreate{Email: "a@b.sn", Password: "court", Nom: "Ba", Role: core.RoleTenant})
	assert.Equal(t, "Le champ 'password' ne respecte pas la contrainte min=8", validationMessage(err))
}
