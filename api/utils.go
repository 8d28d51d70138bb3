package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"louyass/core"
	"louyass/service"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Detail string `json:"detail"`
}

var (
	connStringPattern = regexp.MustCompile(`(?:sqlite|redis|rediss|smtp|https?)://[^\s"']+`)
	filePathPattern   = regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[^\\/:*?"<>|\s]+[\\/])+[^\\/:*?"<>|\s]+`)
	secretPattern     = regexp.MustCompile(`(?i)(password|secret|token|key)[:=]\s*["']?[^"'\s]+["']?`)
	controlPattern    = regexp.MustCompile(`[\x00-\x1F\x7F]`)
)

// sanitizeErrorMessage removes sensitive information from error messages before sending to clients
func sanitizeErrorMessage(message string) string {
	message = connStringPattern.ReplaceAllString(message, "[CONNECTION]")
	message = filePathPattern.ReplaceAllString(message, "[FILE_PATH]")
	message = secretPattern.ReplaceAllString(message, "$1=[REDACTED]")

	// Limit message length to prevent information disclosure through verbose errors
	if len(message) > core.MaxErrorMessageLength {
		message = message[:core.MaxErrorMessageLength-3] + "..."
	}
	return message
}

// sanitizeLogMessage prevents log injection through user supplied values
func sanitizeLogMessage(message string) string {
	message = strings.ReplaceAll(message, "\n", "\\n")
	message = strings.ReplaceAll(message, "\r", "\\r")
	return controlPattern.ReplaceAllString(message, "")
}

// respondJSON writes a JSON response with proper error handling
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// writeError writes an error response to the client and logs it with proper sanitization
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if logger != nil {
		switch {
		case statusCode >= 500:
			logger.Errorw(message, "error", err, "status_code", statusCode)
		case err != nil:
			logger.Debugw(message, "error", err, "status_code", statusCode)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Detail: sanitizeErrorMessage(message)})
}

// writeServiceError maps a service error to its HTTP status. Errors that are
// not *service.Error are reported as 500 without leaking their text.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		if svcErr.Status >= 500 {
			a.logger.Errorw("Request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", GetRequestID(r.Context()),
				"error", err)
		}
		writeError(w, svcErr.Status, svcErr.Detail, nil, nil)
		return
	}
	writeError(w, http.StatusInternalServerError, "Erreur interne du serveur", err, a.logger)
}

// decodeJSONBody decodes a size limited JSON body into dst and runs the
// struct validator on it. On failure the error reply is already written.
func (a *API) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.API.BodyLimit)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("JSON invalide à la position %d", syntaxError.Offset), err, a.logger)
		case errors.As(err, &unmarshalTypeError):
			writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Type invalide pour le champ '%s'", unmarshalTypeError.Field), err, a.logger)
		case errors.As(err, &maxBytesError):
			writeError(w, http.StatusRequestEntityTooLarge, "Corps de requête trop volumineux", err, a.logger)
		case strings.HasPrefix(err.Error(), "json: unknown field"):
			writeError(w, http.StatusUnprocessableEntity, "Champ inconnu: "+strings.TrimPrefix(err.Error(), "json: unknown field "), err, a.logger)
		default:
			writeError(w, http.StatusBadRequest, "Corps JSON invalide", err, a.logger)
		}
		return false
	}

	if err := a.validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, validationMessage(err), err, a.logger)
		return false
	}
	return true
}

// newValidator returns a validator reporting json field names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage renders the first failed rule
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Requête invalide"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Le champ '%s' est obligatoire", fe.Field())
	case "oneof":
		return fmt.Sprintf("Le champ '%s' doit valoir l'une des valeurs: %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("Le champ '%s' doit être un email valide", fe.Field())
	case "min", "max", "gt", "gte", "lt", "lte":
		return fmt.Sprintf("Le champ '%s' ne respecte pas la contrainte %s=%s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("Le champ '%s' est invalide", fe.Field())
	}
}

// pathID parses a positive integer path variable. On failure the 422 reply
// is already written.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Identifiant invalide: %s", name), nil, nil)
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional integer query parameter
func queryInt64(r *http.Request, name string) (int64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("paramètre '%s' invalide", name)
	}
	return v, true, nil
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("paramètre '%s' invalide", name)
	}
	return &v, nil
}

// queryFloat parses an optional decimal query parameter
func queryFloat(r *http.Request, name string) (*float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("paramètre '%s' invalide", name)
	}
	return &v, nil
}

// parseTrustedProxies parses CIDRs already checked by config validation
func parseTrustedProxies(cidrs []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, cidr := range cidrs {
		if _, n, err := net.ParseCIDR(cidr); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

// getRealIP returns the client address. X-Forwarded-For and X-Real-IP are
// only honoured when the direct peer is a trusted proxy.
func getRealIP(r *http.Request, trusted []*net.IPNet) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	if len(trusted) == 0 {
		return directIP
	}

	peer := net.ParseIP(directIP)
	isTrusted := false
	for _, n := range trusted {
		if peer != nil && n.Contains(peer) {
			isTrusted = true
			break
		}
	}
	if !isTrusted {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}
