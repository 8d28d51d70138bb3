package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"louyass/core"
	"louyass/metrics"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// UserCreate is the registration body
type UserCreate struct {
	Email          string    `json:"email" validate:"required,email,max=254"`
	Password       string    `json:"password" validate:"required,min=8,max=72"`
	Nom            string    `json:"nom" validate:"required,max=100"`
	Prenom         string    `json:"prenom" validate:"max=100"`
	NomUtilisateur string    `json:"nom_utilisateur" validate:"max=100"`
	Telephone      string    `json:"telephone" validate:"max=30"`
	CNI            string    `json:"cni" validate:"max=50"`
	Role           core.Role `json:"role" validate:"required,oneof=proprietaire locataire"`
}

// UserUpdate holds the optional profile changes. Role and password are not
// editable here.
type UserUpdate struct {
	Email          *string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Nom            *string `json:"nom,omitempty" validate:"omitempty,max=100"`
	Prenom         *string `json:"prenom,omitempty" validate:"omitempty,max=100"`
	NomUtilisateur *string `json:"nom_utilisateur,omitempty" validate:"omitempty,max=100"`
	Telephone      *string `json:"telephone,omitempty" validate:"omitempty,max=30"`
	CNI            *string `json:"cni,omitempty" validate:"omitempty,max=50"`
}

// LockoutPolicy locks an account for Duration after Threshold consecutive
// failed logins. A zero Threshold disables the lockout.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// UserService manages accounts and credentials
type UserService struct {
	users     UserStore
	lockout   LockoutPolicy
	mfaIssuer string
	clock     clockwork.Clock
	logger    *zap.SugaredLogger
}

// NewUserService creates the user service
func NewUserService(users UserStore, lockout LockoutPolicy, mfaIssuer string, clock clockwork.Clock, logger *zap.SugaredLogger) *UserService {
	if users == nil {
		panic("users storage is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if mfaIssuer == "" {
		mfaIssuer = "Louyass"
	}
	return &UserService{users: users, lockout: lockout, mfaIssuer: mfaIssuer, clock: clock, logger: logger}
}

// Register creates an account
func (s *UserService) Register(ctx context.Context, in UserCreate) (*core.User, error) {
	if !in.Role.IsValid() {
		return nil, badRequest("Rôle utilisateur non reconnu")
	}
	u := &core.User{
		Email:          in.Email,
		Nom:            in.Nom,
		Prenom:         in.Prenom,
		NomUtilisateur: in.NomUtilisateur,
		Telephone:      in.Telephone,
		CNI:            in.CNI,
		Role:           in.Role,
		CreeLe:         s.clock.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u, in.Password); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, badRequest("Email déjà utilisé.")
		}
		return nil, internal("create user", err)
	}
	return u, nil
}

// Authenticate checks credentials and, when enabled, the TOTP code.
//
// Unknown e-mails and wrong passwords answer the same error. Each wrong
// password or code counts towards the lockout; a successful login clears it.
func (s *UserService) Authenticate(ctx context.Context, email, password, code string) (*core.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			metrics.LoginAttempts.WithLabelValues("failure").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, internal("load user", err)
	}

	now := s.clock.Now()
	if u.IsLocked(now) {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return nil, ErrAccountLocked
	}
	if !storage.CheckPassword(u, password) {
		return nil, s.recordFailure(ctx, u, ErrInvalidCredentials)
	}

	if u.MFAEnabled {
		if code == "" {
			metrics.LoginAttempts.WithLabelValues("mfa_required").Inc()
			return nil, ErrMFARequired
		}
		if !s.validCode(code, u.TOTPSecret) {
			return nil, s.recordFailure(ctx, u, ErrInvalidMFACode)
		}
	}

	if u.FailedLoginAttempts > 0 || u.LockedUntil != nil {
		if err := s.users.ResetFailedLogins(ctx, u.ID); err != nil {
			s.logger.Warnw("Failed to reset login failures", "user_id", u.ID, "error", err)
		}
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	}
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	return u, nil
}

func (s *UserService) recordFailure(ctx context.Context, u *core.User, cause error) error {
	attempts, err := s.users.RecordFailedLogin(ctx, u.ID, s.lockout.Threshold, s.lockout.Duration, s.clock.Now())
	if err != nil {
		s.logger.Errorw("Failed to record login failure", "user_id", u.ID, "error", err)
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		return cause
	}
	if s.lockout.Threshold > 0 && attempts >= s.lockout.Threshold {
		metrics.LoginAttempts.WithLabelValues("locked").Inc()
		return ErrAccountLocked
	}
	metrics.LoginAttempts.WithLabelValues("failure").Inc()
	return cause
}

func (s *UserService) validCode(code, secret string) bool {
	if secret == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, s.clock.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// Get returns an account
func (s *UserService) Get(ctx context.Context, id int64) (*core.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrUserNotFound, "Utilisateur non trouvé", "load user")
	}
	return u, nil
}

// List returns a page of accounts and the total count
func (s *UserService) List(ctx context.Context, skip, limit int) ([]core.User, int64, error) {
	if err := validatePage(skip, limit); err != nil {
		return nil, 0, err
	}
	items, err := s.users.ListUsers(ctx, limit, skip)
	if err != nil {
		return nil, 0, internal("list users", err)
	}
	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return nil, 0, internal("count users", err)
	}
	return items, total, nil
}

// Update edits the caller's own profile
func (s *UserService) Update(ctx context.Context, caller *core.User, id int64, in UserUpdate) (*core.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.ID != id {
		return nil, forbidden("Vous ne pouvez modifier que votre propre compte")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Nom != nil {
		u.Nom = *in.Nom
	}
	if in.Prenom != nil {
		u.Prenom = *in.Prenom
	}
	if in.NomUtilisateur != nil {
		u.NomUtilisateur = *in.NomUtilisateur
	}
	if in.Telephone != nil {
		u.Telephone = *in.Telephone
	}
	if in.CNI != nil {
		u.CNI = *in.CNI
	}
	if err := s.users.UpdateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, conflict("Cet email est déjà enregistré par un autre utilisateur.")
		}
		return nil, notFoundOr(err, storage.ErrUserNotFound, "Utilisateur non trouvé", "update user")
	}
	return u, nil
}

// Delete removes the caller's own account
func (s *UserService) Delete(ctx context.Context, caller *core.User, id int64) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	if caller.ID != id {
		return forbidden("Vous ne pouvez supprimer que votre propre compte")
	}
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return notFoundOr(err, storage.ErrUserNotFound, "Utilisateur non trouvé", "delete user")
	}
	s.logger.Infow("Account deleted", "user_id", id)
	return nil
}

// EnrollMFA generates a TOTP secret for the caller. MFA stays disabled until
// ConfirmMFA validates a first code.
func (s *UserService) EnrollMFA(ctx context.Context, caller *core.User) (*otp.Key, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if caller.MFAEnabled {
		return nil, badRequest("MFA déjà activée")
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.mfaIssuer, AccountName: caller.Email})
	if err != nil {
		return nil, internal("generate totp secret", err)
	}
	if err := s.users.SetMFA(ctx, caller.ID, key.Secret(), false); err != nil {
		return nil, notFoundOr(err, storage.ErrUserNotFound, "Utilisateur non trouvé", "store totp secret")
	}
	return key, nil
}

// ConfirmMFA enables MFA once the caller proves they hold the secret
func (s *UserService) ConfirmMFA(ctx context.Context, caller *core.User, code string) error {
	u, err := s.reload(ctx, caller)
	if err != nil {
		return err
	}
	if u.TOTPSecret == "" {
		return badRequest("Aucune inscription MFA en cours")
	}
	if !s.validCode(code, u.TOTPSecret) {
		return ErrInvalidMFACode
	}
	if err := s.users.SetMFA(ctx, u.ID, u.TOTPSecret, true); err != nil {
		return internal("enable mfa", err)
	}
	s.logger.Infow("MFA enabled", "user_id", u.ID)
	return nil
}

// DisableMFA turns MFA off after checking a current code
func (s *UserService) DisableMFA(ctx context.Context, caller *core.User, code string) error {
	u, err := s.reload(ctx, caller)
	if err != nil {
		return err
	}
	if !u.MFAEnabled {
		return badRequest("MFA non activée")
	}
	if !s.validCode(code, u.TOTPSecret) {
		return ErrInvalidMFACode
	}
	if err := s.users.SetMFA(ctx, u.ID, "", false); err != nil {
		return internal("disable mfa", err)
	}
	s.logger.Infow("MFA disabled", "user_id", u.ID)
	return nil
}

// reload fetches the caller from storage so credential fields are current
func (s *UserService) reload(ctx context.Context, caller *core.User) (*core.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	u, err := s.users.GetUserByID(ctx, caller.ID)
	if err != nil {
		return nil, notFoundOr(err, storage.ErrUserNotFound, "Utilisateur non trouvé", fmt.Sprintf("reload user %d", caller.ID))
	}
	return u, nil
}
