package authx

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/audit"
	"signflow.dev/internal/crypto"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/ids"
	"signflow.dev/internal/otp"
)

const (
	defaultAccessTTL    = 30 * time.Minute
	defaultRefreshTTL   = 7 * 24 * time.Hour
	passwordResetOTPTTL = 15 * time.Minute
	minPasswordLen      = 6
	registerDefaultPlan = "gratuito"
)

// MembershipResolver is the narrow slice of internal/tenant that switch-
// tenant and refresh need: the caller's role inside a non-personal tenant.
type MembershipResolver interface {
	ActiveMemberRole(ctx context.Context, q dbx.Querier, tenantID, userID string) (role string, ok bool, err error)
}

// Service implements identity, sessions, and both authorization gates.
type Service struct {
	db       *sql.DB
	store    Store
	tenants  TenantProvisioner
	members  MembershipResolver
	chain    *audit.Chain
	notifier PasswordResetNotifier
	now      func() time.Time

	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// PasswordResetNotifier is the outbound port for delivering OTPs - kept
// minimal so authx never imports internal/notify directly.
type PasswordResetNotifier interface {
	SendOTP(ctx context.Context, tenantID, recipient string, channel otp.Channel, code string) error
}

// NewService constructs Service. accessSecret/refreshSecret must each be at
// least 256 bits, matching the spec's JWT_SECRET/JWT_REFRESH_SECRET floor.
func NewService(db *sql.DB, store Store, tenants TenantProvisioner, members MembershipResolver,
	chain *audit.Chain, notifier PasswordResetNotifier, accessSecret, refreshSecret []byte) *Service {
	return &Service{
		db: db, store: store, tenants: tenants, members: members,
		chain: chain, notifier: notifier, now: time.Now,
		accessSecret: accessSecret, refreshSecret: refreshSecret,
		accessTTL: defaultAccessTTL, refreshTTL: defaultRefreshTTL,
	}
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Register creates a brand new personal tenant and its owning admin user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Credentials, Public, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || !emailRe.MatchString(in.Email) {
		return Credentials{}, Public{}, fmt.Errorf("%w: name and a valid email are required", apperr.ErrValidation)
	}
	if len(in.Password) < minPasswordLen {
		return Credentials{}, Public{}, fmt.Errorf("%w: password must be at least %d characters", apperr.ErrValidation, minPasswordLen)
	}

	var (
		user *User
		pair Credentials
	)
	err := dbx.RunInTx(ctx, s.db, sql.LevelSerializable, func(tx *sql.Tx) error {
		if inUse, err := s.store.Users.EmailInUse(ctx, tx, in.Email); err != nil {
			return err
		} else if inUse {
			return fmt.Errorf("%w: email already registered", apperr.ErrConflict)
		}
		if in.CPF != "" {
			if inUse, err := s.store.Users.CPFInUse(ctx, tx, in.CPF); err != nil {
				return err
			} else if inUse {
				return fmt.Errorf("%w: cpf already registered", apperr.ErrConflict)
			}
		}

		tenantID, err := s.tenants.ProvisionPersonalTenant(ctx, tx, in.Name, registerDefaultPlan)
		if err != nil {
			return err
		}

		passwordHash, err := crypto.HashSecret(in.Password)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		user = &User{
			ID: ids.New(), TenantID: tenantID, Name: in.Name, Email: in.Email,
			CPF: in.CPF, PhoneE164: in.PhoneE164, PasswordHash: passwordHash,
			Role: RoleAdmin, Status: StatusActive, CreatedAt: now, UpdatedAt: now,
		}
		if err := s.store.Users.Create(ctx, tx, user); err != nil {
			return err
		}

		if _, err := s.chain.AppendEvent(ctx, tx, audit.AppendInput{
			TenantID: tenantID, ActorKind: audit.ActorUser, ActorID: user.ID,
			EntityType: audit.EntityUser, EntityID: user.ID, Action: audit.ActionUserCreated,
		}); err != nil {
			return err
		}

		pair, err = s.issueCredentials(ctx, tx, user.ID, tenantID, RoleAdmin)
		return err
	})
	if err != nil {
		return Credentials{}, Public{}, err
	}
	return pair, user.ToPublic(), nil
}

// Login authenticates by email+password and issues a fresh credential pair
// scoped to the user's personal tenant.
func (s *Service) Login(ctx context.Context, in LoginInput) (Credentials, Public, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var (
		user *User
		pair Credentials
	)
	err := dbx.RunInTx(ctx, s.db, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		var err error
		user, err = s.store.Users.FindByEmail(ctx, tx, email)
		if err != nil || user.Status != StatusActive || !crypto.VerifySecret(user.PasswordHash, in.Password) {
			return apperr.ErrInvalidCredentials
		}

		role := RoleAdmin
		if user.Role == RoleSuperAdmin {
			role = RoleSuperAdmin
		}
		pair, err = s.issueCredentials(ctx, tx, user.ID, user.TenantID, role)
		if err != nil {
			return err
		}
		_, err = s.chain.AppendEvent(ctx, tx, audit.AppendInput{
			TenantID: user.TenantID, ActorKind: audit.ActorUser, ActorID: user.ID,
			EntityType: audit.EntityUser, EntityID: user.ID, Action: audit.ActionLoginSuccess,
			IP: in.IP, UserAgent: in.UserAgent,
		})
		return err
	})
	if err != nil {
		if apperr.Is(err, apperr.ErrInvalidCredentials) {
			return Credentials{}, Public{}, err
		}
		return Credentials{}, Public{}, err
	}
	return pair, user.ToPublic(), nil
}

// Refresh rotates a refresh credential exactly once and reissues a pair
// preserving the tenantId carried in the old token, re-resolving role.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (Credentials, error) {
	claims, err := s.parseRefreshToken(rawRefresh)
	if err != nil {
		return Credentials{}, err
	}

	var pair Credentials
	err = dbx.RunInTx(ctx, s.db, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		sessions, err := s.store.Sessions.ListByUser(ctx, tx, claims.Subject)
		if err != nil {
			return err
		}
		rawHash := crypto.Sha256Hex([]byte(rawRefresh))
		var matched *Session
		for i := range sessions {
			if sessions[i].RefreshTokenHash == rawHash {
				matched = &sessions[i]
				break
			}
		}
		if matched == nil {
			return fmt.Errorf("%w: session not found", apperr.ErrInvalidCredentials)
		}
		if s.now().After(matched.ExpiresAt) {
			return fmt.Errorf("%w: session expired", apperr.ErrInvalidCredentials)
		}
		if err := s.store.Sessions.Delete(ctx, tx, matched.ID); err != nil {
			return err
		}

		user, err := s.store.Users.FindByID(ctx, tx, claims.Subject)
		if err != nil {
			return err
		}
		role, err := s.resolveRole(ctx, tx, user, claims.TenantID)
		if err != nil {
			return err
		}
		pair, err = s.issueCredentials(ctx, tx, user.ID, claims.TenantID, role)
		return err
	})
	return pair, err
}

// Logout deletes the Session matching the raw refresh credential; idempotent
// if already absent.
func (s *Service) Logout(ctx context.Context, userID, rawRefresh string) error {
	rawHash := crypto.Sha256Hex([]byte(rawRefresh))
	return dbx.RunInTx(ctx, s.db, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		sessions, err := s.store.Sessions.ListByUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		for _, sess := range sessions {
			if sess.RefreshTokenHash == rawHash {
				return s.store.Sessions.Delete(ctx, tx, sess.ID)
			}
		}
		return nil
	})
}

// SwitchTenant mints a fresh pair scoped to targetTenantID, additive to any
// existing session (the old refresh credential keeps working).
func (s *Service) SwitchTenant(ctx context.Context, userID, targetTenantID string) (Credentials, error) {
	var pair Credentials
	err := dbx.RunInTx(ctx, s.db, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		user, err := s.store.Users.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		role, err := s.resolveRole(ctx, tx, user, targetTenantID)
		if err != nil {
			return err
		}
		pair, err = s.issueCredentials(ctx, tx, user.ID, targetTenantID, role)
		return err
	})
	return pair, err
}

// resolveRole implements §4.5's tenant-switch authorization: the personal
// tenant always authorizes (role per the user's global role); any other
// tenant requires an ACTIVE TenantMember row.
func (s *Service) resolveRole(ctx context.Context, q dbx.Querier, user *User, targetTenantID string) (Role, error) {
	if targetTenantID == user.TenantID {
		if user.Role == RoleSuperAdmin {
			return RoleSuperAdmin, nil
		}
		return RoleAdmin, nil
	}
	roleStr, ok, err := s.members.ActiveMemberRole(ctx, q, targetTenantID, user.ID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.ErrForbidden
	}
	return Role(roleStr), nil
}

func (s *Service) issueCredentials(ctx context.Context, q dbx.Querier, userID, tenantID string, role Role) (Credentials, error) {
	now := s.now().UTC()
	access, accessExp, err := s.signAccessToken(userID, tenantID, role, now)
	if err != nil {
		return Credentials{}, err
	}
	refresh, refreshExp, err := s.signRefreshToken(userID, tenantID, now)
	if err != nil {
		return Credentials{}, err
	}
	session := &Session{
		ID: ids.New(), UserID: userID, TenantID: tenantID,
		RefreshTokenHash: crypto.Sha256Hex([]byte(refresh)),
		ExpiresAt:        refreshExp, CreatedAt: now,
	}
	if err := s.store.Sessions.Create(ctx, q, session); err != nil {
		return Credentials{}, err
	}
	return Credentials{
		AccessToken: access, RefreshToken: refresh,
		AccessExpiresAt: accessExp, RefreshExpiresAt: refreshExp,
	}, nil
}

// Authenticate validates an access credential and produces the request
// principal. The credential's tenantId/role win over the persisted User row.
func (s *Service) Authenticate(ctx context.Context, rawAccess string) (Principal, error) {
	claims, err := s.parseAccessToken(rawAccess)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.store.Users.FindByID(ctx, s.db, claims.Subject)
	if err != nil || user.Status != StatusActive {
		return Principal{}, apperr.ErrUnauthenticated
	}
	return Principal{UserID: user.ID, Email: user.Email, TenantID: claims.TenantID, Role: claims.Role}, nil
}

// GetUser resolves one User's public projection by id, for handlers that
// need identity details beyond what the bearer credential carries - notably
// the user's personal tenant, for the "GET /tenants/available" switcher.
func (s *Service) GetUser(ctx context.Context, userID string) (Public, error) {
	u, err := s.store.Users.FindByID(ctx, s.db, userID)
	if err != nil {
		return Public{}, err
	}
	return u.ToPublic(), nil
}

// RequestPasswordReset silently no-ops for unknown users to avoid account
// enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string, channel otp.Channel) error {
	email = strings.ToLower(strings.TrimSpace(email))
	return dbx.RunInTx(ctx, s.db, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		user, err := s.store.Users.FindByEmail(ctx, tx, email)
		if err != nil {
			return nil
		}
		recipient := user.Email
		if channel == otp.ChannelWhatsApp {
			if user.PhoneE164 == "" {
				return fmt.Errorf("%w: no phone on file", apperr.ErrValidation)
			}
			recipient = user.PhoneE164
		}
		code, err := crypto.MintOtp6()
		if err != nil {
			return err
		}
		codeHash, err := crypto.HashSecret(code)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		rec := &otp.Code{
			ID: ids.New(), Recipient: recipient, Channel: channel, CodeHash: codeHash,
			ExpiresAt: now.Add(passwordResetOTPTTL), Context: otp.ContextPasswordReset, CreatedAt: now,
		}
		if err := s.store.OTP.Create(ctx, tx, rec); err != nil {
			return err
		}
		if s.notifier != nil {
			_ = s.notifier.SendOTP(ctx, user.TenantID, recipient, channel, code)
		}
		return nil
	})
}

// ResetPassword verifies the most recent PASSWORD_RESET code for email (or
// the user's phone) and, on success, sets newPassword and destroys the code.
func (s *Service) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", apperr.ErrValidation, minPasswordLen)
	}
	return dbx.RunInTx(ctx, s.db, sql.LevelReadCommitted, func(tx *sql.Tx) error {
		user, err := s.store.Users.FindByEmail(ctx, tx, email)
		if err != nil {
			return apperr.ErrInvalidCredentials
		}
		recipients := []string{user.Email}
		if user.PhoneE164 != "" {
			recipients = append(recipients, user.PhoneE164)
		}
		rec, err := s.store.OTP.FindLatest(ctx, tx, recipients, otp.ContextPasswordReset)
		if err != nil || rec == nil {
			return apperr.ErrInvalidCredentials
		}
		if s.now().After(rec.ExpiresAt) {
			return apperr.ErrExpired
		}
		if !crypto.VerifySecret(rec.CodeHash, code) {
			_ = s.store.OTP.IncrementAttempts(ctx, tx, rec.ID)
			return apperr.ErrInvalidCredentials
		}
		newHash, err := crypto.HashSecret(newPassword)
		if err != nil {
			return err
		}
		if err := s.store.Users.UpdatePasswordHash(ctx, tx, user.ID, newHash); err != nil {
			return err
		}
		return s.store.OTP.Delete(ctx, tx, rec.ID)
	})
}
