// Package auth orchestrates signup, login, email verification, password
// recovery and session checks on top of the credential store, the challenge
// managers and the token issuer.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// Users is the credential store as seen by the auth service.
type Users interface {
	Create(ctx context.Context, email, plaintext, name string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	FindByID(ctx context.Context, id string) (*entity.User, error)
	SetPasswordDigest(ctx context.Context, id, digest, algo string) (*entity.User, error)
	Rehash(ctx context.Context, u *entity.User, plaintext string) error
}

type Options struct {
	SessionTTL time.Duration
	// Origin is the base URL of reset-password links.
	Origin              string
	ConcealUnknownEmail bool
	SessionEpochCheck   bool
}

// Session is a sanitized user together with the token for its cookie.
type Session struct {
	User  entity.PublicUser
	Token string
}

type Service struct {
	users     Users
	otp       *challenge.Manager
	reset     *challenge.Manager
	issuer    *session.Issuer
	hasher    password.Hasher
	mailer    mail.Mailer
	templates mail.Templates
	metrics   *metrics.Metrics
	logger    *zap.SugaredLogger
	opts      Options

	// dummyDigest is verified against when the email is unknown so login
	// takes the same time either way.
	dummyDigest string
}

func NewService(
	users Users,
	otp, reset *challenge.Manager,
	issuer *session.Issuer,
	hasher password.Hasher,
	mailer mail.Mailer,
	templates mail.Templates,
	m *metrics.Metrics,
	logger *zap.SugaredLogger,
	opts Options,
) (*Service, error) {
	dummy, err := hasher.Hash(context.Background(), "dummy-password-for-unknown-users")
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy digest: %w", err)
	}
	return &Service{
		users:       users,
		otp:         otp,
		reset:       reset,
		issuer:      issuer,
		hasher:      hasher,
		mailer:      mailer,
		templates:   templates,
		metrics:     m,
		logger:      logger,
		opts:        opts,
		dummyDigest: dummy,
	}, nil
}

// Signup creates an unverified user and opens a session for it.
func (s *Service) Signup(ctx context.Context, email, plaintext, name string) (_ *Session, err error) {
	defer s.record(OpSignup, &err)

	u, err := s.users.Create(ctx, email, plaintext, name)
	if err != nil {
		return nil, err
	}
	return s.openSession(u)
}

// Login fails with ErrInvalidCredentials for an unknown email and for a
// wrong password alike.
func (s *Service) Login(ctx context.Context, email, plaintext string) (_ *Session, err error) {
	defer s.record(OpLogin, &err)

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			return nil, err
		}
		if _, verr := s.hasher.Verify(ctx, plaintext, s.dummyDigest); verr != nil {
			return nil, verr
		}
		return nil, ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(ctx, plaintext, u.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := s.users.Rehash(ctx, u, plaintext); err != nil {
		s.logger.Warnw("rehash password failed", "user_id", u.ID, "err", err)
	}
	return s.openSession(u)
}

// VerifyEmail consumes the verification code and returns the verified user.
func (s *Service) VerifyEmail(ctx context.Context, userID, code string) (_ entity.PublicUser, err error) {
	defer s.record(OpVerifyEmail, &err)

	u, err := s.otp.Verify(ctx, userID, code)
	if err != nil {
		return entity.PublicUser{}, err
	}
	return entity.Sanitize(u), nil
}

// ResendVerification replaces the user's verification code and mails it.
func (s *Service) ResendVerification(ctx context.Context, userID string) (err error) {
	defer s.record(OpResendOTP, &err)

	issued, err := s.otp.Generate(ctx, userID)
	if err != nil {
		return err
	}
	subject, body, err := s.templates.Verification(issued.Secret, humanDuration(s.otp.TTL()))
	if err != nil {
		return err
	}
	return s.deliver(ctx, "verification", issued.User, subject, body)
}

// RequestPasswordReset mails a reset link and returns the destination
// address. With ConcealUnknownEmail an unknown address gets the same answer
// and no mail.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (_ string, err error) {
	defer s.record(OpForgotPassword, &err)

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) && s.opts.ConcealUnknownEmail {
			return user.NormalizeEmail(email), nil
		}
		return "", err
	}
	issued, err := s.reset.Generate(ctx, u.ID)
	if err != nil {
		return "", err
	}
	token, err := s.issuer.Mint(session.Claims{
		UserID:  u.ID,
		Purpose: session.PurposeResetAuthorization,
		Epoch:   u.Version,
		Secret:  issued.Secret,
	}, s.reset.TTL())
	if err != nil {
		return "", err
	}
	subject, body, err := s.templates.PasswordReset(u.Name, s.resetLink(u.ID, token), humanDuration(s.reset.TTL()))
	if err != nil {
		return "", err
	}
	if err := s.deliver(ctx, "password_reset", u, subject, body); err != nil {
		return "", err
	}
	return u.Email, nil
}

// ResetPassword checks the reset-authorization token, consumes the reset
// challenge it carries and stores the new password. The challenge alone
// decides whether the link has expired, so an expired link still reaches
// it and is removed on first use. The new digest is computed before the
// challenge is consumed.
func (s *Service) ResetPassword(ctx context.Context, userID, token, newPassword string) (err error) {
	defer s.record(OpResetPassword, &err)

	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}
	claims, err := s.issuer.VerifyIgnoringExpiry(token, session.PurposeResetAuthorization)
	if err != nil {
		return err
	}
	if claims.UserID != userID || claims.Secret == "" {
		return session.ErrTokenInvalid
	}
	digest, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	if _, err := s.reset.Verify(ctx, userID, claims.Secret); err != nil {
		return err
	}
	if _, err := s.users.SetPasswordDigest(ctx, userID, digest, s.hasher.Algo()); err != nil {
		return fmt.Errorf("store new password after consuming reset challenge: %w", err)
	}
	return nil
}

// CheckAuth resolves a session token to the current user.
func (s *Service) CheckAuth(ctx context.Context, token string) (_ entity.PublicUser, err error) {
	defer s.record(OpCheckAuth, &err)

	if token == "" {
		return entity.PublicUser{}, ErrUnauthenticated
	}
	claims, err := s.issuer.Verify(token, session.PurposeSession)
	if err != nil {
		return entity.PublicUser{}, ErrUnauthenticated
	}
	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return entity.PublicUser{}, ErrUnauthenticated
		}
		return entity.PublicUser{}, err
	}
	if s.opts.SessionEpochCheck && claims.Epoch != u.Version {
		return entity.PublicUser{}, ErrUnauthenticated
	}
	return entity.Sanitize(u), nil
}

// Logout has no server-side state to clear; it only counts the operation.
func (s *Service) Logout() {
	s.record(OpLogout, new(error))
}

func (s *Service) openSession(u *entity.User) (*Session, error) {
	token, err := s.issuer.Mint(session.Claims{
		UserID:     u.ID,
		IsAdmin:    u.IsAdmin,
		IsVerified: u.IsVerified,
		Purpose:    session.PurposeSession,
		Epoch:      u.Version,
	}, s.opts.SessionTTL)
	if err != nil {
		return nil, err
	}
	return &Session{User: entity.Sanitize(u), Token: token}, nil
}

func (s *Service) deliver(ctx context.Context, kind string, u *entity.User, subject, body string) error {
	if err := s.mailer.Send(ctx, u.Email, subject, body); err != nil {
		s.metrics.Mail(kind, metrics.OutcomeError)
		return fmt.Errorf("deliver %s mail: %w", kind, err)
	}
	s.metrics.Mail(kind, metrics.OutcomeSuccess)
	return nil
}

func (s *Service) resetLink(userID, token string) string {
	return s.opts.Origin + "/reset-password/" + url.PathEscape(userID) + "/" + url.PathEscape(token)
}

// record counts the outcome of op and logs internal failures.
func (s *Service) record(op Operation, errp *error) {
	err := *errp
	switch {
	case err == nil:
		s.metrics.Operation(string(op), metrics.OutcomeSuccess)
	case IsInternal(op, err):
		s.metrics.Operation(string(op), metrics.OutcomeError)
		s.logger.Errorw("auth operation failed", "operation", op, "err", err)
	default:
		s.metrics.Operation(string(op), metrics.OutcomeRejected)
		s.logger.Debugw("auth operation rejected", "operation", op, "reason", err.Error())
	}
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
