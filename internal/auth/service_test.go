package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge"
	challengeentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
)

func TestSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess := f.signup(t, "A@Test.com")
	assert.Equal(t, "a@test.com", sess.User.Email)
	assert.False(t, sess.User.IsVerified)
	assert.NotEmpty(t, sess.Token)

	claims, err := f.issuer.Verify(sess.Token, session.PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID)

	_, err = f.svc.Signup(ctx, "a@test.com", "Other123", "Bob")
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
	assert.Len(t, f.users.rows, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations.WithLabelValues("signup", metrics.OutcomeRejected)))
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@test.com")

	sess, err := f.svc.Login(ctx, "a@test.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, "a@test.com", sess.User.Email)

	_, err = f.svc.Login(ctx, "a@test.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "ghost@test.com", "Secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_CorruptDigestIsInternal(t *testing.T) {
	f := newFixture(t)
	sess := f.signup(t, "a@test.com")
	f.users.rows[sess.User.ID].PasswordHash = "plaintext-by-mistake"

	_, err := f.svc.Login(context.Background(), "a@test.com", "Secret123")
	require.ErrorIs(t, err, password.ErrHashFormat)
	assert.True(t, IsInternal(OpLogin, err))
}

func TestVerifyEmailFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "a@test.com")

	require.NoError(t, f.svc.ResendVerification(ctx, sess.User.ID))
	mail := f.outbox.last(t)
	assert.Equal(t, "a@test.com", mail.to)
	code := f.outbox.otp(t)

	_, err := f.svc.VerifyEmail(ctx, sess.User.ID, "000000")
	if code != "000000" {
		assert.ErrorIs(t, err, challenge.ErrMismatch)
	}

	u, err := f.svc.VerifyEmail(ctx, sess.User.ID, code)
	require.NoError(t, err)
	assert.True(t, u.IsVerified)

	_, err = f.svc.VerifyEmail(ctx, sess.User.ID, code)
	assert.ErrorIs(t, err, challenge.ErrNotFound)
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "a@test.com")

	require.NoError(t, f.svc.ResendVerification(ctx, sess.User.ID))
	code := f.outbox.otp(t)
	f.clock.Advance(6 * time.Minute)

	_, err := f.svc.VerifyEmail(ctx, sess.User.ID, code)
	assert.ErrorIs(t, err, challenge.ErrExpired)
	_, err = f.svc.VerifyEmail(ctx, sess.User.ID, code)
	assert.ErrorIs(t, err, challenge.ErrNotFound)
}

func TestResendVerification_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.ResendVerification(ctx, "ghost")
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	sess := f.signup(t, "a@test.com")
	f.outbox.fail = errSMTPDown
	err = f.svc.ResendVerification(ctx, sess.User.ID)
	require.ErrorIs(t, err, errSMTPDown)
	assert.True(t, IsInternal(OpResendOTP, err))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.MailDeliveries.WithLabelValues("verification", metrics.OutcomeError)))

	c, err := f.store.Get(ctx, sess.User.ID, challengeentity.PurposeVerifyEmail)
	require.NoError(t, err)
	assert.NotNil(t, c, "undelivered challenge stays active for a retry")
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "a@test.com")

	to, err := f.svc.RequestPasswordReset(ctx, "A@test.com")
	require.NoError(t, err)
	assert.Equal(t, "a@test.com", to)

	linkUser, token := f.outbox.resetLink(t)
	assert.Equal(t, sess.User.ID, linkUser)

	require.NoError(t, f.svc.ResetPassword(ctx, linkUser, token, "NewSecret456"))

	_, err = f.svc.Login(ctx, "a@test.com", "Secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@test.com", "NewSecret456")
	assert.NoError(t, err)

	err = f.svc.ResetPassword(ctx, linkUser, token, "Another789")
	assert.ErrorIs(t, err, challenge.ErrNotFound)
}

func TestResetPassword_InvalidatesOlderSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "a@test.com")

	_, err := f.svc.CheckAuth(ctx, sess.Token)
	require.NoError(t, err)

	_, err = f.svc.RequestPasswordReset(ctx, "a@test.com")
	require.NoError(t, err)
	id, token := f.outbox.resetLink(t)
	require.NoError(t, f.svc.ResetPassword(ctx, id, token, "NewSecret456"))

	_, err = f.svc.CheckAuth(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResetPassword_EpochCheckDisabled(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.SessionEpochCheck = false })
	ctx := context.Background()
	sess := f.signup(t, "a@test.com")

	_, err := f.svc.RequestPasswordReset(ctx, "a@test.com")
	require.NoError(t, err)
	id, token := f.outbox.resetLink(t)
	require.NoError(t, f.svc.ResetPassword(ctx, id, token, "NewSecret456"))

	_, err = f.svc.CheckAuth(ctx, sess.Token)
	assert.NoError(t, err)
}

func TestResetPassword_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.signup(t, "a@test.com")
	bob := f.signup(t, "b@test.com")

	_, err := f.svc.RequestPasswordReset(ctx, "a@test.com")
	require.NoError(t, err)
	_, token := f.outbox.resetLink(t)

	cases := []struct {
		name   string
		userID string
		token  string
		want   error
	}{
		{"unknown user", "ghost", token, user.ErrUserNotFound},
		{"garbage token", alice.User.ID, "not-a-jwt", session.ErrTokenInvalid},
		{"token for another user", bob.User.ID, token, session.ErrTokenInvalid},
		{"session token instead of reset token", alice.User.ID, alice.Token, session.ErrTokenInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.ResetPassword(ctx, tc.userID, tc.token, "NewSecret456")
			require.ErrorIs(t, err, tc.want)
			status, _ := StatusFor(OpResetPassword, err)
			assert.Equal(t, http.StatusNotFound, status)
		})
	}

	require.NoError(t, f.svc.ResetPassword(ctx, alice.User.ID, token, "NewSecret456"))
}

func TestResetPassword_SupersededLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@test.com")

	_, err := f.svc.RequestPasswordReset(ctx, "a@test.com")
	require.NoError(t, err)
	id, first := f.outbox.resetLink(t)
	_, err = f.svc.RequestPasswordReset(ctx, "a@test.com")
	require.NoError(t, err)
	_, second := f.outbox.resetLink(t)

	err = f.svc.ResetPassword(ctx, id, first, "NewSecret456")
	assert.ErrorIs(t, err, challenge.ErrMismatch)
	require.NoError(t, f.svc.ResetPassword(ctx, id, second, "NewSecret456"))
}

func TestResetPassword_Expired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@test.com")

	_, err := f.svc.RequestPasswordReset(ctx, "a@test.com")
	require.NoError(t, err)
	id, token := f.outbox.resetLink(t)
	f.clock.Advance(10 * time.Minute)

	err = f.svc.ResetPassword(ctx, id, token, "NewSecret456")
	require.ErrorIs(t, err, challenge.ErrExpired)
	status, msg := StatusFor(OpResetPassword, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Reset Link has been expired", msg)

	stored, err := f.store.Get(ctx, id, challengeentity.PurposeResetPassword)
	require.NoError(t, err)
	assert.Nil(t, stored)

	err = f.svc.ResetPassword(ctx, id, token, "NewSecret456")
	require.ErrorIs(t, err, challenge.ErrNotFound)
	_, msg = StatusFor(OpResetPassword, err)
	assert.Equal(t, "Reset Link is Not Valid", msg)
}

func TestResetPassword_WriteFailureAfterConsume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "a@test.com")

	_, err := f.svc.RequestPasswordReset(ctx, "a@test.com")
	require.NoError(t, err)
	id, token := f.outbox.resetLink(t)

	f.users.failWrite = errors.New("db down")
	err = f.svc.ResetPassword(ctx, id, token, "NewSecret456")
	require.Error(t, err)
	assert.True(t, IsInternal(OpResetPassword, err))
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestPasswordReset(context.Background(), "ghost@test.com")
	assert.ErrorIs(t, err, user.ErrUserNotFound)

	concealed := newFixture(t, func(o *Options) { o.ConcealUnknownEmail = true })
	to, err := concealed.svc.RequestPasswordReset(context.Background(), " Ghost@Test.com ")
	require.NoError(t, err)
	assert.Equal(t, "ghost@test.com", to)
	assert.Empty(t, concealed.outbox.sent)
}

func TestRequestPasswordReset_MailFailure(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "a@test.com")
	f.outbox.fail = errSMTPDown

	_, err := f.svc.RequestPasswordReset(context.Background(), "a@test.com")
	require.ErrorIs(t, err, errSMTPDown)
	assert.True(t, IsInternal(OpForgotPassword, err))
}

func TestCheckAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.signup(t, "a@test.com")

	u, err := f.svc.CheckAuth(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User, u)

	for _, token := range []string{"", "garbage", sess.Token[:len(sess.Token)-4] + "AAAA"} {
		_, err = f.svc.CheckAuth(ctx, token)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}

	reset, err := f.issuer.Mint(session.Claims{UserID: sess.User.ID, Purpose: session.PurposeResetAuthorization, Epoch: 1}, time.Minute)
	require.NoError(t, err)
	_, err = f.svc.CheckAuth(ctx, reset)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	f.clock.Advance(31 * 24 * time.Hour)
	_, err = f.svc.CheckAuth(ctx, sess.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		op     Operation
		err    error
		status int
	}{
		{OpSignup, user.ErrDuplicateEmail, http.StatusBadRequest},
		{OpLogin, ErrInvalidCredentials, http.StatusNotFound},
		{OpVerifyEmail, user.ErrUserNotFound, http.StatusNotFound},
		{OpVerifyEmail, challenge.ErrNotFound, http.StatusNotFound},
		{OpVerifyEmail, challenge.ErrExpired, http.StatusBadRequest},
		{OpVerifyEmail, challenge.ErrMismatch, http.StatusBadRequest},
		{OpResendOTP, user.ErrUserNotFound, http.StatusNotFound},
		{OpForgotPassword, user.ErrUserNotFound, http.StatusNotFound},
		{OpResetPassword, challenge.ErrMismatch, http.StatusNotFound},
		{OpCheckAuth, ErrUnauthenticated, http.StatusUnauthorized},
		{OpLogin, user.ErrDuplicateEmail, http.StatusInternalServerError},
		{OpSignup, errors.New("pq: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, msg := StatusFor(tc.op, tc.err)
		assert.Equal(t, tc.status, status, "%s: %v", tc.op, tc.err)
		assert.NotEmpty(t, msg)
		assert.False(t, strings.Contains(msg, "pq:"), "internal cause leaked: %s", msg)
	}
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "5 minutes", humanDuration(5*time.Minute))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "2 hours", humanDuration(2*time.Hour))
	assert.Equal(t, "1m30s", humanDuration(90*time.Second))
}
