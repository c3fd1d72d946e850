package auth

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge"
	challengerepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mail"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/password"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

// userTable is an in-memory users table with a unique email index.
type userTable struct {
	mu        sync.Mutex
	rows      map[string]*entity.User
	failWrite error
}

func (t *userTable) Create(_ context.Context, u *entity.User) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.rows {
		if r.Email == u.Email {
			return userrepo.ErrUniqueViolation
		}
	}
	u.Version = 1
	cp := *u
	t.rows[u.ID] = &cp
	return nil
}

func (t *userTable) find(match func(*entity.User) bool) (*entity.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.rows {
		if match(r) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (t *userTable) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	return t.find(func(u *entity.User) bool { return u.Email == email })
}

func (t *userTable) GetByID(_ context.Context, id string) (*entity.User, error) {
	return t.find(func(u *entity.User) bool { return u.ID == id })
}

func (t *userTable) UpdatePassword(_ context.Context, id, hash, algo string, bump bool) (*entity.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrite != nil {
		return nil, t.failWrite
	}
	u, ok := t.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u.PasswordHash, u.PasswordAlgo = hash, algo
	if bump {
		u.Version++
	}
	cp := *u
	return &cp, nil
}

func (t *userTable) MarkVerified(_ context.Context, id string) (*entity.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u.IsVerified = true
	cp := *u
	return &cp, nil
}

type sentMail struct {
	to, subject, body string
}

// outbox records mail instead of sending it.
type outbox struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (o *outbox) Send(_ context.Context, to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.sent = append(o.sent, sentMail{to, subject, body})
	return nil
}

func (o *outbox) last(t *testing.T) sentMail {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no mail sent")
	return o.sent[len(o.sent)-1]
}

var (
	otpInMail   = regexp.MustCompile(`<b>([0-9]{6})</b>`)
	resetInMail = regexp.MustCompile(`/reset-password/([^/"]+)/([^"]+)"`)
)

func (o *outbox) otp(t *testing.T) string {
	t.Helper()
	m := otpInMail.FindStringSubmatch(o.last(t).body)
	require.Len(t, m, 2, "no code in mail")
	return m[1]
}

func (o *outbox) resetLink(t *testing.T) (userID, token string) {
	t.Helper()
	m := resetInMail.FindStringSubmatch(o.last(t).body)
	require.Len(t, m, 3, "no reset link in mail")
	return m[1], m[2]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc     *Service
	users   *userTable
	store   *challengerepo.MemoryStore
	outbox  *outbox
	clock   *clock
	metrics *metrics.Metrics
	issuer  *session.Issuer
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		users:  &userTable{rows: map[string]*entity.User{}},
		store:  challengerepo.NewMemoryStore(),
		outbox: &outbox{},
		clock:  &clock{now: time.Now()},
	}
	hasher := password.NewPool(password.Bcrypt{Cost: bcrypt.MinCost}, 4)
	users := user.NewUserService(f.users, hasher)

	issuer, err := session.NewIssuer([]byte("test-signing-key"))
	require.NoError(t, err)
	f.issuer = issuer.WithClock(f.clock.Now)

	otp := challenge.NewOTPManager(f.store, users, hasher, 5*time.Minute).WithClock(f.clock.Now)
	reset := challenge.NewResetManager(f.store, users, hasher, 5*time.Minute).WithClock(f.clock.Now)

	opts := Options{
		SessionTTL:        30 * 24 * time.Hour,
		Origin:            "https://shop.test",
		SessionEpochCheck: true,
	}
	for _, m := range mutate {
		m(&opts)
	}

	f.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	f.svc, err = NewService(users, otp, reset, f.issuer, hasher, f.outbox, mail.Templates{App: "Pitchfork"}, f.metrics, zap.NewNop().Sugar(), opts)
	require.NoError(t, err)
	return f
}

func (f *fixture) signup(t *testing.T, email string) *Session {
	t.Helper()
	sess, err := f.svc.Signup(context.Background(), email, "Secret123", "Alice")
	require.NoError(t, err)
	return sess
}

var errSMTPDown = errors.New("smtp: connection refused")
