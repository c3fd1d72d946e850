package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database/migrations"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DATABASE_MAX_CONNS", "")
	t.Setenv("DATABASE_TIMEZONE", "UTC")

	cfg := ConfigFromEnv()
	assert.Contains(t, cfg.DSN, "localhost:5432")
	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "UTC", cfg.TimeZone)
}

func TestConfigFromEnv_MaxConns(t *testing.T) {
	t.Setenv("DATABASE_MAX_CONNS", "25")
	assert.Equal(t, 25, ConfigFromEnv().MaxConns)
}

func TestSessionDSN(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "no session settings",
			cfg:  Config{DSN: "postgres://u:p@db:5432/auth?sslmode=disable"},
			want: "postgres://u:p@db:5432/auth?sslmode=disable",
		},
		{
			name: "url form",
			cfg:  Config{DSN: "postgres://u:p@db:5432/auth?sslmode=disable", TimeZone: "Europe/Riga", ClientEncoding: "UTF8"},
			want: "postgres://u:p@db:5432/auth?client_encoding=UTF8&sslmode=disable&timezone=Europe%2FRiga",
		},
		{
			name: "key value form",
			cfg:  Config{DSN: "host=db dbname=auth sslmode=disable", TimeZone: "Europe/Riga", ClientEncoding: "UTF8"},
			want: "host=db dbname=auth sslmode=disable timezone='Europe/Riga' client_encoding='UTF8'",
		},
		{
			name: "quotes escaped",
			cfg:  Config{DSN: "host=db", TimeZone: `it's`},
			want: `host=db timezone='it\'s'`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := sessionDSN(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSessionDSN_BadURL(t *testing.T) {
	_, err := sessionDSN(Config{DSN: "postgres://u:p@db:bad-port/auth", TimeZone: "UTC"})
	assert.Error(t, err)
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"00001_create_users.sql", "00002_create_challenges.sql"}, names)
}

func TestMigrate_PropagatesGooseError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return errors.New("boom")
	}

	err := Migrate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, ".", gotDir)
}
