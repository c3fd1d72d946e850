package auth

import (
	"net/http"
	"time"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
)

const CookieName = "token"

// CookieConfig describes the session cookie. It is built once at start-up.
type CookieConfig struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// NewCookieConfig relaxes the cross-site policy only outside production.
func NewCookieConfig(profile config.DeploymentProfile, days int) CookieConfig {
	c := CookieConfig{
		Name:     CookieName,
		MaxAge:   time.Duration(days) * 24 * time.Hour,
		SameSite: http.SameSiteLaxMode,
	}
	if profile.IsProduction() {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (c CookieConfig) Set(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(token, int(c.MaxAge/time.Second)))
}

// Clear expires the cookie on the client.
func (c CookieConfig) Clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie("", -1))
}

func (c CookieConfig) Read(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

func (c CookieConfig) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
}
