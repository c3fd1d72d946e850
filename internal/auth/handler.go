package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler exposes the auth operations over HTTP.
type Handler struct {
	svc     *Service
	cookies CookieConfig
	timeout time.Duration
	logger  *zap.SugaredLogger
}

func NewHandler(svc *Service, cookies CookieConfig, timeout time.Duration, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, cookies: cookies, timeout: timeout, logger: logger}
}

// Register mounts the auth routes under prefix (for example "/auth").
func (h *Handler) Register(mux *http.ServeMux, prefix string) {
	mux.HandleFunc("POST "+prefix+"/signup", h.Signup)
	mux.HandleFunc("POST "+prefix+"/login", h.Login)
	mux.HandleFunc("POST "+prefix+"/verify-otp", h.VerifyOTP)
	mux.HandleFunc("POST "+prefix+"/resend-otp", h.ResendOTP)
	mux.HandleFunc("POST "+prefix+"/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST "+prefix+"/reset-password", h.ResetPassword)
	mux.HandleFunc("POST "+prefix+"/logout", h.Logout)
	mux.HandleFunc("GET "+prefix+"/check", h.Check)
}

type message struct {
	Message string `json:"message"`
}

type validationFailure struct {
	Message string `json:"message"`
	Errors  error  `json:"errors,omitempty"`
}

// SignupRequest request body for signup endpoint.
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
	)
}

type VerifyOTPRequest struct {
	UserID string `json:"userId"`
	OTP    string `json:"otp"`
}

func (r VerifyOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.OTP, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

// ResendOTPRequest accepts the legacy "user" field in place of "userId".
type ResendOTPRequest struct {
	UserID string `json:"userId"`
	User   string `json:"user"`
}

func (r ResendOTPRequest) ID() string {
	if r.UserID != "" {
		return r.UserID
	}
	return r.User
}

func (r ResendOTPRequest) Validate() error {
	if r.ID() == "" {
		return validation.Errors{"userId": errors.New("cannot be blank")}
	}
	return nil
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type ResetPasswordRequest struct {
	UserID   string `json:"userId"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
	)
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	sess, err := h.svc.Signup(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		h.fail(w, OpSignup, err)
		return
	}
	h.cookies.Set(w, sess.Token)
	h.writeJSON(w, http.StatusCreated, sess.User)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	sess, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.cookies.Clear(w)
		}
		h.fail(w, OpLogin, err)
		return
	}
	h.cookies.Set(w, sess.Token)
	h.writeJSON(w, http.StatusOK, sess.User)
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	u, err := h.svc.VerifyEmail(ctx, req.UserID, req.OTP)
	if err != nil {
		h.fail(w, OpVerifyEmail, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.svc.ResendVerification(ctx, req.ID()); err != nil {
		h.fail(w, OpResendOTP, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, message{"OTP sent"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	to, err := h.svc.RequestPasswordReset(ctx, req.Email)
	if err != nil {
		h.fail(w, OpForgotPassword, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message{fmt.Sprintf("Password Reset link sent to %s", to)})
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.ctx(r)
	defer cancel()

	if err := h.svc.ResetPassword(ctx, req.UserID, req.Token, req.Password); err != nil {
		h.fail(w, OpResetPassword, err)
		return
	}
	h.writeJSON(w, http.StatusOK, message{"Password Updated Successfuly"})
}

func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.svc.Logout()
	h.cookies.Clear(w)
	h.writeJSON(w, http.StatusOK, message{"Logout successful"})
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r)
	defer cancel()

	u, err := h.svc.CheckAuth(ctx, h.cookies.Read(r))
	if err != nil {
		h.fail(w, OpCheckAuth, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req validation.Validatable) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(req); err != nil {
		h.logger.Debugw("invalid auth payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, message{"invalid payload"})
		return false
	}
	if err := req.Validate(); err != nil {
		h.writeJSON(w, http.StatusBadRequest, validationFailure{Message: "invalid payload", Errors: err})
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op Operation, err error) {
	status, msg := StatusFor(op, err)
	h.writeJSON(w, status, message{msg})
}

func (h *Handler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
