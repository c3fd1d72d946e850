package auth

import (
	"errors"
	"net/http"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/challenge"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// Operation names one user-facing auth operation.
type Operation string

const (
	OpSignup         Operation = "signup"
	OpLogin          Operation = "login"
	OpVerifyEmail    Operation = "verify_email"
	OpResendOTP      Operation = "resend_otp"
	OpForgotPassword Operation = "forgot_password"
	OpResetPassword  Operation = "reset_password"
	OpCheckAuth      Operation = "check_auth"
	OpLogout         Operation = "logout"
)

type failure struct {
	target  error
	status  int
	message string
}

var failures = map[Operation][]failure{
	OpSignup: {
		{user.ErrDuplicateEmail, http.StatusBadRequest, "User already exists"},
	},
	OpLogin: {
		{ErrInvalidCredentials, http.StatusNotFound, "Invalid Credentials"},
	},
	OpVerifyEmail: {
		{user.ErrUserNotFound, http.StatusNotFound, "User not Found, for which the otp has been generated"},
		{challenge.ErrNotFound, http.StatusNotFound, "Otp not found"},
		{challenge.ErrExpired, http.StatusBadRequest, "Otp has been expired"},
		{challenge.ErrMismatch, http.StatusBadRequest, "Otp is invalid or expired"},
	},
	OpResendOTP: {
		{user.ErrUserNotFound, http.StatusNotFound, "User not found"},
	},
	OpForgotPassword: {
		{user.ErrUserNotFound, http.StatusNotFound, "Provided email does not exists"},
	},
	OpResetPassword: {
		{user.ErrUserNotFound, http.StatusNotFound, "User does not exists"},
		{challenge.ErrNotFound, http.StatusNotFound, "Reset Link is Not Valid"},
		{challenge.ErrExpired, http.StatusNotFound, "Reset Link has been expired"},
		{challenge.ErrMismatch, http.StatusNotFound, "Reset Link has been expired"},
		{session.ErrTokenInvalid, http.StatusNotFound, "Reset Link has been expired"},
	},
	OpCheckAuth: {
		{ErrUnauthenticated, http.StatusUnauthorized, "Unauthenticated"},
	},
}

var internalMessages = map[Operation]string{
	OpSignup:         "Error occured during signup, please try again later",
	OpLogin:          "Some error occured while logging in, please try again later",
	OpVerifyEmail:    "Some Error occured",
	OpResendOTP:      "Some error occured while resending otp, please try again later",
	OpForgotPassword: "Error occured while sending password reset mail",
	OpResetPassword:  "Error occured while resetting the password, please try again later",
	OpCheckAuth:      "Some error occured",
	OpLogout:         "Some error occured",
}

// StatusFor maps an operation error to its HTTP status and client message.
// Errors outside the operation's taxonomy are internal: 500 with a generic
// message that never carries the cause.
func StatusFor(op Operation, err error) (int, string) {
	for _, f := range failures[op] {
		if errors.Is(err, f.target) {
			return f.status, f.message
		}
	}
	return http.StatusInternalServerError, internalMessages[op]
}

// IsInternal reports whether err falls outside op's expected failures.
func IsInternal(op Operation, err error) bool {
	status, _ := StatusFor(op, err)
	return status >= http.StatusInternalServerError
}
