package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

var otpTemplate = template.Must(template.New("otp").Parse(
	`<p>Your one-time password (OTP) for account verification is: <b>{{.Code}}</b>.</p>` +
		`<p>It expires in {{.ValidFor}}. Do not share this code with anyone.</p>`))

var resetTemplate = template.Must(template.New("reset").Parse(
	`<p>Dear {{.Name}},</p>` +
		`<p>We received a request to reset the password for your {{.App}} account. ` +
		`If you initiated this request, use the following link to reset your password:</p>` +
		`<p><a href="{{.Link}}" target="_blank">Reset Password</a></p>` +
		`<p>This link is valid for {{.ValidFor}}. If you did not request a password reset, ignore this email.</p>` +
		`<p>Thank you,<br>The {{.App}} Team</p>`))

// Templates renders the subject and HTML body of each transactional email.
type Templates struct {
	App string
}

func (t Templates) Verification(code, validFor string) (subject, body string, err error) {
	body, err = render(otpTemplate, map[string]string{"Code": code, "ValidFor": validFor})
	return fmt.Sprintf("OTP Verification for Your %s Account", t.App), body, err
}

func (t Templates) PasswordReset(name, link, validFor string) (subject, body string, err error) {
	body, err = render(resetTemplate, map[string]string{
		"Name":     name,
		"App":      t.App,
		"Link":     link,
		"ValidFor": validFor,
	})
	return fmt.Sprintf("Password Reset Link for Your %s Account", t.App), body, err
}

func render(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s mail: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
