package dispatch

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// Email bodies are rendered once per dispatch attempt from the notification's
// stored title/message; the stored text itself is fixed at creation time.

type emailData struct {
	Brand     string
	LogoURL   string
	Title     string
	Message   string
	OwnerName string
	CreatedAt time.Time
	Code      string
	Minutes   int
}

const notificationText = `{{.Title}}

{{.Message}}

— {{.Brand}}
`

const notificationHTML = `<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #333;">
    {{if .LogoURL}}<img src="{{.LogoURL}}" alt="{{.Brand}}" height="40">{{end}}
    <h2>{{.Title}}</h2>
    <p>{{.Message}}</p>
    <p style="color: #888; font-size: 12px;">{{.Brand}} &middot; {{.CreatedAt.Format "Jan 2, 2006 15:04"}}</p>
  </body>
</html>
`

const otpText = `{{if .OwnerName}}Hello {{.OwnerName}},

{{end}}Your {{.Brand}} password reset code is: {{.Code}}

The code expires in {{.Minutes}} minutes. If you did not request a password
reset, you can ignore this message.

— {{.Brand}}
`

const otpHTML = `<!DOCTYPE html>
<html>
  <body style="font-family: sans-serif; color: #333;">
    {{if .LogoURL}}<img src="{{.LogoURL}}" alt="{{.Brand}}" height="40">{{end}}
    <h2>Password reset</h2>
    {{if .OwnerName}}<p>Hello {{.OwnerName}},</p>{{end}}
    <p>Your {{.Brand}} password reset code is:</p>
    <p style="font-size: 28px; letter-spacing: 6px; font-weight: bold;">{{.Code}}</p>
    <p>The code expires in {{.Minutes}} minutes. If you did not request a password reset, you can ignore this message.</p>
  </body>
</html>
`

var (
	notificationTextTmpl = texttemplate.Must(texttemplate.New("notification.txt").Parse(notificationText))
	notificationHTMLTmpl = htmltemplate.Must(htmltemplate.New("notification.html").Parse(notificationHTML))
	otpTextTmpl          = texttemplate.Must(texttemplate.New("otp.txt").Parse(otpText))
	otpHTMLTmpl          = htmltemplate.Must(htmltemplate.New("otp.html").Parse(otpHTML))
)

func renderBodies(textTmpl *texttemplate.Template, htmlTmpl *htmltemplate.Template, data emailData) (string, string, error) {
	var text strings.Builder
	if err := textTmpl.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf("dispatch: render %s: %w", textTmpl.Name(), err)
	}

	var html strings.Builder
	if err := htmlTmpl.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf("dispatch: render %s: %w", htmlTmpl.Name(), err)
	}

	return text.String(), html.String(), nil
}
