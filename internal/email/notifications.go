package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// Notification types known to the template picker. Anything else falls back
// to the generic template with the title and body passed through verbatim.
const (
	TypeAssessmentRequest = "assessment_request"
	TypeMSFRequest        = "msf_request"
	TypeSignOff           = "signoff"
)

// NotificationData holds data for notification email templates.
type NotificationData struct {
	RecipientName string
	Title         string
	Body          string
	ActionURL     string
}

// RenderNotification picks the HTML template for the notification type and
// returns the subject line and rendered body.
func RenderNotification(notificationType string, data NotificationData) (subject, html string, err error) {
	tmpl, ok := notificationTemplates[notificationType]
	if !ok {
		tmpl = genericNotificationTemplate
	}

	subject = data.Title
	if subject == "" {
		subject = "Portfolio notification"
	}

	t, err := template.New("notification").Parse(tmpl)
	if err != nil {
		return "", "", fmt.Errorf("parse notification template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("execute notification template: %w", err)
	}
	return subject, buf.String(), nil
}

var notificationTemplates = map[string]string{
	TypeAssessmentRequest: assessmentRequestTemplate,
	TypeMSFRequest:        msfRequestTemplate,
	TypeSignOff:           signOffTemplate,
}

const notificationStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #005eb8; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #005eb8; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }`

const assessmentRequestTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        ` + notificationStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>Portfolio</h1>
    </div>

    <h2>New assessment request</h2>

    <p>Hi {{.RecipientName}},</p>

    <p>{{.Body}}</p>

    {{if .ActionURL}}<p><a href="{{.ActionURL}}" class="button">Open Assessment</a></p>{{end}}

    <div class="footer">
        <p>You are receiving this because a trainee requested an assessment from you.</p>
    </div>
</body>
</html>`

const msfRequestTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        ` + notificationStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>Portfolio</h1>
    </div>

    <h2>Multi-source feedback request</h2>

    <p>Hi {{.RecipientName}},</p>

    <p>{{.Body}}</p>

    <p>Your feedback is anonymous and combined with other respondents before it is shared.</p>

    {{if .ActionURL}}<p><a href="{{.ActionURL}}" class="button">Give Feedback</a></p>{{end}}

    <div class="footer">
        <p>You are receiving this because a trainee nominated you as a feedback respondent.</p>
    </div>
</body>
</html>`

const signOffTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        ` + notificationStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>Portfolio</h1>
    </div>

    <h2>Evidence signed off</h2>

    <p>Hi {{.RecipientName}},</p>

    <p>{{.Body}}</p>

    {{if .ActionURL}}<p><a href="{{.ActionURL}}" class="button">View Evidence</a></p>{{end}}

    <div class="footer">
        <p>This record is now read-only in your portfolio.</p>
    </div>
</body>
</html>`

const genericNotificationTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        ` + notificationStyle + `
    </style>
</head>
<body>
    <div class="header">
        <h1>Portfolio</h1>
    </div>

    <h2>{{.Title}}</h2>

    <p>{{.Body}}</p>

    {{if .ActionURL}}<p><a href="{{.ActionURL}}" class="button">Open Portfolio</a></p>{{end}}
</body>
</html>`
