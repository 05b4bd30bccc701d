package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// EmailData feeds the HTML layout.
type EmailData struct {
	RecipientName string
	Heading       string
	Title         string
	Message       string
	Urgent        bool
	ActionURL     string
	ActionLabel   string
	LogoURL       string
}

var emailHeadings = map[Type]string{
	TypePaymentReminder:   "Upcoming payment",
	TypePaymentDue:        "Payment due today",
	TypePaymentLate:       "Overdue payment",
	TypePaymentReceived:   "Payment received",
	TypeMaintenanceUpdate: "Maintenance update",
	TypeContractUpdate:    "Contract update",
	TypeContractExpiring:  "Contract expiring soon",
	TypeExpenseUpdate:     "Expense update",
	TypeSystem:            "Account notice",
}

// EmailSubject prefixes urgent notifications so they stand out in the inbox.
func EmailSubject(n *Notification) string {
	if n.Priority == PriorityUrgent {
		return "[Urgent] " + n.Title
	}
	return n.Title
}

const baseLayout = `<!DOCTYPE html>
<html>
<head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0" />
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8" />
    <style>
        body { background-color: #f4f6f8; font-family: -apple-system, "Segoe UI", Roboto, Arial, sans-serif; font-size: 16px; line-height: 1.5; margin: 0; padding: 0; }
        .container { margin: 0 auto; max-width: 580px; padding: 10px; }
        .main { background: #ffffff; border-radius: 8px; border: 1px solid #dde3e8; padding: 24px; }
        .header { padding: 24px 0; text-align: center; }
        .footer { color: #8898aa; font-size: 12px; margin-top: 12px; text-align: center; }
        h1 { font-size: 22px; margin: 0 0 16px 0; color: #1f3a4d; }
        p { margin: 0 0 16px 0; color: #4a5b6a; }
        .urgent { border-left: 4px solid #c0392b; padding-left: 12px; }
        .btn { background-color: #1f7a5c; border-radius: 4px; color: #ffffff; display: inline-block; font-weight: bold; padding: 12px 24px; text-decoration: none; }
        .logo { width: 120px; height: auto; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <img src="{{.LogoURL}}" alt="Rental Hub" class="logo" />
        </div>
        <div class="main{{if .Urgent}} urgent{{end}}">
            {{.Content}}
        </div>
        <div class="footer">
            You receive this email because of your notification preferences. You can change them in your account settings.
        </div>
    </div>
</body>
</html>
`

const notificationContent = `
    <h1>{{.Heading}}</h1>
    {{if .RecipientName}}<p>Hello {{.RecipientName}},</p>{{end}}
    <p><strong>{{.Title}}</strong></p>
    {{range .Paragraphs}}<p>{{.}}</p>
    {{end}}
    {{if .ActionURL}}<p><a class="btn" href="{{.ActionURL}}" target="_blank">{{.ActionLabel}}</a></p>{{end}}
`

var (
	layoutTmpl  = template.Must(template.New("layout").Parse(baseLayout))
	contentTmpl = template.Must(template.New("content").Parse(notificationContent))
)

// BuildEmailData derives template data for n.
func BuildEmailData(n *Notification, recipientName, appURL, logoURL string) EmailData {
	heading, ok := emailHeadings[n.Type]
	if !ok {
		heading = "Notification"
	}
	d := EmailData{
		RecipientName: recipientName,
		Heading:       heading,
		Title:         n.Title,
		Message:       n.Message,
		Urgent:        n.Priority == PriorityUrgent,
		LogoURL:       logoURL,
	}
	if appURL != "" {
		d.ActionURL = strings.TrimRight(appURL, "/") + "/notifications/" + n.ID
		d.ActionLabel = "View details"
	}
	return d
}

// RenderEmail renders the HTML body. Message paragraphs are split on blank lines.
func RenderEmail(d EmailData) (string, error) {
	var content bytes.Buffer
	err := contentTmpl.Execute(&content, struct {
		EmailData
		Paragraphs []string
	}{d, splitParagraphs(d.Message)})
	if err != nil {
		return "", fmt.Errorf("failed to render email content: %w", err)
	}

	var out bytes.Buffer
	err = layoutTmpl.Execute(&out, map[string]any{
		"LogoURL": d.LogoURL,
		"Urgent":  d.Urgent,
		"Content": template.HTML(content.String()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render email layout: %w", err)
	}
	return out.String(), nil
}

func splitParagraphs(msg string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(msg, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
