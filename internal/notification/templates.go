package notification

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// smsMaxLen keeps messages within two concatenated SMS segments.
const smsMaxLen = 306

var smsTemplates = map[Type]string{
	TypePaymentReminder: `Reminder: {{.Title}}. {{.Message}}`,
	TypePaymentDue:      `Due today: {{.Title}}. {{.Message}}`,
	TypePaymentLate:     `OVERDUE: {{.Title}}. {{.Message}}`,
}

const defaultSMSTemplate = `{{.Title}}: {{.Message}}`

var parsedSMS = func() map[Type]*template.Template {
	out := make(map[Type]*template.Template, len(smsTemplates)+1)
	for t, body := range smsTemplates {
		out[t] = template.Must(template.New(string(t)).Parse(body))
	}
	out[""] = template.Must(template.New("default").Parse(defaultSMSTemplate))
	return out
}()

// RenderSMS renders the plain-text SMS body for n, truncated to smsMaxLen runes.
func RenderSMS(n *Notification) (string, error) {
	tmpl, ok := parsedSMS[n.Type]
	if !ok {
		tmpl = parsedSMS[""]
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, n); err != nil {
		return "", fmt.Errorf("failed to render sms for %s: %w", n.Type, err)
	}

	body := strings.Join(strings.Fields(buf.String()), " ")
	if r := []rune(body); len(r) > smsMaxLen {
		body = string(r[:smsMaxLen-3]) + "..."
	}
	return body, nil
}
