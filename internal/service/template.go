package service

import (
	"fmt"
	"regexp"

	"ServerMonitorAPI/internal/models"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// RenderTemplate replaces {{token}} placeholders with values. Unknown tokens
// are left in place.
func RenderTemplate(text string, values map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return match
	})
}

// templateValues exposes a notification's title, message and metadata
// entries as template tokens.
func templateValues(n *models.Notification) map[string]string {
	values := map[string]string{
		"title":     n.Title,
		"message":   n.Message,
		"recipient": n.Recipient,
		"priority":  string(n.Priority),
		"channel":   string(n.ChannelType),
	}
	for k, v := range n.Metadata {
		if _, reserved := values[k]; reserved {
			continue
		}
		switch val := v.(type) {
		case float64:
			values[k] = fmt.Sprintf("%g", val)
		default:
			values[k] = fmt.Sprint(val)
		}
	}
	return values
}

// applyTemplate renders subject and body from tmpl, keeping the
// notification's own title or message where the template leaves one empty.
func applyTemplate(n *models.Notification, tmpl *models.NotificationTemplate) (string, string) {
	values := templateValues(n)

	title, message := n.Title, n.Message
	if tmpl.Subject != "" {
		title = RenderTemplate(tmpl.Subject, values)
	}
	if tmpl.Body != "" {
		message = RenderTemplate(tmpl.Body, values)
	}
	return title, message
}
