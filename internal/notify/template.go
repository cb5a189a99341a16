// Package notify turns generated-record events into outbound messages. The
// default notifier logs the event; the AMQP notifier publishes a composed
// message to a durable queue for a downstream mailer to consume. Delivery
// is fire-and-forget: failures are logged, never surfaced to the caller.
package notify

import (
	"strings"

	"github.com/wisdmlabs/certverify/internal/certificate"
)

const (
	defaultUserSubject  = "Your certificate for %Course Name% is ready"
	defaultAdminSubject = "%User% earned a certificate for %Course Name%"
	defaultBody         = "Hi %User First Name%,\n\nYour certificate for %Course Name% has been generated.\nCertificate ID: %Certificate ID%\n"
)

// Settings mirror the notification options exposed to administrators.
type Settings struct {
	Enabled      bool
	AdminEmail   string
	CC           []string
	UserSubject  string
	AdminSubject string
	Body         string
}

// withDefaults fills empty templates with the stock wording.
func (s Settings) withDefaults() Settings {
	if strings.TrimSpace(s.UserSubject) == "" {
		s.UserSubject = defaultUserSubject
	}
	if strings.TrimSpace(s.AdminSubject) == "" {
		s.AdminSubject = defaultAdminSubject
	}
	if strings.TrimSpace(s.Body) == "" {
		s.Body = defaultBody
	}
	return s
}

// ExpandTemplate substitutes the supported placeholders in a message
// template with values from the event.
func ExpandTemplate(text string, event certificate.GeneratedEvent) string {
	first, last := splitName(event.Recipient.DisplayName)
	replacer := strings.NewReplacer(
		"%User%", event.Recipient.DisplayName,
		"%User First Name%", first,
		"%User Last Name%", last,
		"%User Email%", event.Recipient.Email,
		"%Course Name%", event.Source.Title,
		"%Certificate ID%", event.CSUID,
	)
	return replacer.Replace(text)
}

// Recipients assembles the delivery list for one event: the recipient,
// the admin copy when enabled, and any configured CC addresses.
func (s Settings) Recipients(event certificate.GeneratedEvent) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(address string) {
		address = strings.TrimSpace(address)
		if address == "" {
			return
		}
		key := strings.ToLower(address)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, address)
	}

	add(event.Recipient.Email)
	add(s.AdminEmail)
	for _, cc := range s.CC {
		add(cc)
	}
	return out
}

func splitName(displayName string) (string, string) {
	fields := strings.Fields(displayName)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], strings.Join(fields[1:], " ")
	}
}
