package model

import "time"

// EmailAddress is a single address with an optional display name.
type EmailAddress struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Address string `json:"address" yaml:"address"`
}

func (a EmailAddress) String() string {
	if a.Name != "" {
		return a.Name + " <" + a.Address + ">"
	}
	return a.Address
}

// Attachment describes one attachment of a message. Content may be nil when
// only metadata is known; Size is still reported in that case.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	Content     []byte `json:"-"`
	ContentID   string `json:"contentId,omitempty"`
}

// EmailMessage is the canonical representation every provider normalizes into
// and every exporter consumes. When Raw is non-empty it is the byte-for-byte
// source of truth; the structured fields are a fallback for providers that
// cannot supply raw RFC822 bytes.
type EmailMessage struct {
	ID          string              `json:"id"`
	UID         uint32              `json:"uid"`
	Subject     string              `json:"subject"`
	From        EmailAddress        `json:"from"`
	To          []EmailAddress      `json:"to,omitempty"`
	Cc          []EmailAddress      `json:"cc,omitempty"`
	Bcc         []EmailAddress      `json:"bcc,omitempty"`
	Date        time.Time           `json:"date"`
	Headers     map[string][]string `json:"headers,omitempty"`
	Text        string              `json:"text,omitempty"`
	HTML        string              `json:"html,omitempty"`
	Attachments []Attachment        `json:"attachments,omitempty"`
	Raw         []byte              `json:"-"`
	Labels      []string            `json:"labels,omitempty"`
	Folder      string              `json:"folder,omitempty"`
	Flags       []string            `json:"flags,omitempty"`
}

const (
	// NoSubject is substituted when a message carries no subject.
	NoSubject = "(No Subject)"
	// UnknownAddress is substituted when a sender cannot be parsed.
	UnknownAddress = "unknown"
)

// Normalize fills the defaults the canonical model guarantees: a subject, a
// sender and a date are always present.
func Normalize(m *EmailMessage) {
	if m.Subject == "" {
		m.Subject = NoSubject
	}
	if m.From.Address == "" {
		m.From = EmailAddress{Address: UnknownAddress}
	}
	if m.Date.IsZero() {
		m.Date = time.Now()
	}
}

// AddHeader appends a header value, preserving repeated headers and the case
// of the name as received.
func (m *EmailMessage) AddHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string][]string)
	}
	m.Headers[name] = append(m.Headers[name], value)
}
