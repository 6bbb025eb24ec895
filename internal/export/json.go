package export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"mailport/internal/model"
)

// jsonAttachment replaces binary content with a hasContent marker. Dropping
// the payload bounds the export file size.
type jsonAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
	ContentID   string `json:"contentId,omitempty"`
	HasContent  bool   `json:"hasContent"`
}

type jsonMessage struct {
	ID          string               `json:"id"`
	UID         uint32               `json:"uid"`
	Subject     string               `json:"subject"`
	From        model.EmailAddress   `json:"from"`
	To          []model.EmailAddress `json:"to,omitempty"`
	Cc          []model.EmailAddress `json:"cc,omitempty"`
	Bcc         []model.EmailAddress `json:"bcc,omitempty"`
	Date        time.Time            `json:"date"`
	Headers     map[string][]string  `json:"headers,omitempty"`
	Text        string               `json:"text,omitempty"`
	HTML        string               `json:"html,omitempty"`
	Attachments []jsonAttachment     `json:"attachments,omitempty"`
	Labels      []string             `json:"labels,omitempty"`
	Folder      string               `json:"folder,omitempty"`
	Flags       []string             `json:"flags,omitempty"`
}

// WriteJSON serializes the full canonical model except attachment bytes.
func WriteJSON(w io.Writer, msgs []model.EmailMessage) error {
	out := make([]jsonMessage, 0, len(msgs))
	for _, msg := range msgs {
		jm := jsonMessage{
			ID:      msg.ID,
			UID:     msg.UID,
			Subject: msg.Subject,
			From:    msg.From,
			To:      msg.To,
			Cc:      msg.Cc,
			Bcc:     msg.Bcc,
			Date:    msg.Date,
			Headers: msg.Headers,
			Text:    msg.Text,
			HTML:    msg.HTML,
			Labels:  msg.Labels,
			Folder:  msg.Folder,
			Flags:   msg.Flags,
		}
		for _, att := range msg.Attachments {
			jm.Attachments = append(jm.Attachments, jsonAttachment{
				Filename:    att.Filename,
				ContentType: att.ContentType,
				Size:        att.Size,
				ContentID:   att.ContentID,
				HasContent:  len(att.Content) > 0,
			})
		}
		out = append(out, jm)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ExportJSON writes the messages to a single .json file.
func ExportJSON(path string, msgs []model.EmailMessage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(f, msgs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ExportFolderJSON writes one folder's messages to <dir>/<sanitized>.json.
func ExportFolderJSON(dir, folderName string, msgs []model.EmailMessage) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, SanitizeFolderName(folderName)+".json")
	if err := ExportJSON(path, msgs); err != nil {
		return "", err
	}
	return path, nil
}
