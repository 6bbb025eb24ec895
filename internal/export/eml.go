package export

import (
	"fmt"
	"os"
	"path/filepath"

	"mailport/internal/model"
)

// EMLFilename builds the per-message filename:
// <ISO date>_<zero-padded uid>_<sanitized subject, 50 chars>.eml.
// The uid padding keeps lexical order equal to uid order within a day.
func EMLFilename(msg model.EmailMessage) string {
	subject := SanitizeFolderName(msg.Subject)
	if len(subject) > 50 {
		subject = subject[:50]
	}
	return fmt.Sprintf("%s_%06d_%s.eml", msg.Date.UTC().Format("2006-01-02"), msg.UID, subject)
}

// ExportEML writes one .eml file per message into dir and returns the paths.
// Raw bytes are used verbatim; the fallback reconstruction is a plain single
// body without multipart handling, so attachments are not embedded (unlike
// the MBOX reconstruction path).
func ExportEML(dir string, msgs []model.EmailMessage) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		content := msg.Raw
		if len(content) == 0 {
			content = buildRFC822(msg, false)
		}
		path := filepath.Join(dir, EMLFilename(msg))
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ExportFolderEML writes one folder's messages into <dir>/<sanitized>/.
func ExportFolderEML(dir, folderName string, msgs []model.EmailMessage) ([]string, error) {
	return ExportEML(filepath.Join(dir, SanitizeFolderName(folderName)), msgs)
}
