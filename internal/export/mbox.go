// Package export serializes canonical messages to MBOX, EML and JSON files
// and imports MBOX archives back into the canonical model.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"mailport/internal/model"
)

// fromLine matches an MBOX envelope or an already-escaped body line.
var fromLine = regexp.MustCompile(`^>*From `)

// WriteMBOX writes the messages as one MBOX stream. Raw bytes are used
// verbatim when present; otherwise the message is reconstructed including
// multipart attachments. Body lines starting with "From " (at any escape
// depth) gain one more ">" so standard mailbox readers stay interoperable.
func WriteMBOX(w io.Writer, msgs []model.EmailMessage) error {
	for i, msg := range msgs {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		envelope := fmt.Sprintf("From %s %s\n", msg.From.Address, msg.Date.UTC().Format(time.ANSIC))
		if _, err := io.WriteString(w, envelope); err != nil {
			return err
		}

		body := msg.Raw
		if len(body) == 0 {
			body = buildRFC822(msg, true)
		}
		escaped := escapeFromLines(string(body))
		if !strings.HasSuffix(escaped, "\n") {
			escaped += "\n"
		}
		if _, err := io.WriteString(w, escaped); err != nil {
			return err
		}
	}
	return nil
}

// ExportMBOX writes the messages to a single .mbox file.
func ExportMBOX(path string, msgs []model.EmailMessage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteMBOX(f, msgs); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ExportFolderMBOX writes one folder's messages to <dir>/<sanitized>.mbox
// and returns the path written.
func ExportFolderMBOX(dir, folderName string, msgs []model.EmailMessage) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, SanitizeFolderName(folderName)+".mbox")
	if err := ExportMBOX(path, msgs); err != nil {
		return "", err
	}
	return path, nil
}

// escapeFromLines applies the canonical MBOX quoting rule to every line:
// "From " becomes ">From ", ">From " becomes ">>From ", and so on.
func escapeFromLines(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSuffix(line, "\r")
		if fromLine.MatchString(trimmed) {
			lines[i] = ">" + line
		}
	}
	return strings.Join(lines, "\n")
}
