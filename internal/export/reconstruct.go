package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"mailport/internal/model"
)

// headers the builder always writes itself; copies from the stored header
// map would conflict with the reconstructed body framing.
var managedHeaders = map[string]bool{
	"from": true, "to": true, "cc": true, "bcc": true, "subject": true,
	"date": true, "message-id": true, "mime-version": true,
	"content-type": true, "content-transfer-encoding": true,
}

// buildRFC822 reconstructs an RFC822 serialization from the structured
// fields. It is only a fallback for messages without raw bytes. When
// withAttachments is set, attachments carrying content are embedded in a
// multipart/mixed body; otherwise a single text or HTML body is written.
func buildRFC822(msg model.EmailMessage, withAttachments bool) []byte {
	var buf bytes.Buffer

	writeHeader(&buf, "From", msg.From.String())
	if len(msg.To) > 0 {
		writeHeader(&buf, "To", joinAddresses(msg.To))
	}
	if len(msg.Cc) > 0 {
		writeHeader(&buf, "Cc", joinAddresses(msg.Cc))
	}
	writeHeader(&buf, "Subject", msg.Subject)
	writeHeader(&buf, "Date", msg.Date.Format(time.RFC1123Z))
	if msg.ID != "" {
		writeHeader(&buf, "Message-Id", "<"+strings.Trim(msg.ID, "<>")+">")
	}

	extra := make([]string, 0, len(msg.Headers))
	for name := range msg.Headers {
		if managedHeaders[strings.ToLower(name)] {
			continue
		}
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		for _, value := range msg.Headers[name] {
			writeHeader(&buf, name, value)
		}
	}

	writeHeader(&buf, "MIME-Version", "1.0")

	body, contentType := bodyContent(msg)

	attachments := embeddableAttachments(msg.Attachments)
	if !withAttachments || len(attachments) == 0 {
		writeHeader(&buf, "Content-Type", contentType)
		writeHeader(&buf, "Content-Transfer-Encoding", "quoted-printable")
		buf.WriteString("\r\n")
		qp := quotedprintable.NewWriter(&buf)
		_, _ = qp.Write([]byte(body))
		_ = qp.Close()
		return buf.Bytes()
	}

	writer := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", writer.Boundary()))
	buf.WriteString("\r\n")

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", contentType)
	textHeader.Set("Content-Transfer-Encoding", "quoted-printable")
	if part, err := writer.CreatePart(textHeader); err == nil {
		qp := quotedprintable.NewWriter(part)
		_, _ = qp.Write([]byte(body))
		_ = qp.Close()
	}

	for _, att := range attachments {
		partHeader := textproto.MIMEHeader{}
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		partHeader.Set("Content-Type", fmt.Sprintf("%s; name=%q", contentType, att.Filename))
		partHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
		partHeader.Set("Content-Transfer-Encoding", "base64")
		if att.ContentID != "" {
			partHeader.Set("Content-Id", "<"+att.ContentID+">")
		}
		part, err := writer.CreatePart(partHeader)
		if err != nil {
			continue
		}
		writeBase64(part, att.Content)
	}

	_ = writer.Close()
	return buf.Bytes()
}

func bodyContent(msg model.EmailMessage) (body, contentType string) {
	if msg.Text != "" {
		return msg.Text, `text/plain; charset="utf-8"`
	}
	if msg.HTML != "" {
		return msg.HTML, `text/html; charset="utf-8"`
	}
	return "", `text/plain; charset="utf-8"`
}

func embeddableAttachments(atts []model.Attachment) []model.Attachment {
	out := make([]model.Attachment, 0, len(atts))
	for _, att := range atts {
		if len(att.Content) > 0 {
			out = append(out, att)
		}
	}
	return out
}

func joinAddresses(addrs []model.EmailAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	if value == "" {
		return
	}
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func writeBase64(w io.Writer, data []byte) {
	encoded := base64.StdEncoding.EncodeToString(data)
	for len(encoded) > 76 {
		_, _ = w.Write([]byte(encoded[:76] + "\r\n"))
		encoded = encoded[76:]
	}
	if len(encoded) > 0 {
		_, _ = w.Write([]byte(encoded + "\r\n"))
	}
}
