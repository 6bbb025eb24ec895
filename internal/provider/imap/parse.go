package imap

import (
	"bytes"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"

	"mailport/internal/model"
)

func readAll(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseRaw normalizes a full RFC822 byte stream into the canonical model.
// The raw bytes are kept verbatim; the structured fields are derived.
func parseRaw(raw []byte) (model.EmailMessage, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return model.EmailMessage{}, err
	}

	m := model.EmailMessage{Raw: raw}
	header := reader.Header

	if subject, err := header.Subject(); err == nil {
		m.Subject = subject
	}
	if date, err := header.Date(); err == nil {
		m.Date = date
	}
	if id, err := header.MessageID(); err == nil && id != "" {
		m.ID = id
	}
	m.From = model.ParseAddress(header.Get("From"))
	m.To = model.ParseAddressList(header.Get("To"))
	m.Cc = model.ParseAddressList(header.Get("Cc"))
	m.Bcc = model.ParseAddressList(header.Get("Bcc"))

	fields := header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		m.AddHeader(fields.Key(), value)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.EmailMessage{}, err
		}
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			switch {
			case strings.HasPrefix(contentType, "text/plain") && m.Text == "":
				data, err := io.ReadAll(part.Body)
				if err != nil {
					return model.EmailMessage{}, err
				}
				m.Text = string(data)
			case strings.HasPrefix(contentType, "text/html") && m.HTML == "":
				data, err := io.ReadAll(part.Body)
				if err != nil {
					return model.EmailMessage{}, err
				}
				m.HTML = string(data)
			}
		case *mail.AttachmentHeader:
			filename, err := h.Filename()
			if err != nil || filename == "" {
				filename = "attachment"
			}
			contentType, _, _ := h.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				return model.EmailMessage{}, err
			}
			m.Attachments = append(m.Attachments, model.Attachment{
				Filename:    filename,
				ContentType: contentType,
				Size:        len(data),
				Content:     data,
				ContentID:   strings.Trim(h.Get("Content-Id"), "<>"),
			})
		}
	}

	return m, nil
}
