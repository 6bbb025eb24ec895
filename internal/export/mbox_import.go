package export

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"mailport/internal/model"
)

// ReadMBOX parses an MBOX stream back into canonical messages. Header
// parsing is a best-effort colon split up to the first blank line; malformed
// segments are logged and skipped, never fatal.
func ReadMBOX(r io.Reader) ([]model.EmailMessage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var messages []model.EmailMessage
	for i, segment := range splitMBOX(string(data)) {
		msg, err := parseSegment(segment)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mailport: skipping mbox entry %d: %v\n", i+1, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ImportMBOX reads an .mbox file from disk.
func ImportMBOX(path string) ([]model.EmailMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadMBOX(f)
}

// splitMBOX cuts the content on envelope lines and returns the segments
// following each envelope, with From-escaping undone.
func splitMBOX(content string) []string {
	lines := strings.Split(content, "\n")
	var segments []string
	var current []string
	inMessage := false

	flush := func() {
		if inMessage {
			segments = append(segments, strings.Join(current, "\n"))
		}
		current = nil
	}

	for _, line := range lines {
		if strings.HasPrefix(line, "From ") {
			flush()
			inMessage = true
			continue
		}
		if !inMessage {
			continue
		}
		trimmed := strings.TrimSuffix(line, "\r")
		if fromLine.MatchString(trimmed) && strings.HasPrefix(trimmed, ">") {
			line = strings.Replace(line, ">", "", 1)
		}
		current = append(current, line)
	}
	flush()
	return segments
}

func parseSegment(segment string) (model.EmailMessage, error) {
	segment = strings.TrimRight(segment, "\n")
	if strings.TrimSpace(segment) == "" {
		return model.EmailMessage{}, fmt.Errorf("empty segment")
	}

	lines := strings.Split(segment, "\n")
	msg := model.EmailMessage{Raw: []byte(segment)}

	bodyStart := len(lines)
	var lastHeader string
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			bodyStart = i + 1
			break
		}
		// Continuation lines extend the previous header value.
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && lastHeader != "" {
			values := msg.Headers[lastHeader]
			values[len(values)-1] += " " + strings.TrimSpace(line)
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return model.EmailMessage{}, fmt.Errorf("malformed header line %q", line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		msg.AddHeader(name, value)
		lastHeader = name

		switch strings.ToLower(name) {
		case "subject":
			msg.Subject = value
		case "from":
			msg.From = model.ParseAddress(value)
		case "to":
			msg.To = model.ParseAddressList(value)
		case "cc":
			msg.Cc = model.ParseAddressList(value)
		case "message-id":
			msg.ID = strings.Trim(value, "<>")
		case "date":
			if t, err := mail.ParseDate(value); err == nil {
				msg.Date = t
			}
		}
	}

	if bodyStart < len(lines) {
		msg.Text = strings.Join(lines[bodyStart:], "\n")
	}

	model.Normalize(&msg)
	return msg, nil
}
