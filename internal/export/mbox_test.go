package export

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"mailport/internal/model"
)

func testMessage(i int) model.EmailMessage {
	return model.EmailMessage{
		ID:      fmt.Sprintf("msg-%d@example.com", i),
		UID:     uint32(i),
		Subject: fmt.Sprintf("Subject %d", i),
		From:    model.EmailAddress{Name: "Sender", Address: fmt.Sprintf("sender%d@example.com", i)},
		To:      []model.EmailAddress{{Address: "rcpt@example.com"}},
		Date:    time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		Text:    fmt.Sprintf("body of message %d", i),
	}
}

func TestMBOXRoundTrip(t *testing.T) {
	msgs := []model.EmailMessage{testMessage(1), testMessage(2), testMessage(3)}

	var buf bytes.Buffer
	if err := WriteMBOX(&buf, msgs); err != nil {
		t.Fatalf("write mbox: %v", err)
	}

	imported, err := ReadMBOX(&buf)
	if err != nil {
		t.Fatalf("read mbox: %v", err)
	}
	if len(imported) != len(msgs) {
		t.Fatalf("expected %d messages, got %d", len(msgs), len(imported))
	}
	for i, msg := range imported {
		if msg.Subject != msgs[i].Subject {
			t.Errorf("message %d: subject %q, want %q", i, msg.Subject, msgs[i].Subject)
		}
		if msg.From.Address != msgs[i].From.Address {
			t.Errorf("message %d: from %q, want %q", i, msg.From.Address, msgs[i].From.Address)
		}
		if !msg.Date.Equal(msgs[i].Date) {
			t.Errorf("message %d: date %v, want %v", i, msg.Date, msgs[i].Date)
		}
	}
}

func TestMBOXFromLineEscaping(t *testing.T) {
	msg := testMessage(1)
	msg.Raw = []byte("Subject: quoting\r\n" +
		"From: sender1@example.com\r\n" +
		"\r\n" +
		"From the start of a line\n" +
		">From an already escaped line\n" +
		"not From here\n")

	var buf bytes.Buffer
	if err := WriteMBOX(&buf, []model.EmailMessage{msg}); err != nil {
		t.Fatalf("write mbox: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "\n>From the start of a line\n") {
		t.Errorf("body From line was not escaped:\n%s", out)
	}
	if !strings.Contains(out, "\n>>From an already escaped line\n") {
		t.Errorf("escaped From line did not gain another marker:\n%s", out)
	}
	if !strings.Contains(out, "\nnot From here\n") {
		t.Errorf("mid-line From must stay untouched:\n%s", out)
	}
	// The header line "From:" has no trailing space after From, so it must
	// survive unescaped.
	if !strings.Contains(out, "\nFrom: sender1@example.com\r\n") {
		t.Errorf("From: header was mangled:\n%s", out)
	}
}

func TestMBOXPrefersRawVerbatim(t *testing.T) {
	msg := testMessage(1)
	msg.Raw = []byte("Subject: Raw wins\r\n\r\nraw body\n")

	var buf bytes.Buffer
	if err := WriteMBOX(&buf, []model.EmailMessage{msg}); err != nil {
		t.Fatalf("write mbox: %v", err)
	}
	if !strings.Contains(buf.String(), "Subject: Raw wins") {
		t.Fatalf("expected raw bytes in output")
	}
	if strings.Contains(buf.String(), "Subject: Subject 1") {
		t.Fatalf("reconstruction must not run when raw is present")
	}
}

func TestMBOXReconstructionEmbedsAttachments(t *testing.T) {
	msg := testMessage(1)
	msg.Attachments = []model.Attachment{{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Size:        5,
		Content:     []byte("hello"),
	}}

	var buf bytes.Buffer
	if err := WriteMBOX(&buf, []model.EmailMessage{msg}); err != nil {
		t.Fatalf("write mbox: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "multipart/mixed") {
		t.Errorf("expected multipart reconstruction:\n%s", out)
	}
	if !strings.Contains(out, `filename="notes.txt"`) {
		t.Errorf("expected attachment part:\n%s", out)
	}
}

func TestReadMBOXSkipsMalformedSegments(t *testing.T) {
	content := "From a@example.com Mon Mar 10 12:00:00 2024\n" +
		"Subject: good\n" +
		"From: a@example.com\n" +
		"\n" +
		"body\n" +
		"\n" +
		"From b@example.com Mon Mar 10 13:00:00 2024\n" +
		"this line has no colon and no blank line before it ends\n"

	msgs, err := ReadMBOX(strings.NewReader(content))
	if err != nil {
		t.Fatalf("read mbox: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected the malformed segment to be skipped, got %d messages", len(msgs))
	}
	if msgs[0].Subject != "good" {
		t.Fatalf("unexpected subject %q", msgs[0].Subject)
	}
}
