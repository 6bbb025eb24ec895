package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"mailport/internal/model"
)

func TestWriteJSONReplacesAttachmentContent(t *testing.T) {
	msg := testMessage(1)
	msg.Attachments = []model.Attachment{
		{Filename: "report.pdf", ContentType: "application/pdf", Size: 4, Content: []byte("%PDF")},
		{Filename: "lazy.bin", ContentType: "application/octet-stream", Size: 9},
	}

	var buf bytes.Buffer
	if err := WriteJSON(&buf, []model.EmailMessage{msg}); err != nil {
		t.Fatalf("write json: %v", err)
	}

	if strings.Contains(buf.String(), "%PDF") {
		t.Fatalf("attachment bytes leaked into the export:\n%s", buf.String())
	}

	var decoded []struct {
		Subject     string `json:"subject"`
		Attachments []struct {
			Filename   string `json:"filename"`
			Size       int    `json:"size"`
			HasContent bool   `json:"hasContent"`
		} `json:"attachments"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0].Attachments) != 2 {
		t.Fatalf("unexpected structure: %+v", decoded)
	}
	if !decoded[0].Attachments[0].HasContent {
		t.Errorf("fetched attachment should report hasContent=true")
	}
	if decoded[0].Attachments[1].HasContent {
		t.Errorf("metadata-only attachment should report hasContent=false")
	}
	if decoded[0].Attachments[1].Size != 9 {
		t.Errorf("size metadata must survive, got %d", decoded[0].Attachments[1].Size)
	}
}

func TestWriteJSONOmitsRawBytes(t *testing.T) {
	msg := testMessage(1)
	msg.Raw = []byte("Subject: secret raw payload\r\n\r\nraw\r\n")

	var buf bytes.Buffer
	if err := WriteJSON(&buf, []model.EmailMessage{msg}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if strings.Contains(buf.String(), "secret raw payload") {
		t.Fatalf("raw bytes must not appear in json output")
	}
}

func TestSanitizeFolderName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"INBOX", "inbox"},
		{"Sent Items", "sent_items"},
		{"Inbox/Archive", "inbox_archive"},
		{"[Gmail]/All Mail", "gmail_all_mail"},
		{"///", "folder"},
		{"", "folder"},
	}
	for _, tc := range cases {
		if got := SanitizeFolderName(tc.in); got != tc.want {
			t.Errorf("SanitizeFolderName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}

	// Separator style is lost by design: both spellings land on one file.
	if SanitizeFolderName(`Inbox/Archive`) != SanitizeFolderName(`Inbox\Archive`) {
		t.Errorf("expected slash and backslash spellings to collide")
	}
}
