// Package provider defines the capability contract the IMAP, Gmail and JMAP
// clients implement, plus the error taxonomy shared by all of them.
package provider

import (
	"context"

	"mailport/internal/model"
)

// Provider is the uniform surface over one connected mail account. An
// instance is single-flight: one logical connect → operate → disconnect
// sequence at a time, no reuse across unrelated operations. Connect is not
// idempotent; Disconnect always is.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error

	// TestConnection reports whether the credentials work. It never returns
	// an error; any failure maps to false.
	TestConnection(ctx context.Context) bool

	// GetFolders returns the full folder/label tree. IMAP and JMAP nest
	// children; Gmail returns a flat list.
	GetFolders(ctx context.Context) ([]model.Folder, error)

	// GetMessages fetches up to limit messages from the folder, limit 0
	// meaning all. Fewer than limit is not an error. Messages that fail MIME
	// parsing are skipped, not fatal.
	GetMessages(ctx context.Context, folderPath string, limit int) ([]model.EmailMessage, error)

	// GetMessage resolves a single message by ID within a folder.
	GetMessage(ctx context.Context, folderPath, id string) (model.EmailMessage, error)

	// UploadMessages appends raw messages to the folder. Every message must
	// carry non-empty Raw bytes; the first message without them aborts the
	// batch with ErrInvalidArgument, leaving earlier messages uploaded.
	UploadMessages(ctx context.Context, folderPath string, msgs []model.EmailMessage) error

	CreateFolder(ctx context.Context, path string) error
	DeleteFolder(ctx context.Context, path string) error

	// GetTotalMessageCount sums the message counts of every folder.
	GetTotalMessageCount(ctx context.Context) (int, error)
}

// Credentials carries the secret material for one account. Password is used
// by IMAP and JMAP; the OAuth triple by Gmail.
type Credentials struct {
	Password     string `yaml:"password,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}
