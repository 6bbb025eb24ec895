package export

import (
	"regexp"
	"strings"
)

var (
	unsafeChars    = regexp.MustCompile(`[^a-z0-9_-]+`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// SanitizeFolderName maps a folder name onto a filesystem-safe token:
// lowercased, every run of characters outside [a-z0-9_-] replaced by a
// single underscore. Distinct names can collide ("Inbox/Archive" and
// "Inbox\Archive" sanitize identically); that loss is accepted.
func SanitizeFolderName(name string) string {
	s := strings.ToLower(name)
	s = unsafeChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "folder"
	}
	return s
}
