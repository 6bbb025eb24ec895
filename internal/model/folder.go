package model

// Folder is one node of a provider's folder/label/mailbox tree. Path is the
// provider-native key used in folder-scoped calls (IMAP path, Gmail label ID,
// JMAP mailbox ID) and is never comparable across providers.
type Folder struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	Delimiter    string   `json:"delimiter,omitempty"`
	Flags        []string `json:"flags,omitempty"`
	MessageCount int      `json:"messageCount"`
	UnreadCount  int      `json:"unreadCount"`
	Children     []Folder `json:"children,omitempty"`
}

// Flatten returns the folder and all of its descendants depth-first.
func (f Folder) Flatten() []Folder {
	out := []Folder{f}
	for _, child := range f.Children {
		out = append(out, child.Flatten()...)
	}
	return out
}

// FlattenFolders flattens a whole tree of root folders.
func FlattenFolders(roots []Folder) []Folder {
	var out []Folder
	for _, f := range roots {
		out = append(out, f.Flatten()...)
	}
	return out
}
