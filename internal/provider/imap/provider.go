// Package imap implements the provider contract over a stateful IMAP
// connection using emersion/go-imap.
package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"mailport/internal/model"
	"mailport/internal/provider"
)

// Client is the subset of the go-imap client the provider needs. Kept as an
// interface so tests can inject a mock.
type Client interface {
	Login(username, password string) error
	Logout() error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error)
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Create(name string) error
	Delete(name string) error
	Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Append(mailbox string, flags []string, date time.Time, msg imap.Literal) error
}

// Provider speaks IMAP for one account over a single persistent socket.
type Provider struct {
	account  model.Account
	password string

	// Dial establishes the socket; replaceable in tests.
	Dial func(account model.Account) (Client, error)

	client    Client
	connected bool
}

func New(account model.Account, creds provider.Credentials) *Provider {
	return &Provider{
		account:  account,
		password: creds.Password,
		Dial:     dial,
	}
}

func dial(account model.Account) (Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAP.Host, account.IMAP.Port)
	tlsConfig := &tls.Config{
		ServerName:         account.IMAP.Host,
		InsecureSkipVerify: account.IMAP.InsecureSkipVerify,
	}

	if account.IMAP.Secure {
		return imapclient.DialTLS(addr, tlsConfig)
	}

	c, err := imapclient.Dial(addr)
	if err != nil {
		return nil, err
	}
	if account.IMAP.StartTLS {
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			return nil, err
		}
	}
	return c, nil
}

func (p *Provider) Connect(ctx context.Context) error {
	c, err := p.Dial(p.account)
	if err != nil {
		return &provider.ConnectionError{Err: err}
	}
	if err := c.Login(p.account.IMAP.Username, p.password); err != nil {
		_ = c.Logout()
		return &provider.ConnectionError{Err: err}
	}
	p.client = c
	p.connected = true
	return nil
}

func (p *Provider) Disconnect() error {
	if p.client != nil {
		_ = p.client.Logout()
		p.client = nil
	}
	p.connected = false
	return nil
}

func (p *Provider) TestConnection(ctx context.Context) bool {
	if err := p.Connect(ctx); err != nil {
		return false
	}
	_ = p.Disconnect()
	return true
}

func (p *Provider) GetFolders(ctx context.Context) ([]model.Folder, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	infos, err := p.listMailboxes()
	if err != nil {
		return nil, err
	}

	folders := make([]model.Folder, 0, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		folder := model.Folder{
			Name:      leafName(info.Name, info.Delimiter),
			Path:      info.Name,
			Delimiter: info.Delimiter,
			Flags:     info.Attributes,
		}
		// Counts are best effort; \Noselect folders refuse STATUS.
		if status, err := p.client.Status(info.Name, []imap.StatusItem{imap.StatusMessages, imap.StatusUnseen}); err == nil {
			folder.MessageCount = int(status.Messages)
			folder.UnreadCount = int(status.Unseen)
		}
		folders = append(folders, folder)
	}

	return buildTree(folders), nil
}

func (p *Provider) listMailboxes() ([]*imap.MailboxInfo, error) {
	ch := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- p.client.List("", "*", ch)
	}()
	var infos []*imap.MailboxInfo
	for info := range ch {
		infos = append(infos, info)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return infos, nil
}

// buildTree attaches folders to their parents by path prefix. Folders whose
// parent is not in the list stay at the root. Parent/child links are tracked
// by path and the value tree is materialized in one recursive pass at the
// end, so nesting depth is unbounded.
func buildTree(flat []model.Folder) []model.Folder {
	sort.SliceStable(flat, func(i, j int) bool { return flat[i].Path < flat[j].Path })

	nodes := make(map[string]*model.Folder, len(flat))
	for i := range flat {
		nodes[flat[i].Path] = &flat[i]
	}

	children := make(map[string][]*model.Folder)
	var roots []*model.Folder
	for i := range flat {
		f := &flat[i]
		parent := parentPath(f.Path, f.Delimiter)
		if parent != "" && parent != f.Path {
			if _, ok := nodes[parent]; ok {
				children[parent] = append(children[parent], f)
				continue
			}
		}
		roots = append(roots, f)
	}

	var materialize func(f *model.Folder) model.Folder
	materialize = func(f *model.Folder) model.Folder {
		out := *f
		for _, child := range children[f.Path] {
			out.Children = append(out.Children, materialize(child))
		}
		return out
	}

	out := make([]model.Folder, 0, len(roots))
	for _, r := range roots {
		out = append(out, materialize(r))
	}
	return out
}

func parentPath(path, delimiter string) string {
	if delimiter == "" {
		return ""
	}
	idx := strings.LastIndex(path, delimiter)
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func leafName(path, delimiter string) string {
	if delimiter == "" {
		return path
	}
	parts := strings.Split(path, delimiter)
	return parts[len(parts)-1]
}

func (p *Provider) GetMessages(ctx context.Context, folderPath string, limit int) ([]model.EmailMessage, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	status, err := p.client.Select(folderPath, true)
	if err != nil {
		return nil, err
	}
	total := status.Messages
	if total == 0 {
		return []model.EmailMessage{}, nil
	}

	// Tail window by sequence number: the last `limit` messages.
	from := uint32(1)
	if limit > 0 && uint32(limit) < total {
		from = total - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, total)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- p.client.Fetch(seqset, items, ch)
	}()

	var messages []model.EmailMessage
	for msg := range ch {
		if msg == nil {
			continue
		}
		m, err := p.buildMessage(msg, folderPath, section)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mailport: skipping message %d in %s: %v\n", msg.Uid, folderPath, err)
			continue
		}
		messages = append(messages, m)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// buildMessage combines the fetch attributes (uid, flags, internal date) with
// the parsed body stream. Both must be present before the message is emitted;
// go-imap delivers them on the same Message value.
func (p *Provider) buildMessage(msg *imap.Message, folderPath string, section *imap.BodySectionName) (model.EmailMessage, error) {
	body := msg.GetBody(section)
	if body == nil {
		return model.EmailMessage{}, fmt.Errorf("message body not available")
	}
	raw, err := readAll(body)
	if err != nil {
		return model.EmailMessage{}, err
	}

	m, err := parseRaw(raw)
	if err != nil {
		return model.EmailMessage{}, err
	}

	m.UID = msg.Uid
	m.Flags = msg.Flags
	m.Folder = folderPath
	if m.Date.IsZero() {
		m.Date = msg.InternalDate
	}
	if m.ID == "" {
		m.ID = strconv.FormatUint(uint64(msg.Uid), 10)
	}
	model.Normalize(&m)
	return m, nil
}

func (p *Provider) GetMessage(ctx context.Context, folderPath, id string) (model.EmailMessage, error) {
	if !p.connected {
		return model.EmailMessage{}, provider.ErrNotConnected
	}

	if _, err := p.client.Select(folderPath, true); err != nil {
		return model.EmailMessage{}, err
	}

	// A numeric ID is treated as a UID, anything else as a Message-ID value.
	if uid, err := strconv.ParseUint(id, 10, 32); err == nil {
		return p.fetchByUID(folderPath, uint32(uid))
	}

	uid, err := p.findUIDByMessageID(id)
	if err != nil {
		return model.EmailMessage{}, err
	}
	return p.fetchByUID(folderPath, uid)
}

func (p *Provider) fetchByUID(folderPath string, uid uint32) (model.EmailMessage, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- p.client.UidFetch(seqset, items, ch)
	}()
	msg := <-ch
	for range ch {
	}
	if err := <-done; err != nil {
		return model.EmailMessage{}, err
	}
	if msg == nil {
		return model.EmailMessage{}, fmt.Errorf("message %d: %w", uid, provider.ErrNotFound)
	}
	return p.buildMessage(msg, folderPath, section)
}

func (p *Provider) findUIDByMessageID(id string) (uint32, error) {
	seqset := new(imap.SeqSet)
	seqset.AddRange(1, 0) // 1:* covers the selected mailbox

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- p.client.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}, ch)
	}()
	var uid uint32
	var found bool
	for msg := range ch {
		if msg == nil || msg.Envelope == nil {
			continue
		}
		if matchesMessageID(msg.Envelope.MessageId, id) {
			uid = msg.Uid
			found = true
		}
	}
	if err := <-done; err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("message %q: %w", id, provider.ErrNotFound)
	}
	return uid, nil
}

func matchesMessageID(envelopeID, id string) bool {
	trim := func(s string) string { return strings.Trim(s, "<>") }
	return trim(envelopeID) == trim(id)
}

func (p *Provider) UploadMessages(ctx context.Context, folderPath string, msgs []model.EmailMessage) error {
	if !p.connected {
		return provider.ErrNotConnected
	}
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(msg.Raw) == 0 {
			return fmt.Errorf("message %q has no raw content: %w", msg.ID, provider.ErrInvalidArgument)
		}
		date := msg.Date
		if date.IsZero() {
			date = time.Now()
		}
		if err := p.client.Append(folderPath, appendFlags(msg.Flags), date, bytes.NewReader(msg.Raw)); err != nil {
			return &provider.ProviderError{Op: "append message", Desc: err.Error()}
		}
	}
	return nil
}

// appendFlags strips \Recent, which servers refuse on APPEND.
func appendFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if f == imap.RecentFlag {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (p *Provider) CreateFolder(ctx context.Context, path string) error {
	if !p.connected {
		return provider.ErrNotConnected
	}
	if err := p.client.Create(path); err != nil {
		return &provider.ProviderError{Op: "create folder", Desc: err.Error()}
	}
	return nil
}

func (p *Provider) DeleteFolder(ctx context.Context, path string) error {
	if !p.connected {
		return provider.ErrNotConnected
	}
	if err := p.client.Delete(path); err != nil {
		return &provider.ProviderError{Op: "delete folder", Desc: err.Error()}
	}
	return nil
}

func (p *Provider) GetTotalMessageCount(ctx context.Context) (int, error) {
	if !p.connected {
		return 0, provider.ErrNotConnected
	}
	infos, err := p.listMailboxes()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		status, err := p.client.Status(info.Name, []imap.StatusItem{imap.StatusMessages})
		if err != nil {
			continue
		}
		total += int(status.Messages)
	}
	return total, nil
}
