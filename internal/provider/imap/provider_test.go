package imap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/emersion/go-imap"

	"mailport/internal/model"
	"mailport/internal/provider"
)

type storedMessage struct {
	seq, uid uint32
	flags    []string
	date     time.Time
	envelope *imap.Envelope
	raw      string
}

type appendCall struct {
	mailbox string
	flags   []string
	body    string
}

type mockClient struct {
	mailboxes []*imap.MailboxInfo
	statuses  map[string]*imap.MailboxStatus
	messages  map[string][]storedMessage
	selected  string

	loginErr  error
	createErr error
	deleteErr error

	loggedOut bool
	fetchSets []string
	appends   []appendCall
}

func (m *mockClient) Login(username, password string) error { return m.loginErr }
func (m *mockClient) Logout() error {
	m.loggedOut = true
	return nil
}
func (m *mockClient) Select(name string, readOnly bool) (*imap.MailboxStatus, error) {
	status, ok := m.statuses[name]
	if !ok {
		return nil, fmt.Errorf("no such mailbox %q", name)
	}
	m.selected = name
	return status, nil
}
func (m *mockClient) Status(name string, items []imap.StatusItem) (*imap.MailboxStatus, error) {
	status, ok := m.statuses[name]
	if !ok {
		return nil, fmt.Errorf("no such mailbox %q", name)
	}
	return status, nil
}
func (m *mockClient) List(ref, name string, ch chan *imap.MailboxInfo) error {
	for _, info := range m.mailboxes {
		ch <- info
	}
	close(ch)
	return nil
}
func (m *mockClient) Create(name string) error { return m.createErr }
func (m *mockClient) Delete(name string) error { return m.deleteErr }
func (m *mockClient) Fetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	m.fetchSets = append(m.fetchSets, seqset.String())
	for _, stored := range m.messages[m.selected] {
		if seqset.Contains(stored.seq) {
			ch <- stored.message()
		}
	}
	close(ch)
	return nil
}
func (m *mockClient) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	for _, stored := range m.messages[m.selected] {
		if seqset.Contains(stored.uid) {
			ch <- stored.message()
		}
	}
	close(ch)
	return nil
}
func (m *mockClient) Append(mailbox string, flags []string, date time.Time, msg imap.Literal) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(msg); err != nil {
		return err
	}
	m.appends = append(m.appends, appendCall{mailbox: mailbox, flags: flags, body: buf.String()})
	return nil
}

// message builds a fresh value per fetch so the body literal is readable
// every time.
func (s storedMessage) message() *imap.Message {
	return &imap.Message{
		SeqNum:       s.seq,
		Uid:          s.uid,
		Flags:        s.flags,
		InternalDate: s.date,
		Envelope:     s.envelope,
		Body: map[*imap.BodySectionName]imap.Literal{
			new(imap.BodySectionName): bytes.NewBufferString(s.raw),
		},
	}
}

func sampleRaw(n int) string {
	return fmt.Sprintf("From: Sender %d <sender%d@example.com>\r\n"+
		"To: You <you@example.com>\r\n"+
		"Subject: Message %d\r\n"+
		"Date: Mon, 10 Mar 2024 12:00:00 +0000\r\n"+
		"Message-Id: <m%d@example.com>\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"\r\n"+
		"body %d\r\n", n, n, n, n, n)
}

func sampleStored(seq, uid uint32) storedMessage {
	return storedMessage{
		seq:   seq,
		uid:   uid,
		flags: []string{imap.SeenFlag},
		date:  time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		envelope: &imap.Envelope{
			Subject:   fmt.Sprintf("Message %d", seq),
			MessageId: fmt.Sprintf("<m%d@example.com>", seq),
		},
		raw: sampleRaw(int(seq)),
	}
}

func testAccount() model.Account {
	return model.Account{
		Type: model.AccountIMAP,
		IMAP: model.IMAPAccount{
			Host:     "mail.example.com",
			Port:     993,
			Secure:   true,
			Username: "user@example.com",
		},
	}
}

func connectedProvider(t *testing.T, mock *mockClient) *Provider {
	t.Helper()
	p := New(testAccount(), provider.Credentials{Password: "secret"})
	p.Dial = func(model.Account) (Client, error) { return mock, nil }
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return p
}

func TestConnectLoginFailure(t *testing.T) {
	mock := &mockClient{loginErr: errors.New("authentication failed")}
	p := New(testAccount(), provider.Credentials{Password: "wrong"})
	p.Dial = func(model.Account) (Client, error) { return mock, nil }

	err := p.Connect(context.Background())
	var connErr *provider.ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
	if !mock.loggedOut {
		t.Fatalf("expected logout after failed login")
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	p := New(testAccount(), provider.Credentials{Password: "secret"})
	ctx := context.Background()

	if _, err := p.GetFolders(ctx); !errors.Is(err, provider.ErrNotConnected) {
		t.Errorf("GetFolders: got %v", err)
	}
	if _, err := p.GetMessages(ctx, "INBOX", 0); !errors.Is(err, provider.ErrNotConnected) {
		t.Errorf("GetMessages: got %v", err)
	}
	if _, err := p.GetMessage(ctx, "INBOX", "1"); !errors.Is(err, provider.ErrNotConnected) {
		t.Errorf("GetMessage: got %v", err)
	}
	if err := p.UploadMessages(ctx, "INBOX", nil); !errors.Is(err, provider.ErrNotConnected) {
		t.Errorf("UploadMessages: got %v", err)
	}
	if err := p.CreateFolder(ctx, "Archive"); !errors.Is(err, provider.ErrNotConnected) {
		t.Errorf("CreateFolder: got %v", err)
	}
	if _, err := p.GetTotalMessageCount(ctx); !errors.Is(err, provider.ErrNotConnected) {
		t.Errorf("GetTotalMessageCount: got %v", err)
	}
}

func TestDisconnectResetsConnection(t *testing.T) {
	mock := &mockClient{statuses: map[string]*imap.MailboxStatus{}}
	p := connectedProvider(t, mock)

	if err := p.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if !mock.loggedOut {
		t.Fatalf("expected logout on disconnect")
	}
	if _, err := p.GetFolders(context.Background()); !errors.Is(err, provider.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}
}

func TestGetMessagesParsesFetchedBodies(t *testing.T) {
	mock := &mockClient{
		statuses: map[string]*imap.MailboxStatus{
			"INBOX": {Name: "INBOX", Messages: 2},
		},
		messages: map[string][]storedMessage{
			"INBOX": {sampleStored(1, 101), sampleStored(2, 102)},
		},
	}
	p := connectedProvider(t, mock)

	msgs, err := p.GetMessages(context.Background(), "INBOX", 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for i, msg := range msgs {
		if msg.Folder != "INBOX" {
			t.Errorf("message %d: folder %q", i, msg.Folder)
		}
		if msg.Subject != fmt.Sprintf("Message %d", i+1) {
			t.Errorf("message %d: subject %q", i, msg.Subject)
		}
		if msg.UID != uint32(101+i) {
			t.Errorf("message %d: uid %d", i, msg.UID)
		}
		if len(msg.Raw) == 0 {
			t.Errorf("message %d: raw bytes missing", i)
		}
		if msg.From.Address == "" {
			t.Errorf("message %d: sender missing", i)
		}
	}
}

func TestGetMessagesLimitFetchesTailWindow(t *testing.T) {
	stored := []storedMessage{
		sampleStored(1, 101), sampleStored(2, 102), sampleStored(3, 103),
		sampleStored(4, 104), sampleStored(5, 105),
	}
	mock := &mockClient{
		statuses: map[string]*imap.MailboxStatus{
			"INBOX": {Name: "INBOX", Messages: 5},
		},
		messages: map[string][]storedMessage{"INBOX": stored},
	}
	p := connectedProvider(t, mock)

	msgs, err := p.GetMessages(context.Background(), "INBOX", 2)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].UID != 104 || msgs[1].UID != 105 {
		t.Fatalf("expected the newest messages, got uids %d, %d", msgs[0].UID, msgs[1].UID)
	}
	if len(mock.fetchSets) != 1 || mock.fetchSets[0] != "4:5" {
		t.Fatalf("expected a single 4:5 fetch, got %v", mock.fetchSets)
	}
}

func TestGetMessagesEmptyFolder(t *testing.T) {
	mock := &mockClient{
		statuses: map[string]*imap.MailboxStatus{
			"Drafts": {Name: "Drafts", Messages: 0},
		},
	}
	p := connectedProvider(t, mock)

	msgs, err := p.GetMessages(context.Background(), "Drafts", 0)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
	if len(mock.fetchSets) != 0 {
		t.Fatalf("no fetch should run against an empty folder")
	}
}

func TestGetMessageByUIDAndMessageID(t *testing.T) {
	mock := &mockClient{
		statuses: map[string]*imap.MailboxStatus{
			"INBOX": {Name: "INBOX", Messages: 2},
		},
		messages: map[string][]storedMessage{
			"INBOX": {sampleStored(1, 101), sampleStored(2, 102)},
		},
	}
	p := connectedProvider(t, mock)
	ctx := context.Background()

	byUID, err := p.GetMessage(ctx, "INBOX", "102")
	if err != nil {
		t.Fatalf("get by uid: %v", err)
	}
	if byUID.Subject != "Message 2" {
		t.Fatalf("uid lookup: subject %q", byUID.Subject)
	}

	byID, err := p.GetMessage(ctx, "INBOX", "m1@example.com")
	if err != nil {
		t.Fatalf("get by message-id: %v", err)
	}
	if byID.UID != 101 {
		t.Fatalf("message-id lookup: uid %d", byID.UID)
	}

	if _, err := p.GetMessage(ctx, "INBOX", "missing@example.com"); !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := p.GetMessage(ctx, "INBOX", "999"); !errors.Is(err, provider.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown uid, got %v", err)
	}
}

func TestGetFoldersBuildsTree(t *testing.T) {
	mock := &mockClient{
		mailboxes: []*imap.MailboxInfo{
			{Name: "INBOX", Delimiter: "/"},
			{Name: "Archive", Delimiter: "/"},
			{Name: "Archive/2023", Delimiter: "/"},
			{Name: "Archive/2023/January", Delimiter: "/"},
		},
		statuses: map[string]*imap.MailboxStatus{
			"INBOX":                {Name: "INBOX", Messages: 10, Unseen: 2},
			"Archive":              {Name: "Archive", Messages: 5},
			"Archive/2023":         {Name: "Archive/2023", Messages: 3},
			"Archive/2023/January": {Name: "Archive/2023/January", Messages: 1},
		},
	}
	p := connectedProvider(t, mock)

	folders, err := p.GetFolders(context.Background())
	if err != nil {
		t.Fatalf("get folders: %v", err)
	}
	if len(folders) != 2 {
		t.Fatalf("expected 2 root folders, got %d: %+v", len(folders), folders)
	}

	var archive *model.Folder
	for i := range folders {
		if folders[i].Path == "Archive" {
			archive = &folders[i]
		}
	}
	if archive == nil {
		t.Fatalf("Archive missing from roots: %+v", folders)
	}
	if len(archive.Children) != 1 || archive.Children[0].Path != "Archive/2023" {
		t.Fatalf("expected Archive/2023 as child, got %+v", archive.Children)
	}
	if archive.Children[0].Name != "2023" {
		t.Fatalf("expected leaf name 2023, got %q", archive.Children[0].Name)
	}
	if archive.MessageCount != 5 {
		t.Fatalf("expected message count 5, got %d", archive.MessageCount)
	}

	// Depth three must survive the tree build.
	year := archive.Children[0]
	if len(year.Children) != 1 || year.Children[0].Path != "Archive/2023/January" {
		t.Fatalf("grandchild lost: %+v", year.Children)
	}
	if year.Children[0].Name != "January" || year.Children[0].MessageCount != 1 {
		t.Fatalf("unexpected grandchild: %+v", year.Children[0])
	}

	// Every folder, including the grandchild, must be reachable for backup.
	flat := model.FlattenFolders(folders)
	if len(flat) != 4 {
		t.Fatalf("expected 4 folders flattened, got %d: %+v", len(flat), flat)
	}
}

func TestUploadMessagesStopsOnMissingRaw(t *testing.T) {
	mock := &mockClient{statuses: map[string]*imap.MailboxStatus{}}
	p := connectedProvider(t, mock)

	msgs := []model.EmailMessage{
		{ID: "a", Raw: []byte("Subject: a\r\n\r\nfirst\r\n"), Flags: []string{imap.SeenFlag, imap.RecentFlag}},
		{ID: "b"},
		{ID: "c", Raw: []byte("Subject: c\r\n\r\nthird\r\n")},
	}

	err := p.UploadMessages(context.Background(), "Restore", msgs)
	if !errors.Is(err, provider.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	// The first message is already uploaded when the bad one aborts the run.
	if len(mock.appends) != 1 {
		t.Fatalf("expected 1 append, got %d", len(mock.appends))
	}
	if mock.appends[0].mailbox != "Restore" {
		t.Fatalf("appended to %q", mock.appends[0].mailbox)
	}
	for _, f := range mock.appends[0].flags {
		if f == imap.RecentFlag {
			t.Fatalf("\\Recent must be stripped before append")
		}
	}
}

func TestCreateAndDeleteFolderErrors(t *testing.T) {
	mock := &mockClient{
		statuses:  map[string]*imap.MailboxStatus{},
		createErr: errors.New("ALREADYEXISTS"),
		deleteErr: errors.New("NONEXISTENT"),
	}
	p := connectedProvider(t, mock)
	ctx := context.Background()

	var provErr *provider.ProviderError
	if err := p.CreateFolder(ctx, "Archive"); !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if err := p.DeleteFolder(ctx, "Archive"); !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestGetTotalMessageCountSumsMailboxes(t *testing.T) {
	mock := &mockClient{
		mailboxes: []*imap.MailboxInfo{
			{Name: "INBOX"}, {Name: "Archive"}, {Name: "Broken"},
		},
		statuses: map[string]*imap.MailboxStatus{
			"INBOX":   {Name: "INBOX", Messages: 10},
			"Archive": {Name: "Archive", Messages: 5},
			// Broken has no status entry and is skipped.
		},
	}
	p := connectedProvider(t, mock)

	total, err := p.GetTotalMessageCount(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 15 {
		t.Fatalf("expected 15, got %d", total)
	}
}
