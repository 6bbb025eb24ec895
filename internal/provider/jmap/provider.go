// Package jmap implements the provider contract over the JMAP batched
// method-call protocol (RFC 8620 core, RFC 8621 mail) with Basic Auth.
package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"mailport/internal/model"
	"mailport/internal/provider"
)

// keywordFlags maps JMAP keywords to IMAP-style flags. Keywords outside this
// map are preserved in the message's Labels instead of being dropped.
var keywordFlags = map[string]string{
	"$seen":     "\\Seen",
	"$flagged":  "\\Flagged",
	"$answered": "\\Answered",
	"$draft":    "\\Draft",
}

var flagKeywords = map[string]string{
	"\\Seen":     "$seen",
	"\\Flagged":  "$flagged",
	"\\Answered": "$answered",
	"\\Draft":    "$draft",
}

// Provider speaks JMAP for one account. The mailbox cache is valid only for
// the connected lifetime of the instance and is not safe for concurrent use.
type Provider struct {
	sessionURL string
	username   string
	password   string

	httpClient *http.Client

	session   *session
	accountID string
	mailboxes map[string]mailbox
	connected bool

	callSeq int
}

func New(account model.Account, creds provider.Credentials) *Provider {
	return &Provider{
		sessionURL: account.JMAP.SessionURL,
		username:   account.JMAP.Username,
		password:   creds.Password,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetHTTPClient overrides the transport (for testing).
func (p *Provider) SetHTTPClient(c *http.Client) {
	p.httpClient = c
}

func (p *Provider) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.sessionURL, nil)
	if err != nil {
		return &provider.ConnectionError{Err: err}
	}
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &provider.ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &provider.ConnectionError{Err: fmt.Errorf("session request: %s %s", resp.Status, strings.TrimSpace(string(body)))}
	}

	var s session
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return &provider.ConnectionError{Err: fmt.Errorf("malformed session response: %w", err)}
	}
	accountID, ok := s.PrimaryAccounts[MailCapability]
	if !ok || accountID == "" || s.APIURL == "" {
		return &provider.ConnectionError{Err: fmt.Errorf("session advertises no mail capability")}
	}

	p.session = &s
	p.accountID = accountID
	p.connected = true
	return nil
}

func (p *Provider) Disconnect() error {
	p.session = nil
	p.accountID = ""
	p.mailboxes = nil
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

// invoke POSTs a batch of method calls and returns the raw response.
func (p *Provider) invoke(ctx context.Context, calls ...methodCall) (*response, error) {
	req := request{
		Using:       []string{CoreCapability, MailCapability},
		MethodCalls: make([]interface{}, len(calls)),
	}
	for i, c := range calls {
		req.MethodCalls[i] = c
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.session.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(p.username, p.password)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &provider.ProviderError{
			Op:   "jmap request",
			Desc: httpResp.Status + " " + strings.TrimSpace(string(respBody)),
		}
	}

	var resp response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode jmap response: %w", err)
	}
	return &resp, nil
}

// find matches a method response by client call ID rather than position. An
// error-named response for the ID surfaces as a ProviderError.
func (r *response) find(callID string) (json.RawMessage, error) {
	for _, mr := range r.MethodResponses {
		if len(mr) != 3 {
			continue
		}
		var name, id string
		if err := json.Unmarshal(mr[0], &name); err != nil {
			continue
		}
		if err := json.Unmarshal(mr[2], &id); err != nil {
			continue
		}
		if id != callID {
			continue
		}
		if name == "error" {
			var e setError
			_ = json.Unmarshal(mr[1], &e)
			desc := e.Description
			if desc == "" {
				desc = e.Type
			}
			return nil, &provider.ProviderError{Op: callID, Desc: desc}
		}
		return mr[1], nil
	}
	return nil, fmt.Errorf("no method response for call %q", callID)
}

func (p *Provider) nextCallID(prefix string) string {
	p.callSeq++
	return fmt.Sprintf("%s-%d", prefix, p.callSeq)
}

func (p *Provider) getMailboxes(ctx context.Context) (map[string]mailbox, error) {
	if p.mailboxes != nil {
		return p.mailboxes, nil
	}

	callID := p.nextCallID("mailboxes")
	resp, err := p.invoke(ctx, methodCall{
		Name: "Mailbox/get",
		Args: map[string]interface{}{"accountId": p.accountID},
		ID:   callID,
	})
	if err != nil {
		return nil, err
	}
	args, err := resp.find(callID)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []mailbox `json:"list"`
	}
	if err := json.Unmarshal(args, &result); err != nil {
		return nil, fmt.Errorf("parse mailboxes: %w", err)
	}

	p.mailboxes = make(map[string]mailbox, len(result.List))
	for _, mb := range result.List {
		p.mailboxes[mb.ID] = mb
	}
	return p.mailboxes, nil
}

func (p *Provider) GetFolders(ctx context.Context) ([]model.Folder, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	boxes, err := p.getMailboxes(ctx)
	if err != nil {
		return nil, err
	}

	// Mailbox/get returns a flat list with parentId back-references. The
	// parent/child links are collected by ID first and the value tree is
	// materialized in one recursive pass, so nesting depth is unbounded and
	// the relative sort order of child and parent IDs does not matter.
	nodes := make(map[string]*model.Folder, len(boxes))
	ids := make([]string, 0, len(boxes))
	for id, mb := range boxes {
		nodes[id] = &model.Folder{
			Name:         mb.Name,
			Path:         mb.ID,
			Delimiter:    "/",
			MessageCount: mb.TotalEmails,
			UnreadCount:  mb.UnreadEmails,
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	childIDs := make(map[string][]string)
	var rootIDs []string
	for _, id := range ids {
		mb := boxes[id]
		if mb.ParentID != "" && mb.ParentID != id {
			if _, ok := nodes[mb.ParentID]; ok {
				childIDs[mb.ParentID] = append(childIDs[mb.ParentID], id)
				continue
			}
		}
		rootIDs = append(rootIDs, id)
	}

	var materialize func(id string) model.Folder
	materialize = func(id string) model.Folder {
		out := *nodes[id]
		for _, child := range childIDs[id] {
			out.Children = append(out.Children, materialize(child))
		}
		return out
	}

	out := make([]model.Folder, 0, len(rootIDs))
	for _, id := range rootIDs {
		out = append(out, materialize(id))
	}
	return out, nil
}

func (p *Provider) GetMessages(ctx context.Context, folderPath string, limit int) ([]model.EmailMessage, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	queryArgs := map[string]interface{}{
		"accountId": p.accountID,
		"filter":    map[string]interface{}{"inMailbox": folderPath},
		"sort":      []map[string]interface{}{{"property": "receivedAt", "isAscending": false}},
	}
	if limit > 0 {
		queryArgs["limit"] = limit
	}

	queryID := p.nextCallID("query")
	getID := p.nextCallID("get")
	resp, err := p.invoke(ctx,
		methodCall{Name: "Email/query", Args: queryArgs, ID: queryID},
		methodCall{
			Name: "Email/get",
			Args: map[string]interface{}{
				"accountId":           p.accountID,
				"#ids":                map[string]interface{}{"resultOf": queryID, "name": "Email/query", "path": "/ids"},
				"properties":          emailProperties,
				"fetchTextBodyValues": true,
				"fetchHTMLBodyValues": true,
			},
			ID: getID,
		},
	)
	if err != nil {
		return nil, err
	}

	args, err := resp.find(getID)
	if err != nil {
		return nil, err
	}
	var result struct {
		List []email `json:"list"`
	}
	if err := json.Unmarshal(args, &result); err != nil {
		return nil, fmt.Errorf("parse emails: %w", err)
	}

	boxes, err := p.getMailboxes(ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]model.EmailMessage, 0, len(result.List))
	for i, e := range result.List {
		msg := convertEmail(e, boxes)
		msg.Folder = folderPath
		msg.UID = uint32(i + 1)
		messages = append(messages, msg)
	}
	return messages, nil
}

func (p *Provider) GetMessage(ctx context.Context, folderPath, id string) (model.EmailMessage, error) {
	if !p.connected {
		return model.EmailMessage{}, provider.ErrNotConnected
	}

	callID := p.nextCallID("get")
	resp, err := p.invoke(ctx, methodCall{
		Name: "Email/get",
		Args: map[string]interface{}{
			"accountId":           p.accountID,
			"ids":                 []string{id},
			"properties":          emailProperties,
			"fetchTextBodyValues": true,
			"fetchHTMLBodyValues": true,
		},
		ID: callID,
	})
	if err != nil {
		return model.EmailMessage{}, err
	}
	args, err := resp.find(callID)
	if err != nil {
		return model.EmailMessage{}, err
	}

	var result struct {
		List     []email  `json:"list"`
		NotFound []string `json:"notFound"`
	}
	if err := json.Unmarshal(args, &result); err != nil {
		return model.EmailMessage{}, fmt.Errorf("parse email: %w", err)
	}
	if len(result.List) == 0 {
		return model.EmailMessage{}, fmt.Errorf("message %q: %w", id, provider.ErrNotFound)
	}
	e := result.List[0]
	if folderPath != "" && !e.MailboxIDs[folderPath] {
		return model.EmailMessage{}, fmt.Errorf("message %q not in mailbox %q: %w", id, folderPath, provider.ErrNotFound)
	}

	boxes, err := p.getMailboxes(ctx)
	if err != nil {
		return model.EmailMessage{}, err
	}
	msg := convertEmail(e, boxes)
	msg.Folder = folderPath
	return msg, nil
}

// UploadMessages is a two-step sequence per message: upload the raw bytes to
// the session upload endpoint, then Email/import the resulting blob into the
// target mailbox.
func (p *Provider) UploadMessages(ctx context.Context, folderPath string, msgs []model.EmailMessage) error {
	if !p.connected {
		return provider.ErrNotConnected
	}
	for i, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(msg.Raw) == 0 {
			return fmt.Errorf("message %q has no raw content: %w", msg.ID, provider.ErrInvalidArgument)
		}

		blobID, err := p.uploadBlob(ctx, msg.Raw)
		if err != nil {
			return err
		}

		creationID := fmt.Sprintf("msg%d", i+1)
		keywords := map[string]bool{}
		for _, flag := range msg.Flags {
			if kw, ok := flagKeywords[flag]; ok {
				keywords[kw] = true
			}
		}
		importArgs := map[string]interface{}{
			"accountId": p.accountID,
			"emails": map[string]interface{}{
				creationID: map[string]interface{}{
					"blobId":     blobID,
					"mailboxIds": map[string]bool{folderPath: true},
					"keywords":   keywords,
				},
			},
		}

		callID := p.nextCallID("import")
		resp, err := p.invoke(ctx, methodCall{Name: "Email/import", Args: importArgs, ID: callID})
		if err != nil {
			return err
		}
		args, err := resp.find(callID)
		if err != nil {
			return err
		}
		var result struct {
			NotCreated map[string]setError `json:"notCreated"`
		}
		if err := json.Unmarshal(args, &result); err != nil {
			return err
		}
		if e, ok := result.NotCreated[creationID]; ok {
			return &provider.ProviderError{Op: "import message", Desc: e.Description}
		}
	}
	return nil
}

// DownloadBlob fetches the bytes of one blob, typically an attachment part.
// Blob content is not fetched eagerly during listing.
func (p *Provider) DownloadBlob(ctx context.Context, blobID, name, contentType string) ([]byte, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	replacer := strings.NewReplacer(
		"{accountId}", url.PathEscape(p.accountID),
		"{blobId}", url.PathEscape(blobID),
		"{name}", url.PathEscape(name),
		"{type}", url.QueryEscape(contentType),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, replacer.Replace(p.session.DownloadURL), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.username, p.password)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("blob %q: %w", blobID, provider.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &provider.ProviderError{
			Op:   "download blob",
			Desc: resp.Status + " " + strings.TrimSpace(string(body)),
		}
	}
	return io.ReadAll(resp.Body)
}

func (p *Provider) uploadBlob(ctx context.Context, data []byte) (string, error) {
	uploadURL := strings.ReplaceAll(p.session.UploadURL, "{accountId}", p.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.username, p.password)
	req.Header.Set("Content-Type", "message/rfc822")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return "", &provider.ProviderError{
			Op:   "upload blob",
			Desc: resp.Status + " " + strings.TrimSpace(string(body)),
		}
	}

	var upload uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&upload); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if upload.BlobID == "" {
		return "", &provider.ProviderError{Op: "upload blob", Desc: "no blobId in upload response"}
	}
	return upload.BlobID, nil
}

func (p *Provider) CreateFolder(ctx context.Context, path string) error {
	if !p.connected {
		return provider.ErrNotConnected
	}

	callID := p.nextCallID("create")
	resp, err := p.invoke(ctx, methodCall{
		Name: "Mailbox/set",
		Args: map[string]interface{}{
			"accountId": p.accountID,
			"create": map[string]interface{}{
				"new": map[string]interface{}{"name": path},
			},
		},
		ID: callID,
	})
	if err != nil {
		return err
	}
	args, err := resp.find(callID)
	if err != nil {
		return err
	}

	var result struct {
		Created    map[string]json.RawMessage `json:"created"`
		NotCreated map[string]setError        `json:"notCreated"`
	}
	if err := json.Unmarshal(args, &result); err != nil {
		return err
	}
	if e, ok := result.NotCreated["new"]; ok {
		return &provider.ProviderError{Op: "create mailbox", Desc: e.Description}
	}
	p.mailboxes = nil // cache is stale
	return nil
}

func (p *Provider) DeleteFolder(ctx context.Context, path string) error {
	if !p.connected {
		return provider.ErrNotConnected
	}

	callID := p.nextCallID("destroy")
	resp, err := p.invoke(ctx, methodCall{
		Name: "Mailbox/set",
		Args: map[string]interface{}{
			"accountId": p.accountID,
			"destroy":   []string{path},
		},
		ID: callID,
	})
	if err != nil {
		return err
	}
	args, err := resp.find(callID)
	if err != nil {
		return err
	}

	var result struct {
		NotDestroyed map[string]setError `json:"notDestroyed"`
	}
	if err := json.Unmarshal(args, &result); err != nil {
		return err
	}
	if e, ok := result.NotDestroyed[path]; ok {
		return &provider.ProviderError{Op: "delete mailbox", Desc: e.Description}
	}
	p.mailboxes = nil
	return nil
}

func (p *Provider) GetTotalMessageCount(ctx context.Context) (int, error) {
	if !p.connected {
		return 0, provider.ErrNotConnected
	}
	boxes, err := p.getMailboxes(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, mb := range boxes {
		total += mb.TotalEmails
	}
	return total, nil
}

// convertEmail normalizes a JMAP email. JMAP has no raw transport, so Raw is
// never populated and exporters reconstruct from the structured fields.
func convertEmail(e email, boxes map[string]mailbox) model.EmailMessage {
	m := model.EmailMessage{
		Subject: e.Subject,
		Date:    e.ReceivedAt,
	}

	if len(e.MessageID) > 0 {
		m.ID = e.MessageID[0]
	} else {
		m.ID = e.ID
	}
	if len(e.From) > 0 {
		m.From = model.EmailAddress{Name: e.From[0].Name, Address: e.From[0].Email}
	}
	m.To = convertAddresses(e.To)
	m.Cc = convertAddresses(e.CC)
	m.Bcc = convertAddresses(e.BCC)

	// First resolvable part wins per content kind.
	m.Text = firstBodyValue(e.TextBody, e.BodyValues)
	m.HTML = firstBodyValue(e.HTMLBody, e.BodyValues)

	for _, part := range e.Attachments {
		m.Attachments = append(m.Attachments, model.Attachment{
			Filename:    part.Name,
			ContentType: part.Type,
			Size:        part.Size,
			ContentID:   part.CID,
		})
	}

	for kw := range e.Keywords {
		if flag, ok := keywordFlags[kw]; ok {
			m.Flags = append(m.Flags, flag)
		} else {
			m.Labels = append(m.Labels, kw)
		}
	}
	sort.Strings(m.Flags)

	mailboxNames := make([]string, 0, len(e.MailboxIDs))
	for id := range e.MailboxIDs {
		if mb, ok := boxes[id]; ok {
			mailboxNames = append(mailboxNames, mb.Name)
		}
	}
	sort.Strings(mailboxNames)
	m.Labels = append(m.Labels, mailboxNames...)

	fillHeaders(&m)
	model.Normalize(&m)
	return m
}

func convertAddresses(addrs []emailAddress) []model.EmailAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]model.EmailAddress, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, model.EmailAddress{Name: a.Name, Address: a.Email})
	}
	return out
}

func firstBodyValue(parts []bodyPart, values map[string]bodyValue) string {
	for _, part := range parts {
		if v, ok := values[part.PartID]; ok {
			return v.Value
		}
	}
	return ""
}

// fillHeaders synthesizes the basic header set from the structured fields so
// reconstruction-based exporters have something to work with.
func fillHeaders(m *model.EmailMessage) {
	if m.Subject != "" {
		m.AddHeader("Subject", m.Subject)
	}
	if m.From.Address != "" {
		m.AddHeader("From", m.From.String())
	}
	if len(m.To) > 0 {
		m.AddHeader("To", joinAddresses(m.To))
	}
	if len(m.Cc) > 0 {
		m.AddHeader("Cc", joinAddresses(m.Cc))
	}
	if !m.Date.IsZero() {
		m.AddHeader("Date", m.Date.Format(time.RFC1123Z))
	}
	if m.ID != "" {
		m.AddHeader("Message-Id", "<"+m.ID+">")
	}
}

func joinAddresses(addrs []model.EmailAddress) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.String())
	}
	return strings.Join(parts, ", ")
}
