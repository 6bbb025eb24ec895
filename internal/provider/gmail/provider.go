// Package gmail implements the provider contract over the Gmail REST API v1
// with OAuth2 refresh-token auth.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"mailport/internal/model"
	"mailport/internal/provider"
)

const (
	// DefaultBaseURL is the fixed Gmail API endpoint; overridable for tests.
	DefaultBaseURL = "https://gmail.googleapis.com/gmail/v1"

	// maxPageSize is the hard API cap on users.messages.list.
	maxPageSize = 500
)

// Provider speaks the Gmail REST API for one account. Unlike IMAP and JMAP,
// TestConnection leaves the session bound to the instance.
type Provider struct {
	creds provider.Credentials

	baseURL     string
	httpClient  *http.Client
	tokenSource oauth2.TokenSource

	connected bool
	profile   *profile
}

func New(creds provider.Credentials) *Provider {
	return &Provider{
		creds:      creds,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// SetBaseURL overrides the API endpoint (for testing).
func (p *Provider) SetBaseURL(u string) {
	p.baseURL = strings.TrimSuffix(u, "/")
}

// SetHTTPClient overrides the transport (for testing).
func (p *Provider) SetHTTPClient(c *http.Client) {
	p.httpClient = c
}

// SetTokenSource overrides the OAuth2 token source (for testing).
func (p *Provider) SetTokenSource(ts oauth2.TokenSource) {
	p.tokenSource = ts
}

func (p *Provider) Connect(ctx context.Context) error {
	if p.tokenSource == nil {
		cfg := oauthConfig(p.creds.ClientID, p.creds.ClientSecret)
		// An already expired token forces a refresh on first use.
		p.tokenSource = cfg.TokenSource(ctx, &oauth2.Token{
			RefreshToken: p.creds.RefreshToken,
			Expiry:       time.Now().Add(-time.Minute),
		})
	}

	var prof profile
	if err := p.get(ctx, "/users/me/profile", nil, &prof); err != nil {
		p.tokenSource = nil
		return &provider.ConnectionError{Err: err}
	}
	p.profile = &prof
	p.connected = true
	return nil
}

func (p *Provider) Disconnect() error {
	p.connected = false
	p.profile = nil
	p.tokenSource = nil
	return nil
}

func (p *Provider) TestConnection(ctx context.Context) bool {
	return p.Connect(ctx) == nil
}

func (p *Provider) GetFolders(ctx context.Context) ([]model.Folder, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	var list labelList
	if err := p.get(ctx, "/users/me/labels", nil, &list); err != nil {
		return nil, err
	}

	// labels.list omits counts; labels.get reports them.
	folders := make([]model.Folder, 0, len(list.Labels))
	for _, l := range list.Labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		folder := model.Folder{Name: l.Name, Path: l.ID}
		var full label
		if err := p.get(ctx, "/users/me/labels/"+url.PathEscape(l.ID), nil, &full); err == nil {
			folder.MessageCount = full.MessagesTotal
			folder.UnreadCount = full.MessagesUnread
		}
		folders = append(folders, folder)
	}
	return folders, nil
}

func (p *Provider) GetMessages(ctx context.Context, folderPath string, limit int) ([]model.EmailMessage, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	ids, err := p.listMessageIDs(ctx, folderPath, limit)
	if err != nil {
		return nil, err
	}

	messages := make([]model.EmailMessage, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := p.GetMessage(ctx, folderPath, id)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// listMessageIDs pages through users.messages.list until limit IDs are
// collected, or until the server runs out when limit is 0.
func (p *Provider) listMessageIDs(ctx context.Context, labelID string, limit int) ([]string, error) {
	var ids []string
	pageToken := ""
	for {
		pageSize := maxPageSize
		if limit > 0 && limit-len(ids) < pageSize {
			pageSize = limit - len(ids)
		}
		query := url.Values{
			"labelIds":   {labelID},
			"maxResults": {strconv.Itoa(pageSize)},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var list messageList
		if err := p.get(ctx, "/users/me/messages", query, &list); err != nil {
			return nil, err
		}
		for _, ref := range list.Messages {
			ids = append(ids, ref.ID)
		}
		if limit > 0 && len(ids) >= limit {
			return ids[:limit], nil
		}
		if list.NextPageToken == "" {
			return ids, nil
		}
		pageToken = list.NextPageToken
	}
}

func (p *Provider) GetMessage(ctx context.Context, folderPath, id string) (model.EmailMessage, error) {
	if !p.connected {
		return model.EmailMessage{}, provider.ErrNotConnected
	}

	var api apiMessage
	query := url.Values{"format": {"full"}}
	if err := p.get(ctx, "/users/me/messages/"+url.PathEscape(id), query, &api); err != nil {
		return model.EmailMessage{}, err
	}

	msg := convertMessage(api)
	msg.Folder = folderPath
	return msg, nil
}

// FetchAttachment downloads the bytes of one attachment blob. Attachment
// content is not fetched eagerly during listing.
func (p *Provider) FetchAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if !p.connected {
		return nil, provider.ErrNotConnected
	}
	var body attachmentBody
	path := "/users/me/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(attachmentID)
	if err := p.get(ctx, path, nil, &body); err != nil {
		return nil, err
	}
	return decodeBase64URL(body.Data)
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
		payload := map[string]interface{}{
			"raw":      base64.RawURLEncoding.EncodeToString(msg.Raw),
			"labelIds": []string{folderPath},
		}
		if err := p.post(ctx, "/users/me/messages/import", payload, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) CreateFolder(ctx context.Context, path string) error {
	if !p.connected {
		return provider.ErrNotConnected
	}
	payload := map[string]interface{}{
		"name":                  path,
		"labelListVisibility":   "labelShow",
		"messageListVisibility": "show",
	}
	return p.post(ctx, "/users/me/labels", payload, nil)
}

func (p *Provider) DeleteFolder(ctx context.Context, path string) error {
	if !p.connected {
		return provider.ErrNotConnected
	}
	return p.do(ctx, http.MethodDelete, "/users/me/labels/"+url.PathEscape(path), nil, nil, nil)
}

func (p *Provider) GetTotalMessageCount(ctx context.Context) (int, error) {
	if !p.connected {
		return 0, provider.ErrNotConnected
	}
	if p.profile != nil {
		return p.profile.MessagesTotal, nil
	}
	var prof profile
	if err := p.get(ctx, "/users/me/profile", nil, &prof); err != nil {
		return 0, err
	}
	return prof.MessagesTotal, nil
}

func (p *Provider) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return p.do(ctx, http.MethodGet, path, query, nil, out)
}

func (p *Provider) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.do(ctx, http.MethodPost, path, nil, body, out)
}

func (p *Provider) do(ctx context.Context, method, path string, query url.Values, body []byte, out interface{}) error {
	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	token, err := p.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("refresh access token: %w", err)
	}
	token.SetAuthHeader(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return provider.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return &provider.ProviderError{
			Op:   method + " " + path,
			Desc: resp.Status + " " + strings.TrimSpace(string(respBody)),
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// convertMessage normalizes a full-format API message into the canonical
// model. Raw is only present when the response carried the optional raw blob.
func convertMessage(api apiMessage) model.EmailMessage {
	m := model.EmailMessage{
		ID:     api.ID,
		Labels: api.LabelIDs,
	}

	if api.Raw != "" {
		if raw, err := decodeBase64URL(api.Raw); err == nil {
			m.Raw = raw
		}
	}

	if ms, err := strconv.ParseInt(api.InternalDate, 10, 64); err == nil && ms > 0 {
		m.Date = time.UnixMilli(ms)
	}

	if api.Payload != nil {
		for _, h := range api.Payload.Headers {
			m.AddHeader(h.Name, h.Value)
			switch strings.ToLower(h.Name) {
			case "subject":
				m.Subject = h.Value
			case "from":
				m.From = model.ParseAddress(h.Value)
			case "to":
				m.To = model.ParseAddressList(h.Value)
			case "cc":
				m.Cc = model.ParseAddressList(h.Value)
			case "bcc":
				m.Bcc = model.ParseAddressList(h.Value)
			case "message-id":
				m.ID = strings.Trim(h.Value, "<>")
			case "date":
				if t, err := mail.ParseDate(h.Value); err == nil {
					m.Date = t
				}
			}
		}
		walkParts(*api.Payload, &m)
	}

	m.Flags = flagsFromLabels(api.LabelIDs)
	model.Normalize(&m)
	return m
}

// walkParts recurses the MIME part tree depth-first: first text/plain wins
// for Text, first text/html for HTML, filename+attachmentId parts become
// attachment metadata.
func walkParts(part messagePart, m *model.EmailMessage) {
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentID != "" {
		m.Attachments = append(m.Attachments, model.Attachment{
			Filename:    part.Filename,
			ContentType: part.MimeType,
			Size:        part.Body.Size,
			ContentID:   partContentID(part),
		})
	} else if part.Body != nil && part.Body.Data != "" {
		if data, err := decodeBase64URL(part.Body.Data); err == nil {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain") && m.Text == "":
				m.Text = string(data)
			case strings.HasPrefix(part.MimeType, "text/html") && m.HTML == "":
				m.HTML = string(data)
			}
		}
	}
	for _, child := range part.Parts {
		walkParts(child, m)
	}
}

func partContentID(part messagePart) string {
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, "Content-Id") {
			return strings.Trim(h.Value, "<>")
		}
	}
	return ""
}

func flagsFromLabels(labelIDs []string) []string {
	var flags []string
	unread := false
	for _, id := range labelIDs {
		switch id {
		case "UNREAD":
			unread = true
		case "STARRED":
			flags = append(flags, "\\Flagged")
		case "DRAFT":
			flags = append(flags, "\\Draft")
		}
	}
	if !unread {
		flags = append(flags, "\\Seen")
	}
	return flags
}

// decodeBase64URL accepts both padded and unpadded base64url input.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
