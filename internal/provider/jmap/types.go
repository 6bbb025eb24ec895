package jmap

import (
	"encoding/json"
	"time"
)

// Capability URNs per RFC 8620/8621.
const (
	CoreCapability = "urn:ietf:params:jmap:core"
	MailCapability = "urn:ietf:params:jmap:mail"
)

// session is the resource served at the account's session URL.
type session struct {
	APIURL          string            `json:"apiUrl"`
	DownloadURL     string            `json:"downloadUrl"`
	UploadURL       string            `json:"uploadUrl"`
	PrimaryAccounts map[string]string `json:"primaryAccounts"`
}

// request is the batched method-call envelope.
type request struct {
	Using       []string      `json:"using"`
	MethodCalls []interface{} `json:"methodCalls"`
}

// methodCall serializes to the [name, args, clientId] triple.
type methodCall struct {
	Name string
	Args interface{}
	ID   string
}

func (c methodCall) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{c.Name, c.Args, c.ID})
}

type response struct {
	MethodResponses [][]json.RawMessage `json:"methodResponses"`
	SessionState    string              `json:"sessionState"`
}

type mailbox struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ParentID     string `json:"parentId,omitempty"`
	Role         string `json:"role,omitempty"`
	TotalEmails  int    `json:"totalEmails"`
	UnreadEmails int    `json:"unreadEmails"`
}

type emailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type bodyPart struct {
	PartID string `json:"partId"`
	BlobID string `json:"blobId,omitempty"`
	Type   string `json:"type"`
	Size   int    `json:"size,omitempty"`
	Name   string `json:"name,omitempty"`
	CID    string `json:"cid,omitempty"`
}

type bodyValue struct {
	Value             string `json:"value"`
	IsTruncated       bool   `json:"isTruncated"`
	IsEncodingProblem bool   `json:"isEncodingProblem"`
}

type email struct {
	ID          string               `json:"id"`
	ThreadID    string               `json:"threadId"`
	MailboxIDs  map[string]bool      `json:"mailboxIds,omitempty"`
	Keywords    map[string]bool      `json:"keywords,omitempty"`
	MessageID   []string             `json:"messageId,omitempty"`
	Subject     string               `json:"subject"`
	From        []emailAddress       `json:"from,omitempty"`
	To          []emailAddress       `json:"to,omitempty"`
	CC          []emailAddress       `json:"cc,omitempty"`
	BCC         []emailAddress       `json:"bcc,omitempty"`
	ReceivedAt  time.Time            `json:"receivedAt"`
	TextBody    []bodyPart           `json:"textBody,omitempty"`
	HTMLBody    []bodyPart           `json:"htmlBody,omitempty"`
	Attachments []bodyPart           `json:"attachments,omitempty"`
	BodyValues  map[string]bodyValue `json:"bodyValues,omitempty"`
}

type setError struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type uploadResponse struct {
	AccountID string `json:"accountId"`
	BlobID    string `json:"blobId"`
	Type      string `json:"type"`
	Size      int    `json:"size"`
}

// emailProperties is the explicit property list for Email/get: body values
// are requested inline, not lazily.
var emailProperties = []string{
	"id", "threadId", "mailboxIds", "keywords", "messageId",
	"subject", "from", "to", "cc", "bcc", "receivedAt",
	"textBody", "htmlBody", "attachments", "bodyValues",
}
