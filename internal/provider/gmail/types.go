package gmail

// Wire types for the Gmail API v1 surface (users.labels.*, users.messages.*).

type profile struct {
	EmailAddress  string `json:"emailAddress"`
	MessagesTotal int    `json:"messagesTotal"`
	ThreadsTotal  int    `json:"threadsTotal"`
	HistoryID     string `json:"historyId"`
}

type label struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	MessagesTotal  int    `json:"messagesTotal"`
	MessagesUnread int    `json:"messagesUnread"`
}

type labelList struct {
	Labels []label `json:"labels"`
}

type messageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type messageList struct {
	Messages           []messageRef `json:"messages"`
	NextPageToken      string       `json:"nextPageToken"`
	ResultSizeEstimate int          `json:"resultSizeEstimate"`
}

type headerKV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type partBody struct {
	AttachmentID string `json:"attachmentId"`
	Size         int    `json:"size"`
	Data         string `json:"data"`
}

type messagePart struct {
	PartID   string        `json:"partId"`
	MimeType string        `json:"mimeType"`
	Filename string        `json:"filename"`
	Headers  []headerKV    `json:"headers"`
	Body     *partBody     `json:"body"`
	Parts    []messagePart `json:"parts"`
}

type apiMessage struct {
	ID           string       `json:"id"`
	ThreadID     string       `json:"threadId"`
	LabelIDs     []string     `json:"labelIds"`
	InternalDate string       `json:"internalDate"`
	SizeEstimate int          `json:"sizeEstimate"`
	Payload      *messagePart `json:"payload"`
	Raw          string       `json:"raw"`
}

type attachmentBody struct {
	Size int    `json:"size"`
	Data string `json:"data"`
}
