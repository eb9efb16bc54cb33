package jmap

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Capability URNs sent with every request.
const (
	CapCore       = "urn:ietf:params:jmap:core"
	CapMail       = "urn:ietf:params:jmap:mail"
	CapSubmission = "urn:ietf:params:jmap:submission"
)

// Keywords with protocol-defined meaning.
const (
	KeywordSeen     = "$seen"
	KeywordFlagged  = "$flagged"
	KeywordDraft    = "$draft"
	KeywordAnswered = "$answered"
)

// Request is the JMAP request envelope.
type Request struct {
	Using       []string     `json:"using"`
	MethodCalls []Invocation `json:"methodCalls"`
}

// Invocation is one [name, arguments, callId] triple inside a request.
type Invocation struct {
	Name   string
	Args   any
	CallID string
}

// MarshalJSON encodes the invocation as the wire-format triple.
func (inv Invocation) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{inv.Name, inv.Args, inv.CallID})
}

// UnmarshalJSON decodes the wire-format triple. Args comes back as
// json.RawMessage.
func (inv *Invocation) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("method call is not an array: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("method call has %d elements, want 3", len(parts))
	}
	if err := json.Unmarshal(parts[0], &inv.Name); err != nil {
		return fmt.Errorf("method call name: %w", err)
	}
	inv.Args = parts[1]
	if err := json.Unmarshal(parts[2], &inv.CallID); err != nil {
		return fmt.Errorf("method call id: %w", err)
	}
	return nil
}

// Response is the JMAP response envelope.
type Response struct {
	MethodResponses []ResponseInvocation `json:"methodResponses"`
	SessionState    string               `json:"sessionState,omitempty"`
}

// ResponseInvocation is one [name, result, callId] triple inside a response.
// The result is kept raw; each operation decodes it into its own shape.
type ResponseInvocation struct {
	Name   string
	Args   json.RawMessage
	CallID string
}

// UnmarshalJSON decodes the wire-format triple.
func (inv *ResponseInvocation) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("method response is not an array: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("method response has %d elements, want 3", len(parts))
	}
	if err := json.Unmarshal(parts[0], &inv.Name); err != nil {
		return fmt.Errorf("method response name: %w", err)
	}
	inv.Args = parts[1]
	if err := json.Unmarshal(parts[2], &inv.CallID); err != nil {
		return fmt.Errorf("method response call id: %w", err)
	}
	return nil
}

// Session is the JMAP session object discovered from the server.
type Session struct {
	APIURL          string             `json:"apiUrl"`
	DownloadURL     string             `json:"downloadUrl"`
	UploadURL       string             `json:"uploadUrl"`
	EventSourceURL  string             `json:"eventSourceUrl,omitempty"`
	Accounts        map[string]Account `json:"accounts"`
	PrimaryAccounts map[string]string  `json:"primaryAccounts,omitempty"`
	Capabilities    map[string]any     `json:"capabilities,omitempty"`
	Username        string             `json:"username,omitempty"`
	State           string             `json:"state,omitempty"`
}

// Account is one account entry in the session object.
type Account struct {
	Name       string `json:"name"`
	IsPersonal bool   `json:"isPersonal"`
	IsReadOnly bool   `json:"isReadOnly"`
}

// Mailbox is a JMAP mailbox (folder).
type Mailbox struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ParentID      string `json:"parentId,omitempty"`
	Role          string `json:"role,omitempty"`
	SortOrder     int    `json:"sortOrder,omitempty"`
	TotalEmails   int    `json:"totalEmails"`
	UnreadEmails  int    `json:"unreadEmails"`
	TotalThreads  int    `json:"totalThreads,omitempty"`
	UnreadThreads int    `json:"unreadThreads,omitempty"`
}

// EmailAddress is an address with an optional display name.
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// String formats the address for display.
func (a EmailAddress) String() string {
	if a.Name != "" {
		return a.Name + " <" + a.Email + ">"
	}
	return a.Email
}

// BodyValue carries decoded body content keyed by part id.
type BodyValue struct {
	Value             string `json:"value"`
	IsTruncated       bool   `json:"isTruncated,omitempty"`
	IsEncodingProblem bool   `json:"isEncodingProblem,omitempty"`
}

// BodyPartRef points into the body-value map for a text or HTML rendering.
type BodyPartRef struct {
	PartID string `json:"partId"`
	Type   string `json:"type"`
}

// Email is a normalized JMAP email.
type Email struct {
	ID            string               `json:"id"`
	ThreadID      string               `json:"threadId,omitempty"`
	MailboxIDs    map[string]bool      `json:"mailboxIds,omitempty"`
	Keywords      map[string]bool      `json:"keywords,omitempty"`
	Size          int64                `json:"size,omitempty"`
	ReceivedAt    time.Time            `json:"receivedAt"`
	Preview       string               `json:"preview,omitempty"`
	Subject       string               `json:"subject"`
	From          []EmailAddress       `json:"from,omitempty"`
	To            []EmailAddress       `json:"to,omitempty"`
	CC            []EmailAddress       `json:"cc,omitempty"`
	BCC           []EmailAddress       `json:"bcc,omitempty"`
	ReplyTo       []EmailAddress       `json:"replyTo,omitempty"`
	MessageID     []string             `json:"messageId,omitempty"`
	InReplyTo     []string             `json:"inReplyTo,omitempty"`
	References    []string             `json:"references,omitempty"`
	BodyStructure *BodyPart            `json:"bodyStructure,omitempty"`
	BodyValues    map[string]BodyValue `json:"bodyValues,omitempty"`
	TextBody      []BodyPartRef        `json:"textBody,omitempty"`
	HTMLBody      []BodyPartRef        `json:"htmlBody,omitempty"`

	// HasAttachmentHint is the server-declared boolean. It is an untrusted
	// hint; use HasAttachments, which walks the body structure.
	HasAttachmentHint bool `json:"hasAttachment,omitempty"`
}

// IsUnread reports whether the $seen keyword is absent or false.
func (e *Email) IsUnread() bool {
	return !e.Keywords[KeywordSeen]
}

// IsStarred reports whether the $flagged keyword is present and true.
func (e *Email) IsStarred() bool {
	return e.Keywords[KeywordFlagged]
}

// IsDraft reports whether the $draft keyword is present and true.
func (e *Email) IsDraft() bool {
	return e.Keywords[KeywordDraft]
}

// TextContent returns the first plain-text body value, or "".
func (e *Email) TextContent() string {
	return e.bodyContent(e.TextBody)
}

// HTMLContent returns the first HTML body value, or "".
func (e *Email) HTMLContent() string {
	return e.bodyContent(e.HTMLBody)
}

func (e *Email) bodyContent(refs []BodyPartRef) string {
	for _, ref := range refs {
		if bv, ok := e.BodyValues[ref.PartID]; ok {
			return bv.Value
		}
	}
	return ""
}

// QueryResult is the outcome of an Email/query call.
type QueryResult struct {
	IDs        []string
	Position   int
	Total      int64
	QueryState string
}

// Identity is a sending identity from Identity/get.
type Identity struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email"`
	MayDelete bool   `json:"mayDelete,omitempty"`
}

// SubmissionStatus is a normalized view of one EmailSubmission object.
// Delivered and Failed stay nil while the server still reports the
// submission as queued or unknown.
type SubmissionStatus struct {
	ID         string
	EmailID    string
	Delivered  *bool
	Failed     *bool
	StatusText string
}

// UnmarshalJSON folds the per-recipient deliveryStatus map into the
// normalized booleans: delivered when every recipient is "yes", failed when
// any is "no".
func (s *SubmissionStatus) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID             string `json:"id"`
		EmailID        string `json:"emailId,omitempty"`
		UndoStatus     string `json:"undoStatus,omitempty"`
		DeliveryStatus map[string]struct {
			SMTPReply string `json:"smtpReply,omitempty"`
			Delivered string `json:"delivered,omitempty"`
		} `json:"deliveryStatus,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	s.ID = wire.ID
	s.EmailID = wire.EmailID
	s.StatusText = wire.UndoStatus

	if len(wire.DeliveryStatus) == 0 {
		return nil
	}
	allDelivered := true
	anyFailed := false
	var replies []string
	for _, ds := range wire.DeliveryStatus {
		switch ds.Delivered {
		case "yes":
		case "no":
			anyFailed = true
			allDelivered = false
		default:
			allDelivered = false
		}
		if ds.SMTPReply != "" {
			replies = append(replies, ds.SMTPReply)
		}
	}
	if allDelivered {
		s.Delivered = boolPtr(true)
		s.Failed = boolPtr(false)
	} else if anyFailed {
		s.Delivered = boolPtr(false)
		s.Failed = boolPtr(true)
	}
	if len(replies) > 0 {
		sort.Strings(replies)
		s.StatusText = strings.Join(replies, "; ")
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

// UploadResult is the server's answer to a blob upload.
type UploadResult struct {
	AccountID string `json:"accountId"`
	BlobID    string `json:"blobId"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
}
