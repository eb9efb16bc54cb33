package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// Attachment is a file to be attached to an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// OutgoingEmail describes a message to be composed and submitted.
type OutgoingEmail struct {
	From        *EmailAddress // defaults to the primary identity
	To          []EmailAddress
	CC          []EmailAddress
	Subject     string
	TextBody    string
	HTMLBody    string
	InReplyTo   []string
	Attachments []Attachment

	// AccountID overrides account resolution; empty uses the session's
	// primary mail account.
	AccountID string
}

// GetIdentities lists the sending identities of the account.
func (c *Client) GetIdentities(ctx context.Context, accountID string) ([]Identity, error) {
	session, account, err := c.mailAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	inv := newInvocation("Identity/get", map[string]any{
		"accountId": account,
		"ids":       nil,
	})
	raw, err := c.invoke(ctx, session, []string{CapCore, CapMail, CapSubmission}, inv)
	if err != nil {
		return nil, err
	}

	var result struct {
		List []Identity `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	return result.List, nil
}

// SendEmail composes msg as an RFC 5322 message, imports it into the
// account's sent mailbox and submits it for delivery. It returns the id of
// the EmailSubmission object tracking delivery.
func (c *Client) SendEmail(ctx context.Context, msg OutgoingEmail) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("message has no recipients")
	}

	session, account, err := c.mailAccount(ctx, msg.AccountID)
	if err != nil {
		return "", err
	}

	identity, err := c.sendingIdentity(ctx, msg, account)
	if err != nil {
		return "", err
	}
	if msg.From == nil {
		msg.From = &EmailAddress{Name: identity.Name, Email: identity.Email}
	}

	raw, err := composeMessage(msg, c.now())
	if err != nil {
		return "", fmt.Errorf("composing message: %w", err)
	}

	blob, err := c.UploadBlob(ctx, raw, "message/rfc5322", account)
	if err != nil {
		return "", fmt.Errorf("uploading message: %w", err)
	}

	sent, err := c.sentMailbox(ctx, account)
	if err != nil {
		return "", err
	}

	emailID, err := c.importEmail(ctx, session, account, blob.BlobID, sent)
	if err != nil {
		return "", err
	}

	return c.submitEmail(ctx, session, account, emailID, identity.ID)
}

// sendingIdentity picks the identity matching msg.From, or the first
// advertised identity when From is unset.
func (c *Client) sendingIdentity(ctx context.Context, msg OutgoingEmail, account string) (*Identity, error) {
	identities, err := c.GetIdentities(ctx, account)
	if err != nil {
		return nil, err
	}
	if len(identities) == 0 {
		return nil, &ProtocolError{Method: "Identity/get", Detail: "account has no sending identities"}
	}
	if msg.From != nil {
		for i := range identities {
			if identities[i].Email == msg.From.Email {
				return &identities[i], nil
			}
		}
		return nil, fmt.Errorf("no sending identity for %s", msg.From.Email)
	}
	return &identities[0], nil
}

// sentMailbox resolves the mailbox imported copies land in. The sent role
// is preferred; drafts is the fallback for servers without one.
func (c *Client) sentMailbox(ctx context.Context, account string) (string, error) {
	mailboxes, err := c.ListMailboxes(ctx, account)
	if err != nil {
		return "", err
	}
	for _, role := range []string{"sent", "drafts"} {
		for _, mb := range mailboxes {
			if mb.Role == role {
				return mb.ID, nil
			}
		}
	}
	if len(mailboxes) > 0 {
		return mailboxes[0].ID, nil
	}
	return "", &ProtocolError{Method: "Mailbox/get", Detail: "account has no mailboxes"}
}

func (c *Client) importEmail(ctx context.Context, session *Session, account, blobID, mailboxID string) (string, error) {
	const creationID = "import"
	inv := newInvocation("Email/import", map[string]any{
		"accountId": account,
		"emails": map[string]any{
			creationID: map[string]any{
				"blobId":     blobID,
				"mailboxIds": map[string]bool{mailboxID: true},
				"keywords":   map[string]bool{KeywordSeen: true},
			},
		},
	})
	raw, err := c.invoke(ctx, session, []string{CapCore, CapMail}, inv)
	if err != nil {
		return "", err
	}

	var result struct {
		Created    map[string]Email           `json:"created"`
		NotCreated map[string]json.RawMessage `json:"notCreated"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	created, ok := result.Created[creationID]
	if !ok || created.ID == "" {
		return "", &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("import rejected: %s", string(raw))}
	}
	return created.ID, nil
}

func (c *Client) submitEmail(ctx context.Context, session *Session, account, emailID, identityID string) (string, error) {
	const creationID = "send"
	inv := newInvocation("EmailSubmission/set", map[string]any{
		"accountId": account,
		"create": map[string]any{
			creationID: map[string]any{
				"emailId":    emailID,
				"identityId": identityID,
			},
		},
	})
	raw, err := c.invoke(ctx, session, []string{CapCore, CapMail, CapSubmission}, inv)
	if err != nil {
		return "", err
	}

	var result struct {
		Created    map[string]SubmissionStatus `json:"created"`
		NotCreated map[string]json.RawMessage  `json:"notCreated"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	created, ok := result.Created[creationID]
	if !ok {
		return "", &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("submission rejected: %s", string(raw))}
	}
	return created.ID, nil
}

// GetSubmissionStatus fetches the delivery state of an earlier submission.
func (c *Client) GetSubmissionStatus(ctx context.Context, submissionID, accountID string) (*SubmissionStatus, error) {
	session, account, err := c.mailAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	inv := newInvocation("EmailSubmission/get", map[string]any{
		"accountId": account,
		"ids":       []string{submissionID},
	})
	raw, err := c.invoke(ctx, session, []string{CapCore, CapMail, CapSubmission}, inv)
	if err != nil {
		return nil, err
	}

	var result struct {
		List     []SubmissionStatus `json:"list"`
		NotFound []string           `json:"notFound"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	if len(result.List) == 0 {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("submission %s not found", submissionID)}
	}
	return &result.List[0], nil
}

// composeMessage renders msg as an RFC 5322 message.
func composeMessage(msg OutgoingEmail, date time.Time) ([]byte, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(date)
	header.SetSubject(msg.Subject)
	header.SetAddressList("From", []*mail.Address{toMailAddress(*msg.From)})
	header.SetAddressList("To", toMailAddresses(msg.To))
	if len(msg.CC) > 0 {
		header.SetAddressList("Cc", toMailAddresses(msg.CC))
	}
	if len(msg.InReplyTo) > 0 {
		header.SetMsgIDList("In-Reply-To", msg.InReplyTo)
	}

	mw, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	if msg.TextBody != "" || msg.HTMLBody == "" {
		if err := writeInlinePart(iw, "text/plain", msg.TextBody); err != nil {
			return nil, err
		}
	}
	if msg.HTMLBody != "" {
		if err := writeInlinePart(iw, "text/html", msg.HTMLBody); err != nil {
			return nil, err
		}
	}
	if err := iw.Close(); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		if err := writeAttachment(mw, att); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInlinePart(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func writeAttachment(mw *mail.Writer, att Attachment) error {
	var h mail.AttachmentHeader
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.SetContentType(contentType, nil)
	h.SetFilename(att.Filename)
	w, err := mw.CreateAttachment(h)
	if err != nil {
		return err
	}
	if _, err := w.Write(att.Data); err != nil {
		return err
	}
	return w.Close()
}

func toMailAddress(a EmailAddress) *mail.Address {
	return &mail.Address{Name: a.Name, Address: a.Email}
}

func toMailAddresses(addrs []EmailAddress) []*mail.Address {
	out := make([]*mail.Address, len(addrs))
	for i, a := range addrs {
		out[i] = toMailAddress(a)
	}
	return out
}
