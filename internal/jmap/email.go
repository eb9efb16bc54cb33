package jmap

import (
	"context"
	"encoding/json"
	"fmt"
)

// defaultEmailProperties are requested by FetchEmails when the caller does
// not name its own set.
var defaultEmailProperties = []string{
	"id", "threadId", "mailboxIds", "keywords", "size", "receivedAt",
	"preview", "subject", "from", "to", "cc", "bcc", "replyTo",
	"messageId", "inReplyTo", "references",
	"bodyStructure", "bodyValues", "textBody", "htmlBody", "hasAttachment",
}

// QueryOptions shapes an Email/query call. Zero-value fields fall back to
// sensible defaults: newest-first over the whole account.
type QueryOptions struct {
	AccountID  string
	MailboxID  string
	SearchText string
	Position   int
	Limit      int

	// Filter overrides the filter synthesized from MailboxID/SearchText.
	Filter map[string]any

	// Sort overrides the default receivedAt-descending sort.
	Sort []map[string]any
}

// QueryEmails runs Email/query and returns the matching ids with paging
// state.
func (c *Client) QueryEmails(ctx context.Context, opts QueryOptions) (*QueryResult, error) {
	session, account, err := c.mailAccount(ctx, opts.AccountID)
	if err != nil {
		return nil, err
	}

	filter := opts.Filter
	if filter == nil {
		filter = map[string]any{}
		if opts.MailboxID != "" {
			filter["inMailbox"] = opts.MailboxID
		}
		if opts.SearchText != "" {
			filter["text"] = opts.SearchText
		}
	}
	sortBy := opts.Sort
	if sortBy == nil {
		sortBy = []map[string]any{{"property": "receivedAt", "isAscending": false}}
	}

	args := map[string]any{
		"accountId":      account,
		"sort":           sortBy,
		"position":       opts.Position,
		"calculateTotal": true,
	}
	if len(filter) > 0 {
		args["filter"] = filter
	}
	if opts.Limit > 0 {
		args["limit"] = opts.Limit
	}

	inv := newInvocation("Email/query", args)
	raw, err := c.invoke(ctx, session, nil, inv)
	if err != nil {
		return nil, err
	}

	var result struct {
		IDs        []string `json:"ids"`
		Position   int      `json:"position"`
		Total      int64    `json:"total"`
		QueryState string   `json:"queryState"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	return &QueryResult{
		IDs:        result.IDs,
		Position:   result.Position,
		Total:      result.Total,
		QueryState: result.QueryState,
	}, nil
}

// FetchEmails loads full emails by id via Email/get, requesting both text
// and HTML body values unless the caller restricts the property set.
func (c *Client) FetchEmails(ctx context.Context, ids []string, accountID string, properties []string) ([]Email, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	session, account, err := c.mailAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if properties == nil {
		properties = defaultEmailProperties
	}
	inv := newInvocation("Email/get", map[string]any{
		"accountId":           account,
		"ids":                 ids,
		"properties":          properties,
		"fetchTextBodyValues": true,
		"fetchHTMLBodyValues": true,
	})
	raw, err := c.invoke(ctx, session, nil, inv)
	if err != nil {
		return nil, err
	}

	var result struct {
		List     []Email  `json:"list"`
		NotFound []string `json:"notFound"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	return result.List, nil
}

// emailSetResult is the subset of an Email/set response the mutation
// operations inspect. Updated values may be null, so presence of the key is
// what matters.
type emailSetResult struct {
	Updated   map[string]json.RawMessage `json:"updated"`
	Destroyed []string                   `json:"destroyed"`
}

// emailSet issues one Email/set call and decodes the mutation outcome.
func (c *Client) emailSet(ctx context.Context, accountID string, args map[string]any) (*emailSetResult, error) {
	session, account, err := c.mailAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	args["accountId"] = account

	inv := newInvocation("Email/set", args)
	raw, err := c.invoke(ctx, session, nil, inv)
	if err != nil {
		return nil, err
	}

	var result emailSetResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	return &result, nil
}

// wasUpdated reports whether the id appears in the updated map, regardless
// of the (possibly null) value.
func (r *emailSetResult) wasUpdated(id string) bool {
	_, ok := r.Updated[id]
	return ok
}

// wasDestroyed reports whether the id appears in the destroyed set.
func (r *emailSetResult) wasDestroyed(id string) bool {
	for _, d := range r.Destroyed {
		if d == id {
			return true
		}
	}
	return false
}

// UpdateKeywords sets or clears keywords on one email via an Email/set
// patch. A true value sets the keyword, false removes it. The result is
// whether the server reported the email as updated; absence is a no-op, not
// an error, so idempotent retries stay safe.
func (c *Client) UpdateKeywords(ctx context.Context, emailID string, keywords map[string]bool, accountID string) (bool, error) {
	if emailID == "" {
		return false, fmt.Errorf("email id is required")
	}
	patch := map[string]any{}
	for kw, set := range keywords {
		if set {
			patch["keywords/"+kw] = true
		} else {
			patch["keywords/"+kw] = nil
		}
	}

	result, err := c.emailSet(ctx, accountID, map[string]any{
		"update": map[string]any{emailID: patch},
	})
	if err != nil {
		return false, err
	}
	return result.wasUpdated(emailID), nil
}

// MarkSeen flips the $seen keyword.
func (c *Client) MarkSeen(ctx context.Context, emailID string, seen bool, accountID string) (bool, error) {
	return c.UpdateKeywords(ctx, emailID, map[string]bool{KeywordSeen: seen}, accountID)
}

// MarkFlagged flips the $flagged keyword.
func (c *Client) MarkFlagged(ctx context.Context, emailID string, flagged bool, accountID string) (bool, error) {
	return c.UpdateKeywords(ctx, emailID, map[string]bool{KeywordFlagged: flagged}, accountID)
}

// Delete destroys one email via Email/set. Absence from the destroyed set
// is reported as false, not an error.
func (c *Client) Delete(ctx context.Context, emailID, accountID string) (bool, error) {
	if emailID == "" {
		return false, fmt.Errorf("email id is required")
	}
	result, err := c.emailSet(ctx, accountID, map[string]any{
		"destroy": []string{emailID},
	})
	if err != nil {
		return false, err
	}
	return result.wasDestroyed(emailID), nil
}

// Move re-homes one email between mailboxes with a membership patch.
func (c *Client) Move(ctx context.Context, emailID, fromMailboxID, toMailboxID, accountID string) (bool, error) {
	if emailID == "" {
		return false, fmt.Errorf("email id is required")
	}
	if toMailboxID == "" {
		return false, fmt.Errorf("destination mailbox id is required")
	}
	patch := map[string]any{
		"mailboxIds/" + toMailboxID: true,
	}
	if fromMailboxID != "" && fromMailboxID != toMailboxID {
		patch["mailboxIds/"+fromMailboxID] = nil
	}

	result, err := c.emailSet(ctx, accountID, map[string]any{
		"update": map[string]any{emailID: patch},
	})
	if err != nil {
		return false, err
	}
	return result.wasUpdated(emailID), nil
}
