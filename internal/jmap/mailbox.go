package jmap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// newInvocation builds a method call with a fresh call id.
func newInvocation(name string, args any) Invocation {
	return Invocation{Name: name, Args: args, CallID: uuid.NewString()}
}

// ListMailboxes returns all mailboxes of the account via Mailbox/get.
// An empty accountID selects the primary mail account.
func (c *Client) ListMailboxes(ctx context.Context, accountID string) ([]Mailbox, error) {
	session, account, err := c.mailAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	inv := newInvocation("Mailbox/get", map[string]any{
		"accountId": account,
		"ids":       nil,
	})
	raw, err := c.invoke(ctx, session, nil, inv)
	if err != nil {
		return nil, err
	}

	var result struct {
		AccountID string    `json:"accountId"`
		List      []Mailbox `json:"list"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ProtocolError{Method: inv.Name, Detail: fmt.Sprintf("malformed result: %v", err)}
	}
	return result.List, nil
}

// FindMailbox returns the mailbox whose name or role matches
// (case-insensitive), or nil when none does.
func (c *Client) FindMailbox(ctx context.Context, accountID, nameOrRole string) (*Mailbox, error) {
	mailboxes, err := c.ListMailboxes(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range mailboxes {
		if strings.EqualFold(mailboxes[i].Name, nameOrRole) || strings.EqualFold(mailboxes[i].Role, nameOrRole) {
			return &mailboxes[i], nil
		}
	}
	return nil, nil
}
