package jmap

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/jmapctl/internal/token"
)

func newEmailTestClient(t *testing.T, ms *mailServer) *Client {
	store := token.NewMemStore()
	seedStore(t, store, ms.URL, &token.StoredToken{AccessToken: "at-valid"})
	return newTestClient(ms, nil, store)
}

// captureArgs scripts the API endpoint to answer with result and record the
// decoded arguments of each call.
func (ms *mailServer) captureArgs(t *testing.T, name string, result map[string]any) *[]map[string]any {
	captured := &[]map[string]any{}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.apiHandler = func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.MethodCalls, 1)
		call := req.MethodCalls[0]
		require.Equal(t, name, call.Name)

		var args map[string]any
		require.NoError(t, json.Unmarshal(call.Args.(json.RawMessage), &args))
		*captured = append(*captured, args)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"methodResponses": [][]any{{name, result, call.CallID}},
		})
	}
	return captured
}

func TestQueryEmailsSynthesizesFilter(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	captured := ms.captureArgs(t, "Email/query", map[string]any{
		"ids":        []string{"m1", "m2"},
		"position":   0,
		"total":      2,
		"queryState": "q0",
	})

	result, err := c.QueryEmails(context.Background(), QueryOptions{
		MailboxID:  "mb-inbox",
		SearchText: "invoice",
		Limit:      50,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, result.IDs)
	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, "q0", result.QueryState)

	require.Len(t, *captured, 1)
	args := (*captured)[0]
	assert.Equal(t, testAccount, args["accountId"])
	filter := args["filter"].(map[string]any)
	assert.Equal(t, "mb-inbox", filter["inMailbox"])
	assert.Equal(t, "invoice", filter["text"])
	assert.Equal(t, float64(50), args["limit"])
	assert.Equal(t, true, args["calculateTotal"])

	sortBy := args["sort"].([]any)[0].(map[string]any)
	assert.Equal(t, "receivedAt", sortBy["property"])
	assert.Equal(t, false, sortBy["isAscending"])
}

func TestFetchEmailsEmptyIDs(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	emails, err := c.FetchEmails(context.Background(), nil, "", nil)
	require.NoError(t, err)
	assert.Nil(t, emails)
	_, api := ms.counts()
	assert.Zero(t, api, "no ids means no network")
}

func TestFetchEmailsDecodesList(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	received := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)
	ms.respondMethod(t, "Email/get", map[string]any{
		"accountId": testAccount,
		"list": []map[string]any{{
			"id":         "m1",
			"subject":    "hello",
			"receivedAt": received.Format(time.RFC3339),
			"keywords":   map[string]bool{KeywordSeen: true},
			"from":       []map[string]string{{"name": "Ann", "email": "ann@example.com"}},
		}},
	})

	emails, err := c.FetchEmails(context.Background(), []string{"m1"}, "", nil)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "hello", emails[0].Subject)
	assert.False(t, emails[0].IsUnread())
	require.Len(t, emails[0].From, 1)
	assert.Equal(t, "ann@example.com", emails[0].From[0].Email)
}

func TestUpdateKeywordsPatchShape(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	captured := ms.captureArgs(t, "Email/set", map[string]any{
		"updated": map[string]any{"m1": nil},
	})

	ok, err := c.UpdateKeywords(context.Background(), "m1", map[string]bool{
		KeywordSeen:    true,
		KeywordFlagged: false,
	}, "")
	require.NoError(t, err)
	assert.True(t, ok)

	args := (*captured)[0]
	patch := args["update"].(map[string]any)["m1"].(map[string]any)
	assert.Equal(t, true, patch["keywords/"+KeywordSeen])
	val, present := patch["keywords/"+KeywordFlagged]
	assert.True(t, present)
	assert.Nil(t, val, "keyword removal is a null patch value")
}

func TestUpdateKeywordsNullUpdatedValueCounts(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	// Servers answer "updated": {"m1": null}; the null value still means
	// the update was applied.
	ms.respondMethod(t, "Email/set", map[string]any{
		"updated": map[string]any{"m1": nil},
	})

	ok, err := c.MarkSeen(context.Background(), "m1", true, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUpdateKeywordsAbsentIsNoOp(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	ms.respondMethod(t, "Email/set", map[string]any{
		"updated": map[string]any{},
	})

	ok, err := c.MarkSeen(context.Background(), "m1", true, "")
	require.NoError(t, err, "absence from updated is a no-op, not a failure")
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	ms.respondMethod(t, "Email/set", map[string]any{
		"destroyed": []string{"m1"},
	})

	ok, err := c.Delete(context.Background(), "m1", "")
	require.NoError(t, err)
	assert.True(t, ok)

	ms.respondMethod(t, "Email/set", map[string]any{
		"destroyed": []string{},
	})
	ok, err = c.Delete(context.Background(), "m2", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMovePatchesMembership(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	captured := ms.captureArgs(t, "Email/set", map[string]any{
		"updated": map[string]any{"m1": nil},
	})

	ok, err := c.Move(context.Background(), "m1", "mb-inbox", "mb-archive", "")
	require.NoError(t, err)
	assert.True(t, ok)

	patch := (*captured)[0]["update"].(map[string]any)["m1"].(map[string]any)
	assert.Equal(t, true, patch["mailboxIds/mb-archive"])
	val, present := patch["mailboxIds/mb-inbox"]
	assert.True(t, present)
	assert.Nil(t, val)
}

func TestMoveRequiresDestination(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	_, err := c.Move(context.Background(), "m1", "mb-inbox", "", "")
	require.Error(t, err)
	_, api := ms.counts()
	assert.Zero(t, api)
}

func TestFindMailbox(t *testing.T) {
	ms := newMailServer(t)
	c := newEmailTestClient(t, ms)

	ms.respondMethod(t, "Mailbox/get", map[string]any{
		"accountId": testAccount,
		"list": []map[string]any{
			{"id": "mb-1", "name": "Inbox", "role": "inbox"},
			{"id": "mb-2", "name": "Archiv", "role": "archive"},
			{"id": "mb-3", "name": "Projects/2026"},
		},
	})

	tests := []struct {
		name   string
		lookup string
		wantID string
	}{
		{name: "by role", lookup: "archive", wantID: "mb-2"},
		{name: "by name case-insensitive", lookup: "inbox", wantID: "mb-1"},
		{name: "by full name", lookup: "projects/2026", wantID: "mb-3"},
		{name: "absent", lookup: "spam", wantID: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb, err := c.FindMailbox(context.Background(), "", tt.lookup)
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, mb)
				return
			}
			require.NotNil(t, mb)
			assert.Equal(t, tt.wantID, mb.ID)
		})
	}
}
