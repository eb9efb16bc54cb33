package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DownloadBlob fetches the raw bytes of a blob through the session's
// download URL. Blank ids and the literal "null" (a placeholder some
// servers leak into body structures) are rejected before any network call.
// Blob transfers share the client's request permit pool.
func (c *Client) DownloadBlob(ctx context.Context, blobID, name, accountID string) ([]byte, error) {
	blobID = strings.TrimSpace(blobID)
	if blobID == "" || blobID == "null" {
		return nil, ErrBlankBlobID
	}
	if name == "" {
		name = "blob"
	}

	session, account, err := c.mailAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	downloadURL := expandURLTemplate(session.DownloadURL, map[string]string{
		"accountId": account,
		"blobId":    blobID,
		"name":      name,
		"type":      "application/octet-stream",
	})
	if downloadURL == "" {
		downloadURL = fmt.Sprintf("%s/jmap/download/%s/%s/%s?accept=application/octet-stream",
			c.server, url.PathEscape(account), url.PathEscape(blobID), url.PathEscape(name))
	}

	data, err := c.transfer(ctx, "blob.download", func(accessToken string) ([]byte, int, error) {
		return c.do(ctx, http.MethodGet, downloadURL, nil, "", c.authorization(accessToken))
	})
	if err != nil {
		return nil, err
	}
	c.metrics.RecordBlobBytes(ctx, "download", int64(len(data)))
	return data, nil
}

// UploadBlob stores data as a server-side blob through the session's upload
// URL and returns the server's blob descriptor.
func (c *Client) UploadBlob(ctx context.Context, data []byte, contentType, accountID string) (*UploadResult, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	session, account, err := c.mailAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	uploadURL := expandURLTemplate(session.UploadURL, map[string]string{
		"accountId": account,
	})
	if uploadURL == "" {
		return nil, &ProtocolError{Method: "upload", Detail: "session object lacks uploadUrl"}
	}

	body, err := c.transfer(ctx, "blob.upload", func(accessToken string) ([]byte, int, error) {
		return c.do(ctx, http.MethodPost, uploadURL, bytes.NewReader(data), contentType, c.authorization(accessToken))
	})
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ProtocolError{Method: "upload", Detail: fmt.Sprintf("malformed upload response: %v", err)}
	}
	if result.BlobID == "" {
		return nil, &ProtocolError{Method: "upload", Detail: "upload response lacks blobId"}
	}
	c.metrics.RecordBlobBytes(ctx, "upload", int64(len(data)))
	return &result, nil
}

// transfer runs one blob exchange with the same resilience policy as method
// calls: permit pool, transient retry, one refresh-and-retry on auth
// failure.
func (c *Client) transfer(ctx context.Context, op string, fn func(accessToken string) ([]byte, int, error)) ([]byte, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	var warmErr error
	c.warmupOnce.Do(func() { warmErr = sleepContext(ctx, c.warmup) })
	if warmErr != nil {
		return nil, warmErr
	}

	accessToken := ""
	if c.scheme == AuthBearer {
		tok, err := c.Token(ctx)
		if err != nil {
			return nil, err
		}
		accessToken = tok.AccessToken
	}

	refreshed := false
	for {
		body, status, err := c.withRetry(ctx, op, func() ([]byte, int, error) {
			return fn(accessToken)
		})
		if err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
		if isAuthStatus(status) {
			if c.scheme == AuthBasic || refreshed {
				if c.scheme == AuthBearer {
					_ = c.store.Clear(c.server, c.identity)
				}
				return nil, ErrTokenExpired
			}
			refreshed = true
			tok, err := c.forceRefresh(ctx, accessToken)
			if err != nil {
				return nil, err
			}
			accessToken = tok.AccessToken
			continue
		}
		if status < 200 || status > 299 {
			return nil, &HTTPError{StatusCode: status, Body: truncate(string(body), maxErrorBody)}
		}
		return body, nil
	}
}

// expandURLTemplate substitutes RFC 6570 level-1 placeholders in the URL
// templates JMAP sessions advertise. It returns "" for an empty template.
func expandURLTemplate(template string, vars map[string]string) string {
	if template == "" {
		return ""
	}
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", url.QueryEscape(v))
	}
	return out
}
