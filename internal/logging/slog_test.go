package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIdentity(t *testing.T) {
	a := AnonymizeIdentity("user@example.com")
	b := AnonymizeIdentity("user@example.com")
	c := AnonymizeIdentity("other@example.com")

	assert.Equal(t, a, b, "same identity must hash identically")
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "id:"))
	assert.NotContains(t, a, "user@example.com")
	assert.Empty(t, AnonymizeIdentity(""))
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))
	s := SanitizeToken("super-secret-access-token")
	assert.NotContains(t, s, "super")
	assert.Contains(t, s, "25")
}

func TestErrNilIsOmitted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("ok", Err(nil))
	assert.NotContains(t, buf.String(), "error")

	buf.Reset()
	logger.Info("failed", Err(assert.AnError))
	assert.Contains(t, buf.String(), "error")
}

func TestIdentityAttributeIsAnonymized(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("login", Identity("user@example.com"))
	out := buf.String()
	assert.NotContains(t, out, "user@example.com")
	assert.Contains(t, out, "id:")
}
