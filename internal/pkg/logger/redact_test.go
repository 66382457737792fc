package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"", "***@***"},
		{"trailing@", "***@***"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.expected, RedactEmail(tt.in))
		})
	}
}

func TestRedactValueEmbeddedEmail(t *testing.T) {
	got := redactValue("error", "rejected recipient jane.roe@example.org by policy")
	assert.Equal(t, "rejected recipient ja***@example.org by policy", got)

	got = redactValue("recipient_email", "jane.roe@example.org")
	assert.Equal(t, "ja***@example.org", got)
}
