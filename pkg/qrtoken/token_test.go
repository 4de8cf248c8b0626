package qrtoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintRoundTrip(t *testing.T) {
	eventID := "5c9f8f8a-1d2e-4b3c-9a8b-7c6d5e4f3a2b"
	userID := "0a1b2c3d-4e5f-6071-8293-a4b5c6d7e8f9"
	now := time.UnixMilli(1700000000000)

	raw := Mint(eventID, userID, now)
	require.Equal(t, "ATTEND-"+eventID+"-"+userID+"-1700000000000", raw)

	token, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, eventID, token.EventID)
	assert.Equal(t, userID, token.UserID)
	assert.True(t, token.IssuedAt.Equal(now))
	assert.Equal(t, raw, token.Raw)
}

func TestParseLegacyShortIDs(t *testing.T) {
	token, err := Parse("ATTEND-ev1-user9-1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "ev1", token.EventID)
	assert.Equal(t, "user9", token.UserID)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"not-a-token",
		"",
		"ATTEND-",
		"ATTEND-only-two",
		"attend-ev1-user1-123",
	}
	for _, raw := range cases {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrFormat, raw)
	}
}
