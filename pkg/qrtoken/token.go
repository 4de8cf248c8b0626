// Package qrtoken mints and parses the QR attendance token payload.
//
// Wire format (must stay byte-compatible with codes already issued):
//
//	ATTEND-<eventID>-<userID>-<timestampMillis>
package qrtoken

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Prefix is the literal marker every attendance token starts with.
const Prefix = "ATTEND-"

// uuidLen is the canonical textual length of the UUIDs used as entity IDs.
const uuidLen = 36

// ErrFormat reports a token that does not match the wire format.
var ErrFormat = errors.New("invalid token format")

// Token is the decoded payload of an attendance QR code.
type Token struct {
	EventID  string
	UserID   string
	IssuedAt time.Time
	Raw      string
}

// Mint renders a fresh token for the given event/user pair.
func Mint(eventID, userID string, now time.Time) string {
	return fmt.Sprintf("%s%s-%s-%d", Prefix, eventID, userID, now.UnixMilli())
}

// Parse decodes a token string. The final hyphen-separated segment is the
// issue timestamp; the remainder holds the event and user IDs. UUIDs contain
// hyphens themselves, so the ID boundary is located at the fixed UUID width;
// short legacy IDs fall back to plain positional splitting.
func Parse(raw string) (*Token, error) {
	if !strings.HasPrefix(raw, Prefix) {
		return nil, ErrFormat
	}
	body := strings.TrimPrefix(raw, Prefix)
	parts := strings.Split(body, "-")
	if len(parts) < 3 {
		return nil, ErrFormat
	}

	tsSeg := parts[len(parts)-1]
	idBody := body[:len(body)-len(tsSeg)-1]

	var eventID, userID string
	switch {
	case len(idBody) == 2*uuidLen+1 && idBody[uuidLen] == '-':
		eventID = idBody[:uuidLen]
		userID = idBody[uuidLen+1:]
	case len(parts) == 3:
		eventID = parts[0]
		userID = parts[1]
	default:
		return nil, ErrFormat
	}
	if eventID == "" || userID == "" {
		return nil, ErrFormat
	}

	token := &Token{EventID: eventID, UserID: userID, Raw: raw}
	if millis, err := strconv.ParseInt(tsSeg, 10, 64); err == nil {
		token.IssuedAt = time.UnixMilli(millis)
	}
	return token, nil
}
