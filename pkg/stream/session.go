package stream

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// idPrefix is the prefix of every generated completion id.
const idPrefix = "chatcmpl-"

// idEntropy is the number of random bytes hex encoded into a completion id.
const idEntropy = 14

// Session carries the identity shared by every chunk of one compat stream.
// A Session belongs to a single Run call.
type Session struct {
	ID      string
	Created string
	Model   string
}

// NewSession creates a Session for model stamped at now.
func NewSession(model string, now time.Time) (*Session, error) {
	id, err := newCompletionID()
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:      id,
		Created: strconv.FormatInt(now.Unix(), 10),
		Model:   model,
	}, nil
}

func newCompletionID() (string, error) {
	b := make([]byte, idEntropy)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating completion id: %w", err)
	}
	return idPrefix + hex.EncodeToString(b), nil
}
