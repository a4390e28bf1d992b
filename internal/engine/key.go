package engine

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

const KeyLength = 8

var ErrInvalidKey = errors.New("invalid room key")

// NewKey mints a room key from the head of a random UUID.
func NewKey() string {
	return strings.ToUpper(uuid.NewString()[:KeyLength])
}

// ParseKey normalizes a client supplied key to its canonical upper-case form.
func ParseKey(s string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	if len(key) != KeyLength {
		return "", ErrInvalidKey
	}
	for _, r := range key {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrInvalidKey
		}
	}
	return key, nil
}
