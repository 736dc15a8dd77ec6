// Package idempotency reads the client supplied key that lets a retried
// checkout return the order committed by the first attempt.
package idempotency

import (
	"errors"
	"net/http"
	"strings"
)

const (
	Header = "Idempotency-Key"
	MaxLen = 128
)

var ErrKeyTooLong = errors.New("idempotency key must be at most 128 characters")

// Key returns the trimmed header value; an absent header yields "".
func Key(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(Header))
	if len(key) > MaxLen {
		return "", ErrKeyTooLong
	}
	return key, nil
}
