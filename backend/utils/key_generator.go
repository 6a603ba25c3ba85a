package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RequestID returns a short random id for correlating log lines. It never fails.
func RequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}
