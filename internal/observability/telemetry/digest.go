package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// TokenDigest returns a stable digest of a push token. Raw tokens are
// routing credentials and never appear in telemetry.
func TokenDigest(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
