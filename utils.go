package contextly

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// ChallengePrefix is the fixed domain string embedded in every sign-in
// challenge. The timestamp that follows is the sole replay defense, so the
// format is part of the protocol.
const ChallengePrefix = "Sign in to Contextly: "

func ComposeChallenge(now time.Time) string {
	return ChallengePrefix + now.UTC().Format(time.RFC3339)
}

// ParseChallenge extracts the embedded timestamp from a challenge message.
func ParseChallenge(message string) (time.Time, error) {
	if !strings.HasPrefix(message, ChallengePrefix) {
		return time.Time{}, fmt.Errorf("message does not carry the challenge prefix")
	}
	issued, err := time.Parse(time.RFC3339, strings.TrimPrefix(message, ChallengePrefix))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid challenge timestamp: %v", err)
	}
	return issued, nil
}

// Fingerprint computes the deterministic content fingerprint used for
// exactly-once dedup. Whitespace runs collapse to a single space so that
// re-captures of the same content from a reflowed page still collide.
func Fingerprint(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := xxh3.Hash128([]byte(normalized)).Bytes()
	return hex.EncodeToString(sum[:])
}

// IsFingerprint reports whether s is an acceptable content fingerprint:
// a hex digest between 128 and 512 bits. Capture layers may hash with
// anything deterministic in that range; Fingerprint output always fits.
func IsFingerprint(s string) bool {
	if len(s) < 32 || len(s) > 128 || len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
