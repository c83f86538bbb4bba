package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeRunnerName lowercases and collapses runs of non-alphanumeric
// characters to a single hyphen, producing a safe identifier fragment.
func normalizeRunnerName(name string) string {
	lower := strings.ToLower(name)
	norm := nonAlnum.ReplaceAllString(lower, "-")
	return strings.Trim(norm, "-")
}

// RunnerID derives the stable runner identity from its name and registration
// token: "runner_<normalized-name>_<first12(sha256(token))>".
// Re-registering with the same name and token yields the same ID, allowing
// the gateway to reclaim a stale connection rather than spawn a duplicate
// runner identity.
func RunnerID(runnerName, token string) string {
	sum := sha256.Sum256([]byte(token))
	fingerprint := hex.EncodeToString(sum[:])[:12]
	return "runner_" + normalizeRunnerName(runnerName) + "_" + fingerprint
}
