package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Fingerprint returns a short stable identifier for a tracked query's
// text, used to label observations in logs and diagnostics.
//
// The text is NFC-normalized and whitespace-collapsed first so that two
// spellings of the same query (composed vs decomposed Unicode, different
// indentation) fingerprint identically.
func Fingerprint(query string) string {
	normalized := norm.NFC.String(query)
	normalized = strings.Join(strings.Fields(normalized), " ")

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:8])
}
