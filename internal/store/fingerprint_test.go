package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Stable(t *testing.T) {
	a := Fingerprint("SELECT count(*) FROM player")
	b := Fingerprint("SELECT count(*) FROM player")

	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestFingerprint_CollapsesWhitespace(t *testing.T) {
	a := Fingerprint("SELECT count(*)\n  FROM player")
	b := Fingerprint("SELECT count(*) FROM player")

	assert.Equal(t, a, b)
}

func TestFingerprint_NormalizesUnicode(t *testing.T) {
	// "café" composed (U+00E9) vs decomposed (e + U+0301).
	composed := Fingerprint("SELECT * FROM caf\u00e9")
	decomposed := Fingerprint("SELECT * FROM cafe\u0301")

	assert.Equal(t, composed, decomposed)
}

func TestFingerprint_DistinguishesQueries(t *testing.T) {
	a := Fingerprint("SELECT count(*) FROM player")
	b := Fingerprint("SELECT count(*) FROM team")

	assert.NotEqual(t, a, b)
}
