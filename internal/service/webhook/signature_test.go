package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyAcceptsMatchingSignature(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)
	assert.True(t, Verify(body, Sign(body, "s3cret"), "s3cret"))
}

func TestVerifyRejectsAnySingleByteMutation(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main","after":"abc123"}`)
	header := Sign(body, "s3cret")

	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if Verify(mutated, header, "s3cret") {
			t.Fatalf("mutation at byte %d still verified", i)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	body := []byte(`{}`)
	assert.False(t, Verify(body, Sign(body, "s3cret"), "other"))
}

func TestVerifyMalformedHeaders(t *testing.T) {
	body := []byte(`{}`)
	valid := Sign(body, "s3cret")

	cases := map[string]string{
		"short digest":   "sha256=deadbeef",
		"missing prefix": valid[len("sha256="):],
		"sha1 prefix":    "sha1=" + valid[len("sha256="):],
		"non hex":        "sha256=" + string(make([]byte, 64)),
		"empty":          "",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, Verify(body, header, "s3cret"))
		})
	}
}

func TestVerifyRequiresSecret(t *testing.T) {
	body := []byte(`{}`)
	assert.False(t, Verify(body, Sign(body, ""), ""))
}
