package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSHA256Hasher_Digest(t *testing.T) {
	h := SHA256Hasher{}

	d1 := h.Digest("s3cr3t")
	d2 := h.Digest("s3cr3t")

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
	assert.NotEqual(t, "s3cr3t", d1)
	assert.NotEqual(t, d1, h.Digest("wrong"))
	// sha256("") is a well-known constant
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", h.Digest(""))
}

func TestSHA256Hasher_Matches(t *testing.T) {
	h := SHA256Hasher{}
	digest := h.Digest("s3cr3t")

	assert.True(t, h.Matches("s3cr3t", digest))
	assert.False(t, h.Matches("wrong", digest))
	assert.False(t, h.Matches("s3cr3t", ""))
}
