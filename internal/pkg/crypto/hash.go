package crypto

import (
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// ChecksumSize is the digest size of blob checksums in bytes.
const ChecksumSize = blake2b.Size256

// Checksum is a running BLAKE2b-256 digest over blob content.
type Checksum struct {
	h hash.Hash
	n int64
}

// NewChecksum returns an empty Checksum.
func NewChecksum() *Checksum {
	// New256 only fails for keys longer than 64 bytes.
	h, _ := blake2b.New256(nil)
	return &Checksum{h: h}
}

// Write adds p to the digest. It never fails.
func (c *Checksum) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return c.h.Write(p)
}

// Size returns the number of bytes digested.
func (c *Checksum) Size() int64 {
	return c.n
}

// Hex returns the hex-encoded digest of everything written so far.
func (c *Checksum) Hex() string {
	return hex.EncodeToString(c.h.Sum(nil))
}

// Matches reports whether the digest equals the hex checksum expected.
func (c *Checksum) Matches(expected string) bool {
	want, err := hex.DecodeString(expected)
	if err != nil || len(want) != ChecksumSize {
		return false
	}
	return subtle.ConstantTimeCompare(c.h.Sum(nil), want) == 1
}

// HashReader digests an upload stream while it is read, so the blob is
// hashed in the same pass that chunks it.
type HashReader struct {
	r   io.Reader
	sum *Checksum
}

// NewHashReader wraps r.
func NewHashReader(r io.Reader) *HashReader {
	return &HashReader{r: r, sum: NewChecksum()}
}

// Read implements io.Reader.
func (h *HashReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.sum.Write(p[:n])
	}
	return n, err
}

// Checksum returns the hex digest of the bytes read so far.
func (h *HashReader) Checksum() string {
	return h.sum.Hex()
}

// Size returns the number of bytes read so far.
func (h *HashReader) Size() int64 {
	return h.sum.Size()
}

// ComputeChecksum returns the hex BLAKE2b-256 digest of data.
func ComputeChecksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
