// Package domain contains the core business entities for Alexander DocStore.
package domain

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultChunkSize is the default size of a stored chunk (255 KiB).
const DefaultChunkSize = 255 * 1024

// DefaultContentType is used when the uploader did not report a content type.
const DefaultContentType = "application/octet-stream"

// Blob represents the stored binary payload of one uploaded file.
// The payload itself lives in chunks; the blob row is the commit marker
// that makes those chunks visible to readers.
type Blob struct {
	// ID is the generated, globally unique blob identifier.
	ID uuid.UUID `json:"id"`

	// StorageName is the generated storage-facing filename.
	// Format: {32 random hex chars}{original extension}
	StorageName string `json:"storage_name"`

	// Filename is the user-facing original filename.
	Filename string `json:"filename"`

	// ContentType is the MIME type reported at upload time.
	ContentType string `json:"content_type"`

	// Length is the total size of the blob in bytes.
	Length int64 `json:"length"`

	// ChunkSize is the chunk size the blob was written with.
	ChunkSize int `json:"chunk_size"`

	// ChunkCount is the number of stored chunks.
	ChunkCount int `json:"chunk_count"`

	// Compression is the chunk codec configured when the blob was written.
	Compression string `json:"compression"`

	// Encrypted indicates the chunks are sealed with AES-256-GCM.
	Encrypted bool `json:"encrypted"`

	// Checksum is the hex-encoded BLAKE2b-256 digest of the original bytes.
	Checksum string `json:"checksum"`

	// CreatedAt is the timestamp when the blob was committed.
	CreatedAt time.Time `json:"created_at"`
}

// ChunkCountFor returns the number of chunks needed to hold length bytes.
func ChunkCountFor(length int64, chunkSize int) int {
	if length <= 0 || chunkSize <= 0 {
		return 0
	}
	size := int64(chunkSize)
	return int((length + size - 1) / size)
}

// ChunkLength returns the decoded length of chunk seq.
// Every chunk except the last is exactly ChunkSize bytes.
func (b *Blob) ChunkLength(seq int) int {
	if seq < 0 || seq >= b.ChunkCount {
		return 0
	}
	if seq < b.ChunkCount-1 {
		return b.ChunkSize
	}
	return int(b.Length - int64(b.ChunkSize)*int64(b.ChunkCount-1))
}

// StorageExtension returns the lower-cased extension of the original filename
// as it will be appended to the generated storage name.
func StorageExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 16 || strings.ContainsAny(ext, "/\\ ") {
		return ""
	}
	return ext
}

// Chunk is one bounded-size slice of a blob, keyed by (BlobID, Seq).
type Chunk struct {
	// BlobID is the owning blob.
	BlobID uuid.UUID `json:"blob_id"`

	// Seq is the 0-based, contiguous sequence number.
	Seq int `json:"seq"`

	// Size is the decoded payload length.
	Size int `json:"size"`

	// Data is the framed payload as stored by the backend.
	Data []byte `json:"-"`
}
