package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Shard fan-out of blob directories: two levels of two hex characters.
const (
	shardLevels = 2
	shardWidth  = 2
)

// BlobKey returns the dash-less hex form of a blob id used in storage paths.
func BlobKey(blobID uuid.UUID) string {
	return strings.ReplaceAll(blobID.String(), "-", "")
}

// ChunkName returns the file or object name of chunk seq.
// Names are zero-padded so lexical order equals sequence order.
func ChunkName(seq int) string {
	return fmt.Sprintf("%08d.chunk", seq)
}

// BlobDir returns the directory under root holding a blob's chunks,
// e.g. root/3f/2a/3f2a9c10....
func BlobDir(root string, blobID uuid.UUID) string {
	key := BlobKey(blobID)

	parts := make([]string, 0, shardLevels+2)
	parts = append(parts, root)
	for i := range shardLevels {
		parts = append(parts, key[i*shardWidth:(i+1)*shardWidth])
	}
	return filepath.Join(append(parts, key)...)
}

// ChunkPath returns the file holding chunk seq of a blob.
func ChunkPath(root string, blobID uuid.UUID, seq int) string {
	return filepath.Join(BlobDir(root, blobID), ChunkName(seq))
}
