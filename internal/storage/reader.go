package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prn-tf/alexander-docstore/internal/domain"
	"github.com/prn-tf/alexander-docstore/internal/pkg/crypto"
)

// ChunkReader streams a blob chunk by chunk in sequence order.
// Only the chunk currently being handed out is held in memory.
//
// A checksum mismatch surfaces as domain.ErrBlobCorrupted in place of the
// last chunk.
type ChunkReader struct {
	ctx    context.Context
	store  *ChunkStore
	blob   *domain.Blob
	digest *crypto.Checksum

	seq     int
	pending []byte
	buf     []byte
	err     error
}

func newChunkReader(ctx context.Context, store *ChunkStore, blob *domain.Blob) *ChunkReader {
	return &ChunkReader{
		ctx:    ctx,
		store:  store,
		blob:   blob,
		digest: crypto.NewChecksum(),
	}
}

// Blob returns the blob being read.
func (r *ChunkReader) Blob() *domain.Blob {
	return r.blob
}

// fetch loads and decodes chunk seq.
func (r *ChunkReader) fetch(seq int) ([]byte, error) {
	if err := r.ctx.Err(); err != nil {
		return nil, err
	}

	frame, err := r.store.backend.GetChunk(r.ctx, r.blob.ID, seq)
	if err != nil {
		if errors.Is(err, domain.ErrChunkNotFound) {
			return nil, fmt.Errorf("%w: blob %s seq %d", domain.ErrChunkMissing, r.blob.ID, seq)
		}
		return nil, domain.StorageError(fmt.Sprintf("read chunk %d", seq), err)
	}

	data, err := r.store.codec.Decode(r.blob.ID, seq, frame, r.blob.ChunkLength(seq))
	if err != nil {
		return nil, fmt.Errorf("%w: blob %s seq %d: %w", domain.ErrBlobCorrupted, r.blob.ID, seq, err)
	}

	r.store.metrics.RecordChunkRead()
	return data, nil
}

// Next returns the next decoded chunk, then io.EOF. The checksum is
// verified before the last chunk is handed out, so a corrupted blob never
// yields its final bytes.
func (r *ChunkReader) Next() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	if r.seq >= r.blob.ChunkCount {
		r.err = r.verify()
		if r.err == nil {
			r.err = io.EOF
		}
		return nil, r.err
	}

	data := r.pending
	r.pending = nil
	if data == nil {
		var err error
		data, err = r.fetch(r.seq)
		if err != nil {
			r.err = err
			return nil, err
		}
	}

	r.digest.Write(data)
	r.seq++

	if r.seq == r.blob.ChunkCount {
		if err := r.verify(); err != nil {
			r.err = err
			return nil, err
		}
	}
	return data, nil
}

func (r *ChunkReader) verify() error {
	if r.blob.Checksum == "" || r.digest.Matches(r.blob.Checksum) {
		return nil
	}
	return fmt.Errorf("%w: blob %s checksum %s, expected %s",
		domain.ErrBlobCorrupted, r.blob.ID, r.digest.Hex(), r.blob.Checksum)
}

// Read implements io.Reader.
func (r *ChunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		data, err := r.Next()
		if err != nil {
			return 0, err
		}
		r.buf = data
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// WriteTo implements io.WriterTo, writing whole chunks without an extra copy.
func (r *ChunkReader) WriteTo(w io.Writer) (int64, error) {
	var total int64

	if len(r.buf) > 0 {
		n, err := w.Write(r.buf)
		total += int64(n)
		r.buf = nil
		if err != nil {
			return total, err
		}
	}

	for {
		data, err := r.Next()
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		n, err := w.Write(data)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
}

// Close releases the held chunk. Further reads fail.
func (r *ChunkReader) Close() error {
	r.pending = nil
	r.buf = nil
	if r.err == nil {
		r.err = errors.New("storage: read from closed chunk reader")
	}
	return nil
}
