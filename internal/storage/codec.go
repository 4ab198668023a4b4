package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/prn-tf/alexander-docstore/internal/pkg/crypto"
)

// Compression identifies the compression algorithm of a stored chunk.
// Tags are written into the chunk frame header, so their values are
// part of the on-disk format.
type Compression uint8

const (
	// CompressionNone stores the payload as-is. PDFs are usually already
	// compressed internally, so this is the default.
	CompressionNone Compression = 0

	// CompressionLZ4 is LZ4 block compression.
	CompressionLZ4 Compression = 1

	// CompressionZstd is zstd at the default level.
	CompressionZstd Compression = 2
)

const (
	frameCompressionMask = 0x0f
	frameSealedFlag      = 0x80
	frameHeaderSize      = 1
)

var (
	// errIncompressible is returned by compressors when the output would
	// not be smaller than the input. The chunk is then stored uncompressed.
	errIncompressible = errors.New("data is incompressible")

	// ErrSealedWithoutKey indicates a sealed chunk was read without an encryption key.
	ErrSealedWithoutKey = errors.New("chunk is encrypted but no encryption key is configured")

	// ErrInvalidFrame indicates a stored chunk has a malformed header.
	ErrInvalidFrame = errors.New("invalid chunk frame")
)

// String returns the configuration name of a compression tag.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression parses a compression name from configuration.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// Codec turns chunk payloads into stored frames and back.
// Frame layout: 1 header byte (low nibble = compression, bit 7 = sealed),
// followed by the (compressed, then optionally sealed) payload.
type Codec struct {
	compression Compression
	encryptor   *crypto.Encryptor
}

// NewCodec creates a codec. A nil encryptor stores chunks unsealed.
func NewCodec(compression Compression, encryptor *crypto.Encryptor) *Codec {
	return &Codec{
		compression: compression,
		encryptor:   encryptor,
	}
}

// Compression returns the configured compression.
func (c *Codec) Compression() Compression {
	return c.compression
}

// Encrypted reports whether new chunks are sealed.
func (c *Codec) Encrypted() bool {
	return c.encryptor != nil
}

// Encode builds the stored frame for chunk seq of a blob.
// The returned slice never aliases data.
func (c *Codec) Encode(blobID uuid.UUID, seq int, data []byte) ([]byte, error) {
	tag := c.compression
	payload, err := compress(data, tag)
	if errors.Is(err, errIncompressible) {
		tag = CompressionNone
		payload, err = data, nil
	}
	if err != nil {
		return nil, err
	}

	header := byte(tag) & frameCompressionMask
	if c.encryptor != nil {
		payload, err = c.encryptor.Seal(payload, chunkAD(blobID, seq))
		if err != nil {
			return nil, err
		}
		header |= frameSealedFlag
	}

	frame := make([]byte, 0, frameHeaderSize+len(payload))
	frame = append(frame, header)
	frame = append(frame, payload...)
	return frame, nil
}

// Decode reverses Encode. size is the expected decoded length and is verified.
func (c *Codec) Decode(blobID uuid.UUID, seq int, frame []byte, size int) ([]byte, error) {
	if len(frame) < frameHeaderSize {
		return nil, ErrInvalidFrame
	}
	header := frame[0]
	payload := frame[frameHeaderSize:]

	if header&frameSealedFlag != 0 {
		if c.encryptor == nil {
			return nil, ErrSealedWithoutKey
		}
		opened, err := c.encryptor.Open(payload, chunkAD(blobID, seq))
		if err != nil {
			return nil, err
		}
		payload = opened
	}

	return decompress(payload, Compression(header&frameCompressionMask), size)
}

// chunkAD binds a sealed chunk to its position so chunks cannot be swapped.
func chunkAD(blobID uuid.UUID, seq int) []byte {
	return fmt.Appendf(nil, "%s/%d", blobID, seq)
}

func compress(data []byte, tag Compression) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func decompress(payload []byte, tag Compression, size int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(payload) != size {
			return nil, fmt.Errorf("uncompressed chunk: size %d does not match expected %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		return decompressLZ4(payload, size)
	case CompressionZstd:
		return decompressZstd(payload, size)
	default:
		return nil, fmt.Errorf("%w: unsupported compression tag %d", ErrInvalidFrame, tag)
	}
}

// LZ4 compression: block mode.

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}

	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

// Zstd compression. The encoder and decoder are safe for concurrent use
// and are shared across calls.

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
