package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/samcharles93/strand/internal/logger"
)

// Snapshot file layout: the 4-byte magic followed by one CBOR envelope.
// The envelope carries the compressed payload, its uncompressed size and a
// blake3 digest of the uncompressed bytes.
const (
	snapshotMagic   = "STS\x00"
	snapshotVersion = 1

	maxPayloadSize = 1 << 32
	// An lz4 block expands at most 255x; a larger declared size is corrupt.
	lz4MaxRatio = 255
	// zstd output grows as it decodes; the declared size only sizes the
	// initial buffer, up to this multiple of the input.
	zstdPreallocRatio = 8
)

var (
	ErrInvalidSnapshot = errors.New("session: not a session snapshot")
	ErrCorruptSnapshot = errors.New("session: corrupt snapshot")
	ErrVocabMismatch   = errors.New("session: snapshot was built with a different vocabulary")
	ErrModelMismatch   = errors.New("session: snapshot was built with a different model")
)

// Compression selects the payload codec of a snapshot.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression maps a flag value to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// SaveOptions configures Store.Save.
type SaveOptions struct {
	Compression Compression
	// Vocabulary is the fingerprint of the vocabulary the histories were
	// tokenized with.
	Vocabulary [32]byte
	// Model identifies the weights that produced the logits and states.
	Model [32]byte
}

// LoadOptions configures Load.
type LoadOptions struct {
	// Vocabulary and Model, when non-zero, must match the fingerprints
	// recorded at save time.
	Vocabulary [32]byte
	Model      [32]byte
	Logger     logger.Logger
}

type envelope struct {
	Version     uint8       `cbor:"1,keyasint"`
	Compression Compression `cbor:"2,keyasint"`
	Size        uint64      `cbor:"3,keyasint"`
	Checksum    []byte      `cbor:"4,keyasint"`
	Payload     []byte      `cbor:"5,keyasint"`
}

type payload struct {
	Vocabulary []byte                  `cbor:"1,keyasint"`
	Threads    map[string]threadRecord `cbor:"2,keyasint"`
	Model      []byte                  `cbor:"3,keyasint"`
}

type threadRecord struct {
	History []int     `cbor:"1,keyasint"`
	Logits  []float32 `cbor:"2,keyasint"`
	State   []float32 `cbor:"3,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	// zstd encoders and decoders are safe for concurrent use.
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("session: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: 1 << 27}.DecMode()
	if err != nil {
		panic("session: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("session: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxPayloadSize))
	if err != nil {
		panic("session: zstd decoder initialization failed: " + err.Error())
	}
}

// Save writes every thread to w.
func (s *Store) Save(w io.Writer, opts SaveOptions) error {
	threads := s.snapshot()
	p := payload{
		Vocabulary: opts.Vocabulary[:],
		Model:      opts.Model[:],
		Threads:    make(map[string]threadRecord, len(threads)),
	}
	for name, c := range threads {
		p.Threads[name] = threadRecord{History: c.History, Logits: c.Logits, State: c.State}
	}

	raw, err := encMode.Marshal(p)
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}
	sum := blake3.Sum256(raw)

	compression := opts.Compression
	body, err := compress(raw, compression)
	if err != nil {
		return err
	}
	if len(body) >= len(raw) {
		body, compression = raw, CompressionNone
	}

	env, err := encMode.Marshal(envelope{
		Version:     snapshotVersion,
		Compression: compression,
		Size:        uint64(len(raw)),
		Checksum:    sum[:],
		Payload:     body,
	})
	if err != nil {
		return fmt.Errorf("session: encode snapshot: %w", err)
	}

	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return fmt.Errorf("session: write snapshot: %w", err)
	}
	if _, err := w.Write(env); err != nil {
		return fmt.Errorf("session: write snapshot: %w", err)
	}
	s.log.Debug("snapshot saved",
		"threads", len(threads),
		"bytes", len(snapshotMagic)+len(env),
		"compression", compression.String(),
	)
	return nil
}

// Load reads a snapshot written by Store.Save into a new store.
func Load(r io.Reader, opts LoadOptions) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("session: read snapshot: %w", err)
	}
	if !bytes.HasPrefix(data, []byte(snapshotMagic)) {
		return nil, ErrInvalidSnapshot
	}

	var env envelope
	if err := decMode.Unmarshal(data[len(snapshotMagic):], &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if env.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, env.Version)
	}

	raw, err := decompress(env.Payload, env.Compression, env.Size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	sum := blake3.Sum256(raw)
	if !bytes.Equal(sum[:], env.Checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptSnapshot)
	}

	var p payload
	if err := decMode.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if opts.Vocabulary != ([32]byte{}) && !bytes.Equal(p.Vocabulary, opts.Vocabulary[:]) {
		return nil, ErrVocabMismatch
	}
	if opts.Model != ([32]byte{}) && !bytes.Equal(p.Model, opts.Model[:]) {
		return nil, ErrModelMismatch
	}

	s := NewStore(opts.Logger)
	for name, t := range p.Threads {
		s.threads[name] = &Context{History: t.History, Logits: t.Logits, State: t.State}
	}
	s.log.Debug("snapshot loaded", "threads", len(p.Threads), "compression", env.Compression.String())
	return s, nil
}

func compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("session: lz4 compress: %w", err)
		}
		if n == 0 {
			// incompressible
			return data, nil
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("session: unsupported compression %s", c)
	}
}

func decompress(data []byte, c Compression, size uint64) ([]byte, error) {
	if size > maxPayloadSize {
		return nil, fmt.Errorf("payload size %d exceeds limit", size)
	}

	switch c {
	case CompressionNone:
		if uint64(len(data)) != size {
			return nil, fmt.Errorf("payload is %d bytes, expected %d", len(data), size)
		}
		return data, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(data, make([]byte, 0, min(size, uint64(len(data))*zstdPreallocRatio)))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	case CompressionLZ4:
		if size > uint64(len(data))*lz4MaxRatio {
			return nil, fmt.Errorf("lz4 decompress: %d bytes cannot expand to %d", len(data), size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}
