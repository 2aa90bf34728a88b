package store

import (
	"encoding/json"
	"fmt"

	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/klauspost/compress/zstd"
)

// Codec turns snapshots into zstd-compressed JSON and back.
// A Codec is safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a codec at the named compression level
// ("fastest", "default", "better" or "best").
func NewCodec(level string) (*Codec, error) {
	ok, lvl := zstd.EncoderLevelFromString(level)
	if !ok {
		return nil, fmt.Errorf("unknown compression level %q", level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(lvl))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode compresses the JSON form of snap.
func (c *Codec) Encode(snap inventory.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode reverses Encode.
func (c *Codec) Decode(data []byte) (inventory.Snapshot, error) {
	var snap inventory.Snapshot
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return snap, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}
