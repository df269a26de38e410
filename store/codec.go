package store

import (
	"bytes"
	"io"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/crypto/blake2b"

	"github.com/tubelens/tubecache/types"
	"github.com/tubelens/tubecache/utils"
)

// Envelope layout: [4-byte magic][1-byte flags][32-byte blake2b-256 of the
// payload][payload]. The checksum is computed after compression, so any bit
// rot in the stored bytes is caught before decoding.
var envelopeMagic = []byte("TBC1")

const (
	flagCompressed   = 0x01
	envelopeOverhead = 4 + 1 + blake2b.Size256
)

// Record is what the orchestrator persists per entry. Expiry travels with
// the value so TTL survives a process restart.
type Record struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

type Codec struct {
	compress bool
}

func NewCodec(compress bool) *Codec {
	return &Codec{compress: compress}
}

func (c *Codec) Encode(record *Record) ([]byte, error) {
	if record == nil {
		return nil, types.ErrInvalidParameter
	}

	payload, err := utils.Marshal(record)
	if err != nil {
		return nil, types.WrapError(err, "failed to marshal store record")
	}

	var flags byte
	if c.compress {
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, types.WrapError(err, "failed to compress store record")
		}
		if err := w.Close(); err != nil {
			return nil, types.WrapError(err, "failed to flush compressed record")
		}
		payload = buf.Bytes()
		flags |= flagCompressed
	}

	sum := blake2b.Sum256(payload)

	out := make([]byte, 0, envelopeOverhead+len(payload))
	out = append(out, envelopeMagic...)
	out = append(out, flags)
	out = append(out, sum[:]...)
	out = append(out, payload...)

	return out, nil
}

func (c *Codec) Decode(data []byte) (*Record, error) {
	if len(data) < envelopeOverhead {
		return nil, types.Errorf(types.ErrStoreCorruptEntry, "envelope too short: %d bytes", len(data))
	}

	if !bytes.Equal(data[:4], envelopeMagic) {
		return nil, types.Errorf(types.ErrStoreCorruptEntry, "bad magic")
	}

	flags := data[4]
	sum := data[5 : 5+blake2b.Size256]
	payload := data[envelopeOverhead:]

	actual := blake2b.Sum256(payload)
	if !bytes.Equal(sum, actual[:]) {
		return nil, types.Errorf(types.ErrStoreCorruptEntry, "checksum mismatch")
	}

	if flags&flagCompressed != 0 {
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, types.Errorf(types.ErrStoreCorruptEntry, "decompression failed: %v", err)
		}
		payload = decompressed
	}

	var record Record
	if err := utils.Unmarshal(payload, &record); err != nil {
		return nil, types.Errorf(types.ErrStoreCorruptEntry, "unmarshal failed: %v", err)
	}

	return &record, nil
}
