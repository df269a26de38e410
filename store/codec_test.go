package store

import (
	"testing"
	"time"

	"github.com/tubelens/tubecache/types"
)

func TestCodecRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		codec := NewCodec(compress)

		now := time.Now().UTC().Truncate(time.Second)
		record := &Record{
			Key:       "vid1",
			Value:     map[string]interface{}{"summary": "short", "points": []interface{}{"a", "b"}},
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}

		data, err := codec.Encode(record)
		if err != nil {
			t.Fatalf("compress=%v: encode failed: %v", compress, err)
		}

		decoded, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("compress=%v: decode failed: %v", compress, err)
		}

		if decoded.Key != record.Key {
			t.Fatalf("compress=%v: key = %q, want %q", compress, decoded.Key, record.Key)
		}
		if !decoded.ExpiresAt.Equal(record.ExpiresAt) {
			t.Fatalf("compress=%v: expiry drifted: %v vs %v", compress, decoded.ExpiresAt, record.ExpiresAt)
		}

		value, ok := decoded.Value.(map[string]interface{})
		if !ok {
			t.Fatalf("compress=%v: value type %T", compress, decoded.Value)
		}
		if value["summary"] != "short" {
			t.Fatalf("compress=%v: summary = %v", compress, value["summary"])
		}
	}
}

func TestCodecEncodeNilRecord(t *testing.T) {
	if _, err := NewCodec(false).Encode(nil); !types.IsError(err, types.ErrInvalidParameter) {
		t.Fatalf("got %v, want ErrInvalidParameter", err)
	}
}

func TestCodecDetectsBitRot(t *testing.T) {
	codec := NewCodec(true)

	data, err := codec.Encode(&Record{Key: "a", Value: "payload", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	data[len(data)-1] ^= 0xFF

	if _, err := codec.Decode(data); !types.IsError(err, types.ErrStoreCorruptEntry) {
		t.Fatalf("got %v, want ErrStoreCorruptEntry", err)
	}
}

func TestCodecRejectsBadMagic(t *testing.T) {
	codec := NewCodec(false)

	data, err := codec.Encode(&Record{Key: "a", Value: "payload", CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	data[0] = 'X'

	if _, err := codec.Decode(data); !types.IsError(err, types.ErrStoreCorruptEntry) {
		t.Fatalf("got %v, want ErrStoreCorruptEntry", err)
	}
}

func TestCodecRejectsTruncatedEnvelope(t *testing.T) {
	if _, err := NewCodec(false).Decode([]byte("TBC1")); !types.IsError(err, types.ErrStoreCorruptEntry) {
		t.Fatalf("got %v, want ErrStoreCorruptEntry", err)
	}
}

func TestRecordExpired(t *testing.T) {
	now := time.Now()

	record := &Record{ExpiresAt: now.Add(-time.Second)}
	if !record.Expired(now) {
		t.Fatal("past expiry must report expired")
	}

	record = &Record{ExpiresAt: now.Add(time.Hour)}
	if record.Expired(now) {
		t.Fatal("future expiry must not report expired")
	}

	record = &Record{}
	if record.Expired(now) {
		t.Fatal("zero expiry means no expiry")
	}
}
