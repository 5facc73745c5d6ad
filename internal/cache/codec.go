package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// recordVersion identifies the on-disk layout written by this package.
const recordVersion = 1

// record is the persisted form of an Entry. CreatedAt is kept as Unix
// nanoseconds so the timestamp round-trips without loss.
type record struct {
	Version   uint8  `msgpack:"v"`
	Key       string `msgpack:"k"`
	CreatedAt int64  `msgpack:"t"`
	Payload   []byte `msgpack:"p"`
}

// encodeEntry serializes an entry for a persisted tier
func encodeEntry(e *Entry) ([]byte, error) {
	return msgpack.Marshal(&record{
		Version:   recordVersion,
		Key:       e.Key,
		CreatedAt: e.CreatedAt.UnixNano(),
		Payload:   e.Payload,
	})
}

// recordCreatedAt reads only the timestamp of a persisted record
func recordCreatedAt(data []byte) (time.Time, error) {
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return time.Time{}, ErrCorruptEntry.WithError(err)
	}
	if rec.Version != recordVersion {
		return time.Time{}, ErrCorruptEntry.WithError(fmt.Errorf("unsupported record version %d", rec.Version))
	}
	return time.Unix(0, rec.CreatedAt), nil
}

// decodeEntry parses a persisted record. Any malformed or foreign record is
// reported as ErrCorruptEntry.
func decodeEntry(key string, data []byte) (*Entry, error) {
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, ErrCorruptEntry.WithError(err)
	}
	if rec.Version != recordVersion {
		return nil, ErrCorruptEntry.WithError(fmt.Errorf("unsupported record version %d", rec.Version))
	}
	if rec.Key != key {
		return nil, ErrCorruptEntry.WithError(fmt.Errorf("record belongs to key %q", rec.Key))
	}
	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}
	return &Entry{
		Key:       rec.Key,
		Payload:   payload,
		CreatedAt: time.Unix(0, rec.CreatedAt),
	}, nil
}
