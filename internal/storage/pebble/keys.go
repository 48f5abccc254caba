package pebblestore

import (
	"encoding/binary"
	"time"
)

const (
	itemPrefix    = "i/"
	timePrefix    = "t/"
	contextPrefix = "c/"
	profilePrefix = "p/"
	settingPrefix = "s/"

	contextSeparator = 0x00
	timestampSize    = 8
)

func itemKey(id string) []byte {
	return append([]byte(itemPrefix), id...)
}

func profileKey(id string) []byte {
	return append([]byte(profilePrefix), id...)
}

func settingKey(key string) []byte {
	return append([]byte(settingPrefix), key...)
}

// indexPrefix returns the key prefix of the time index scoped to contextID.
// An empty contextID selects the global index.
func indexPrefix(contextID string) []byte {
	if contextID == "" {
		return []byte(timePrefix)
	}

	prefix := make([]byte, 0, len(contextPrefix)+len(contextID)+1)
	prefix = append(prefix, contextPrefix...)
	prefix = append(prefix, contextID...)

	return append(prefix, contextSeparator)
}

func indexKey(prefix []byte, createdAt time.Time, id string) []byte {
	key := make([]byte, 0, len(prefix)+timestampSize+len(id))
	key = append(key, prefix...)
	key = appendTimestamp(key, createdAt)

	return append(key, id...)
}

// indexBound returns the first key of prefix at createdAt. Used as an
// exclusive upper bound it selects entries strictly before createdAt.
func indexBound(prefix []byte, createdAt time.Time) []byte {
	bound := make([]byte, 0, len(prefix)+timestampSize)
	bound = append(bound, prefix...)

	return appendTimestamp(bound, createdAt)
}

func appendTimestamp(dst []byte, t time.Time) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(t.UnixNano())^(1<<63))
}
