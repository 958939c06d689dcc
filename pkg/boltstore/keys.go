package boltstore

import (
	"encoding/binary"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Bucket name constants for bbolt storage.
var (
	bucketMeta        = []byte("meta")
	bucketEntities    = []byte("entities")
	bucketAttachments = []byte("attachments")
	bucketLeaders     = []byte("leaders")
)

// Meta key constants.
var (
	keyFormat     = []byte("format")
	keyNextSerial = []byte("nextserial")
	keySavedAt    = []byte("savedat")
)

// formatVersion is the layout of the buckets themselves. Records carry their
// own versions.
const formatVersion = 1

// refToKey converts a DBRef to an 8-byte big-endian key.
// We offset by a large constant so negative DBRefs (Nothing=-1, etc.) sort correctly.
func refToKey(ref gamedb.DBRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef converts an 8-byte big-endian key back to a DBRef.
func keyToRef(b []byte) gamedb.DBRef {
	v := binary.BigEndian.Uint64(b)
	return gamedb.DBRef(int64(v) - 1<<32)
}

// intToKey converts an int to an 8-byte big-endian key.
func intToKey(n int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

// keyToInt converts an 8-byte big-endian key back to an int.
func keyToInt(b []byte) int {
	return int(binary.BigEndian.Uint64(b))
}

// attachmentKey is the owner's ref key followed by the attachment's
// position on it, so an entity's attachments share a prefix.
func attachmentKey(owner gamedb.DBRef, i int) []byte {
	return append(refToKey(owner), intToKey(i)...)
}
