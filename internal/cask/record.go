package go_cask

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// record is a single bitcask log entry: crc32 | keyLen | valueLen | tombstone | key | value.
// The layout follows the classic Bitcask on-disk format the teacher's
// go-wal models.go anticipates a checksum for (ErrInvalidChecksum) but never
// finishes wiring up; hash/crc32 is stdlib because no third-party checksum
// package appears anywhere in the example pack.
const headerSize = 4 + 4 + 4 + 1

var errInvalidChecksum = errors.New("go_cask: invalid checksum")

type record struct {
	key       Key
	value     []byte
	tombstone bool
}

func (r record) encode() []byte {
	buf := make([]byte, headerSize+len(r.key)+len(r.value))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(r.key)))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(r.value)))
	if r.tombstone {
		buf[12] = 1
	}
	copy(buf[headerSize:], r.key)
	copy(buf[headerSize+len(r.key):], r.value)
	binary.LittleEndian.PutUint32(buf[0:4], crc32.ChecksumIEEE(buf[4:]))
	return buf
}

// decodeRecord parses one record starting at the head of buf, returning the
// record and the number of bytes it consumed.
func decodeRecord(buf []byte) (record, int, error) {
	if len(buf) < headerSize {
		return record{}, 0, errInvalidChecksum
	}
	keyLen := binary.LittleEndian.Uint32(buf[4:8])
	valLen := binary.LittleEndian.Uint32(buf[8:12])
	tombstone := buf[12] == 1
	total := headerSize + int(keyLen) + int(valLen)
	if len(buf) < total {
		return record{}, 0, errInvalidChecksum
	}
	if crc32.ChecksumIEEE(buf[4:total]) != binary.LittleEndian.Uint32(buf[0:4]) {
		return record{}, 0, errInvalidChecksum
	}

	key := make(Key, keyLen)
	copy(key, buf[headerSize:headerSize+int(keyLen)])
	value := make([]byte, valLen)
	copy(value, buf[headerSize+int(keyLen):total])

	return record{key: key, value: value, tombstone: tombstone}, total, nil
}
