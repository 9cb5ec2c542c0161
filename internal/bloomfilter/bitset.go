package bloomfilter

import "encoding/binary"

// bitset is a mutable blocked bloom filter: the bit array is laid out as
// consecutive 64-byte (one cache line) blocks, and every key's probes all
// land in a single block it is hashed to. Unlike the teacher's
// go-blocked-bloom-filter — which collects every key up front and builds
// the bit array once, immutable thereafter — bitset supports Add directly
// against the live array, because a bloomd filter is added to throughout
// its lifetime rather than built once from a known key set.
type bitset struct {
	bits    []byte
	nBlocks uint32
	probes  byte
}

// newBitset sizes a bitset for capacity keys at the given bit density.
func newBitset(bitsPerKey, capacity int) *bitset {
	if capacity < 1 {
		capacity = 1
	}
	nBlocks := (capacity*bitsPerKey + blockBitsSize - 1) / blockBitsSize
	if nBlocks < 1 {
		nBlocks = 1
	}
	if nBlocks%2 == 0 {
		// an odd block count spreads the block-selection hash further.
		nBlocks++
	}

	return &bitset{
		bits:    make([]byte, nBlocks*blockBytesSize),
		nBlocks: uint32(nBlocks),
		probes:  calculateProbes(bitsPerKey),
	}
}

func (b *bitset) eachProbe(key []byte, fn func(byteIdx uint32, bitIdx uint32)) {
	h := bloomHash(key)
	delta := h>>17 | h<<15
	block := (h % b.nBlocks) * blockBitsSize
	for p := byte(0); p < b.probes; p++ {
		bitPos := block + (h % blockBitsSize)
		fn(bitPos/8, bitPos%8)
		h += delta
	}
}

// Contains reports whether key may be a member. False positives are
// possible; false negatives are not.
func (b *bitset) Contains(key []byte) bool {
	found := true
	b.eachProbe(key, func(byteIdx, bitIdx uint32) {
		if b.bits[byteIdx]&(1<<bitIdx) == 0 {
			found = false
		}
	})
	return found
}

// Add sets key's bits, returning true if the key was not already a
// (possible) member before this call.
func (b *bitset) Add(key []byte) bool {
	alreadyPresent := b.Contains(key)
	b.eachProbe(key, func(byteIdx, bitIdx uint32) {
		b.bits[byteIdx] |= 1 << bitIdx
	})
	return !alreadyPresent
}

// trailerSize is the length of the encoded footer: 1 byte of probe count
// plus 4 little-endian bytes of block count.
const trailerSize = 5

// encode serializes the bitset into dst, reusing dst's backing array when
// it has enough capacity. The caller is responsible for returning dst to
// internal/bufferpool once done with it.
func (b *bitset) encode(dst []byte) []byte {
	want := len(b.bits) + trailerSize
	if cap(dst) < want {
		dst = append(dst[:0], make([]byte, want)...)
	} else {
		dst = dst[:want]
	}
	copy(dst, b.bits)
	dst[len(b.bits)] = b.probes
	binary.LittleEndian.PutUint32(dst[len(b.bits)+1:], b.nBlocks)
	return dst
}

// decode parses a bitset previously produced by encode.
func decode(data []byte) (*bitset, error) {
	if len(data) <= trailerSize {
		return nil, errCorruptBitset
	}
	n := len(data) - trailerSize
	probes := data[n]
	nBlocks := binary.LittleEndian.Uint32(data[n+1:])
	if nBlocks == 0 || int(nBlocks)*blockBytesSize != n {
		return nil, errCorruptBitset
	}

	bits := make([]byte, n)
	copy(bits, data[:n])
	return &bitset{bits: bits, nBlocks: nBlocks, probes: probes}, nil
}
