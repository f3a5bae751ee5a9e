package nvpage

import "encoding/binary"

// ItemHeaderSize is the size in bytes of the four-word item header
// (id, len, chk, stat).
const ItemHeaderSize = 8

// ItemState reflects the item header's stat word. Superseding an item
// clears the whole word to 0x0000, but State treats any value other than
// 0xFFFF as Xfer, so a partially cleared (torn) stat word also reads as
// Xfer.
type ItemState uint8

const (
	// StatCurrent means this copy is the live value for its Id.
	StatCurrent ItemState = iota
	// StatXfer means this copy is a prior value, superseded by a newer
	// write that may or may not have completed.
	StatXfer
)

func (s ItemState) String() string {
	if s == StatCurrent {
		return "Current"
	}
	return "Xfer"
}

// SearchMode distinguishes a current-value lookup from a lookup for the
// pre-interruption "xfer" copy of an Id. It is the typed replacement for
// the original's trick of setting bit 15 of the search key; that bit never
// appears anywhere outside this package.
type SearchMode uint8

const (
	SearchCurrent SearchMode = iota
	SearchPriorXfer
)

// ItemHeader is the 8-byte header preceding every item's payload.
type ItemHeader struct {
	ID   uint16
	Len  uint16
	Chk  uint16
	Stat uint16
}

// IsErased reports whether this header marks the unwritten tail of a page
// (id still reads as all-ones). A scan must stop here.
func (h ItemHeader) IsErased() bool { return h.ID == Erased }

// IsTombstone reports whether the item's id has been zeroed, i.e. it has
// been fully superseded and its bytes are "lost" until compaction.
func (h ItemHeader) IsTombstone() bool { return h.ID == Zero }

// State reports Current or Xfer for a non-erased, non-tombstoned header.
func (h ItemHeader) State() ItemState {
	if h.Stat == Erased {
		return StatCurrent
	}
	return StatXfer
}

// Matches reports whether this header is a live item for id under mode.
func (h ItemHeader) Matches(id uint16, mode SearchMode) bool {
	if h.IsErased() || h.IsTombstone() || h.ID != id {
		return false
	}
	switch mode {
	case SearchCurrent:
		return h.State() == StatCurrent
	case SearchPriorXfer:
		return h.State() == StatXfer
	default:
		return false
	}
}

// DecodeItemHeader reads an ItemHeader from buf[off:off+ItemHeaderSize].
func DecodeItemHeader(buf []byte, off int) ItemHeader {
	return ItemHeader{
		ID:   binary.LittleEndian.Uint16(buf[off : off+2]),
		Len:  binary.LittleEndian.Uint16(buf[off+2 : off+4]),
		Chk:  binary.LittleEndian.Uint16(buf[off+4 : off+6]),
		Stat: binary.LittleEndian.Uint16(buf[off+6 : off+8]),
	}
}

// EncodeItemHeaderHalf writes only id and len into buf, leaving chk and
// stat as their current (presumably erased) bytes untouched. This mirrors
// the two-phase header write: id+len land first, chk+stat follow once the
// payload is on flash.
func EncodeItemHeaderHalf(id, length uint16, buf []byte, off int) {
	binary.LittleEndian.PutUint16(buf[off:off+2], id)
	binary.LittleEndian.PutUint16(buf[off+2:off+4], length)
}

// EncodeItemChecksum writes the checksum and stat words.
func EncodeItemChecksum(chk, stat uint16, buf []byte, off int) {
	binary.LittleEndian.PutUint16(buf[off+4:off+6], chk)
	binary.LittleEndian.PutUint16(buf[off+6:off+8], stat)
}

// AlignedWriteBuffer returns payload padded up to a multiple of wordSize
// with 0xFF bytes, the value a correct caller must stage so that a
// word-granular flash program never tries to set an untouched bit from 0
// back to 1.
func AlignedWriteBuffer(payload []byte, wordSize int) []byte {
	padded := PaddedLen(len(payload), wordSize)
	if padded == len(payload) {
		return payload
	}
	out := make([]byte, padded)
	copy(out, payload)
	for i := len(payload); i < padded; i++ {
		out[i] = 0xFF
	}
	return out
}

// PaddedLen rounds length up to a multiple of the word size.
func PaddedLen(length, wordSize int) int {
	if length%wordSize == 0 {
		return length
	}
	return (length/wordSize + 1) * wordSize
}
