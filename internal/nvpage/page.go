// Package nvpage implements the on-flash binary layout of OSAL_Nv logical
// pages and items: page headers, item headers, and the weak byte-sum
// checksum that protects every current item. Nothing in this package talks
// to a physical device directly — it only knows how to read and write byte
// slices that some flash.Device handed back.
package nvpage

import (
	"encoding/binary"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Sentinels and sizes
// ───────────────────────────────────────────────────────────────────────────

const (
	// Erased is the all-ones word value a NOR cell reads as after an erase.
	Erased uint16 = 0xFFFF
	// Zero is the fully-programmed word value.
	Zero uint16 = 0x0000

	// PageHeaderSize is the size in bytes of the four-word page header
	// (active, inUse, xfer, spare), independent of the configured word size —
	// each page-header field occupies exactly one 16-bit word on flash.
	PageHeaderSize = 8
)

// PageState is the page-level state machine derived from the three
// significant page-header words (active, inUse, xfer). Spare is reserved
// and never inspected.
type PageState uint8

const (
	// PageErased: active=FFFF inUse=FFFF xfer=FFFF — candidate reserve.
	PageErased PageState = iota
	// PageActiveUnused: active=0000 inUse=FFFF xfer=FFFF — reserve just promoted.
	PageActiveUnused
	// PageInUse: active=0000 inUse=0000 xfer=FFFF — accepting writes.
	PageInUse
	// PageMarkedForCompaction: active=0000 inUse=0000 xfer=0000 — compaction source.
	PageMarkedForCompaction
)

func (s PageState) String() string {
	switch s {
	case PageErased:
		return "Erased"
	case PageActiveUnused:
		return "ActiveUnused"
	case PageInUse:
		return "InUse"
	case PageMarkedForCompaction:
		return "MarkedForCompaction"
	default:
		return fmt.Sprintf("PageState(%d)", uint8(s))
	}
}

// PageHeader is the 8-byte header at the start of every logical page.
type PageHeader struct {
	Active uint16
	InUse  uint16
	Xfer   uint16
	Spare  uint16
}

// State derives the page's position in the state machine from its header
// words. An inconsistent combination (e.g. active=FFFF but inUse=0000, which
// the allocator never produces) is reported as PageMarkedForCompaction, the
// most conservative state — such a page is treated as needing compaction
// rather than ever mistaken for a reserve.
func (h PageHeader) State() PageState {
	switch {
	case h.Active == Erased && h.InUse == Erased && h.Xfer == Erased:
		return PageErased
	case h.Active == Zero && h.InUse == Erased && h.Xfer == Erased:
		return PageActiveUnused
	case h.Active == Zero && h.InUse == Zero && h.Xfer == Erased:
		return PageInUse
	default:
		return PageMarkedForCompaction
	}
}

// DecodePageHeader reads a PageHeader from the first PageHeaderSize bytes
// of a logical page buffer.
func DecodePageHeader(page []byte) PageHeader {
	return PageHeader{
		Active: binary.LittleEndian.Uint16(page[0:2]),
		InUse:  binary.LittleEndian.Uint16(page[2:4]),
		Xfer:   binary.LittleEndian.Uint16(page[4:6]),
		Spare:  binary.LittleEndian.Uint16(page[6:8]),
	}
}

// EncodePageHeader serializes a PageHeader into the first PageHeaderSize
// bytes of buf. It does not issue any flash I/O; callers combine this with
// flash.Device.Write to actually program the bytes.
func EncodePageHeader(h PageHeader, buf []byte) {
	binary.LittleEndian.PutUint16(buf[0:2], h.Active)
	binary.LittleEndian.PutUint16(buf[2:4], h.InUse)
	binary.LittleEndian.PutUint16(buf[4:6], h.Xfer)
	binary.LittleEndian.PutUint16(buf[6:8], h.Spare)
}

// Status is the public result code of a store operation.
type Status uint8

const (
	Success     Status = 0x00
	ItemUninit  Status = 0x09
	OperFailed  Status = 0x0A
	BadItemLen  Status = 0x0B
)

func (s Status) String() string {
	switch s {
	case Success:
		return "Success"
	case ItemUninit:
		return "ItemUninit"
	case OperFailed:
		return "OperFailed"
	case BadItemLen:
		return "BadItemLen"
	default:
		return fmt.Sprintf("Status(0x%02x)", uint8(s))
	}
}
