package nvstore

import (
	"fmt"

	"osalnv/internal/nvpage"
)

// compactPage copies every live item off src onto the current reserve,
// then promotes the reserve and erases src, making src the new reserve.
// The three-step cleanup sequence at the end is ordered so that recovery
// can always determine, from on-flash state alone, which step a crash
// interrupted (SPEC_FULL.md §4.5, §4.6).
//
// skipID, if nonzero, names an Id that must never be recopied onto the
// reserve, mirroring the original's compactPage(srcPg, skipId): the
// caller (allocateSpace, on behalf of Engine.updateItem) is in the
// middle of writing a fresh copy of that Id elsewhere and has already
// demoted its old copy on src to xfer. Without this, that demoted copy
// would look exactly like the last surviving copy of an interrupted
// prior compaction and be carried forward as Current — producing a
// second, stale Current copy of the Id once the new copy lands.
func (e *Engine) compactPage(src int, skipID uint16) error {
	dst := e.reserve
	if err := e.promoteActive(dst); err != nil {
		return fmt.Errorf("nvstore: promote reserve to active: %w", err)
	}
	if err := e.setXferSource(src); err != nil {
		return fmt.Errorf("nvstore: mark compaction source: %w", err)
	}

	_, _, items := e.scanPage(src)
	for _, it := range items {
		if it.header.IsTombstone() {
			continue
		}
		if skipID != 0 && it.header.ID == skipID {
			continue
		}
		if it.header.State() != nvpage.StatCurrent {
			// An xfer copy on the page being compacted is ambiguous: it is
			// ordinarily a stale copy left by an earlier single-item
			// update, superseded by a current copy elsewhere, which
			// recovery's duplicate pass will tombstone once it finds that
			// current copy. But if this compaction itself is a redo of one
			// interrupted before src was erased, this is exactly the item
			// this same call demoted last time, and its destination copy
			// never landed — it is the only surviving copy and must still
			// be carried forward.
			if e.hasCurrentCopyElsewhere(it.header.ID, src) {
				continue
			}
		}

		length := int(it.header.Len)
		srcPayload := e.readPayload(src, it.offset, length)

		if it.header.State() == nvpage.StatCurrent {
			if err := e.clearStatToXfer(src, it.offset); err != nil {
				return fmt.Errorf("nvstore: demote %#04x to xfer: %w", it.header.ID, err)
			}
		}

		if err := e.compactOneItem(dst, it.header.ID, length, srcPayload, it.header.Chk); err != nil {
			e.logger.Printf("nvstore: compaction of page %d aborted: %v", src, err)
			if eraseErr := e.eraseLogicalPage(dst); eraseErr != nil {
				return fmt.Errorf("nvstore: compaction abort, erase reserve: %w", eraseErr)
			}
			e.resetMeta(dst)
			return fmt.Errorf("nvstore: compaction of page %d failed: %w", src, err)
		}
	}

	// Compaction cleanup sequence — order matters, see Recover.
	if err := e.setInUse(dst); err != nil {
		return fmt.Errorf("nvstore: promote reserve to in-use: %w", err)
	}
	if err := e.eraseLogicalPage(src); err != nil {
		return fmt.Errorf("nvstore: erase compaction source: %w", err)
	}
	e.resetMeta(src)
	e.reserve = src
	return nil
}

// hasCurrentCopyElsewhere reports whether a Current copy of id exists on
// any page other than exclude (the page presently being compacted) and the
// reserve. It never consults the hot cache — it must see authoritative,
// freshly scanned state while compaction is rewriting page contents.
func (e *Engine) hasCurrentCopyElsewhere(id uint16, exclude int) bool {
	for p := 0; p < e.numPages; p++ {
		if p == exclude || p == e.reserve {
			continue
		}
		if _, ok := e.findInPage(p, id, nvpage.SearchCurrent); ok {
			return true
		}
	}
	return false
}

// compactOneItem writes one live item's half-header and payload onto the
// reserve page, then verifies the copy by recomputing its checksum from
// the bytes actually on flash and comparing against the source's original
// checksum, per SPEC_FULL.md §4.5 step 2d.
func (e *Engine) compactOneItem(dst int, id uint16, length int, payload []byte, wantChk uint16) error {
	off := e.meta[dst].off
	full := nvpage.ItemHeaderSize + nvpage.PaddedLen(length, e.wordSize)
	if off+full > e.pageSize {
		return fmt.Errorf("reserve page has no room for id %#04x", id)
	}

	half := make([]byte, 4)
	nvpage.EncodeItemHeaderHalf(id, uint16(length), half, 0)
	if err := e.dev.Write(e.pageAddr(dst)+off, half); err != nil {
		return fmt.Errorf("write header half: %w", err)
	}

	padded := nvpage.AlignedWriteBuffer(payload, e.wordSize)
	if err := e.dev.Write(e.pageAddr(dst)+off+nvpage.ItemHeaderSize, padded); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	gotChk := nvpage.ChecksumFlash(e.dev.ReadAt(e.pageAddr(dst), e.pageSize), off+nvpage.ItemHeaderSize, length, e.wordSize)
	if gotChk != wantChk {
		return fmt.Errorf("checksum mismatch copying id %#04x: got %#04x want %#04x", id, gotChk, wantChk)
	}

	tail := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	nvpage.EncodeItemChecksum(gotChk, uint16(nvpage.Erased), tail, 0)
	if err := e.dev.Write(e.pageAddr(dst)+off, tail); err != nil {
		return fmt.Errorf("write checksum: %w", err)
	}

	e.meta[dst].off += full
	e.updateHotCache(id, dst, off)
	return nil
}
