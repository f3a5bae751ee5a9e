// Package nvstore implements the crash-consistent page/item protocol that
// the public Store (package nv) serializes behind a mutex: the allocator
// and wear ring, the item index and hot cache, the compactor, and the
// boot-time recovery engine. Engine itself assumes single-threaded access
// — callers (package nv) own all synchronization.
package nvstore

import (
	"fmt"
	"log"

	"osalnv/internal/flash"
	"osalnv/internal/nvpage"
)

// Geometry is the flash region shape an Engine operates over.
type Geometry struct {
	NumPages int // P
	PageSize int // S, including the 8-byte page header
	WordSize int // W
}

// pageMeta is the allocator's per-page bookkeeping.
type pageMeta struct {
	off  int // next free byte offset
	lost int // bytes occupied by tombstones or failed writes
}

// hotEntry caches the location of one hot item.
type hotEntry struct {
	id     uint16
	page   int
	hdrOff int // offset of the item's header, not its payload
	valid  bool
}

// Engine owns the page metadata, hot cache, and reserve pointer for one
// flash region. It has no lock of its own; package nv's Store is
// responsible for serializing all calls.
type Engine struct {
	dev    flash.Device
	logger *log.Logger

	numPages int
	pageSize int
	wordSize int

	meta    []pageMeta
	hot     []hotEntry
	reserve int // -1 until Recover has run
}

// NewEngine constructs an Engine over dev with the given geometry and hot
// Id set. Recover must be called once before any other method.
func NewEngine(dev flash.Device, geom Geometry, hotIDs []uint16, logger *log.Logger) (*Engine, error) {
	if geom.NumPages < 2 {
		return nil, fmt.Errorf("nvstore: need at least 2 logical pages, got %d", geom.NumPages)
	}
	if geom.WordSize <= 0 {
		return nil, fmt.Errorf("nvstore: word size must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		dev:      dev,
		logger:   logger,
		numPages: geom.NumPages,
		pageSize: geom.PageSize,
		wordSize: geom.WordSize,
		meta:     make([]pageMeta, geom.NumPages),
		reserve:  -1,
	}
	for _, id := range hotIDs {
		e.hot = append(e.hot, hotEntry{id: id})
	}
	return e, nil
}

// ReserveIndex returns the current reserve page, or -1 before Recover runs.
func (e *Engine) ReserveIndex() int { return e.reserve }

// PageState reports the current state of logical page p, for tests and
// diagnostics.
func (e *Engine) PageState(p int) nvpage.PageState {
	return e.readPageHeader(p).State()
}

func (e *Engine) pageAddr(p int) int { return p * e.pageSize }

func (e *Engine) resetMeta(p int) {
	e.meta[p] = pageMeta{off: nvpage.PageHeaderSize, lost: 0}
}

// ── raw page/item I/O ───────────────────────────────────────────────────

func (e *Engine) readPageHeader(p int) nvpage.PageHeader {
	buf := e.dev.ReadAt(e.pageAddr(p), nvpage.PageHeaderSize)
	return nvpage.DecodePageHeader(buf)
}

// setHeaderWord clears a single page-header word (active=0, inUse=1,
// xfer=2) to 0x0000. Page-header words only ever transition from erased
// to zero, never the reverse.
func (e *Engine) setHeaderWord(p, wordIndex int) error {
	return e.dev.Write(e.pageAddr(p)+wordIndex*2, []byte{0x00, 0x00})
}

func (e *Engine) promoteActive(p int) error { return e.setHeaderWord(p, 0) }
func (e *Engine) setInUse(p int) error      { return e.setHeaderWord(p, 1) }
func (e *Engine) setXferSource(p int) error { return e.setHeaderWord(p, 2) }

func (e *Engine) eraseLogicalPage(p int) error {
	base := e.pageAddr(p)
	physSize := e.dev.PhysicalPageSize()
	for off := 0; off < e.pageSize; off += physSize {
		if err := e.dev.ErasePage(base + off); err != nil {
			return fmt.Errorf("nvstore: erase page %d: %w", p, err)
		}
	}
	return nil
}

func (e *Engine) readItemHeader(p, off int) nvpage.ItemHeader {
	buf := e.dev.ReadAt(e.pageAddr(p)+off, nvpage.ItemHeaderSize)
	return nvpage.DecodeItemHeader(buf, 0)
}

func (e *Engine) readPayload(p, off, length int) []byte {
	return e.dev.ReadAt(e.pageAddr(p)+off+nvpage.ItemHeaderSize, length)
}

// clearStatToXfer programs the item's stat word to 0x0000, demoting a
// current copy to the pre-interruption "xfer" copy.
func (e *Engine) clearStatToXfer(p, off int) error {
	return e.dev.Write(e.pageAddr(p)+off+6, []byte{0x00, 0x00})
}

// tombstone zeros an item's id word and credits its full on-page size
// (header + padded payload) to the page's lost-bytes count, so the
// allocator can see the space as reclaimable by a future compaction
// without waiting for the next boot's rescan.
func (e *Engine) tombstone(p, off, size int) error {
	if err := e.dev.Write(e.pageAddr(p)+off, []byte{0x00, 0x00}); err != nil {
		return err
	}
	e.meta[p].lost += size
	return nil
}

// scannedItem is one non-erased item header found while scanning a page.
type scannedItem struct {
	offset int
	header nvpage.ItemHeader
}

// scanPage walks page p's items from offset 8, stopping at the first
// erased header or at a declared length that would overflow the page. It
// returns the next free offset, the number of lost bytes, and every
// non-erased item header encountered (including tombstones).
func (e *Engine) scanPage(p int) (nextOff int, lost int, items []scannedItem) {
	off := nvpage.PageHeaderSize
	for {
		if off+nvpage.ItemHeaderSize > e.pageSize {
			break
		}
		hdr := e.readItemHeader(p, off)
		if hdr.IsErased() {
			break
		}
		full := nvpage.ItemHeaderSize + nvpage.PaddedLen(int(hdr.Len), e.wordSize)
		if off+full > e.pageSize {
			lost += e.pageSize - off
			off = e.pageSize
			break
		}
		items = append(items, scannedItem{offset: off, header: hdr})
		if hdr.IsTombstone() {
			lost += full
		}
		off += full
	}
	return off, lost, items
}

// writeNewItem appends a brand-new item to page p at its current free
// offset, writing the half-header, the payload (or just the padding
// checksum if buf is nil), and the final checksum+stat words, with a
// read-back verification at each stage per the error-handling policy in
// SPEC_FULL.md §7.
func (e *Engine) writeNewItem(p int, id uint16, length int, buf []byte) (int, error) {
	off := e.meta[p].off
	full := nvpage.ItemHeaderSize + nvpage.PaddedLen(length, e.wordSize)
	if off+full > e.pageSize {
		return -1, fmt.Errorf("nvstore: page %d has no room for %d bytes", p, full)
	}

	half := make([]byte, 4)
	nvpage.EncodeItemHeaderHalf(id, uint16(length), half, 0)
	if err := e.dev.Write(e.pageAddr(p)+off, half); err != nil {
		return -1, fmt.Errorf("nvstore: write header half: %w", err)
	}
	rb := e.readItemHeader(p, off)
	if rb.ID != id || int(rb.Len) != length {
		e.meta[p].lost += full
		return -1, fmt.Errorf("nvstore: header half read-back mismatch for id %#04x", id)
	}

	var chk uint16
	if buf != nil {
		padded := nvpage.AlignedWriteBuffer(buf, e.wordSize)
		if err := e.dev.Write(e.pageAddr(p)+off+nvpage.ItemHeaderSize, padded); err != nil {
			e.meta[p].lost += full
			return -1, fmt.Errorf("nvstore: write payload: %w", err)
		}
		chk = nvpage.ChecksumFlash(e.dev.ReadAt(e.pageAddr(p), e.pageSize), off+nvpage.ItemHeaderSize, length, e.wordSize)
		want := make([]byte, length)
		for i := copy(want, buf); i < length; i++ {
			want[i] = 0xFF
		}
		if chk != nvpage.Checksum(want, e.wordSize) {
			e.meta[p].lost += full
			return -1, fmt.Errorf("nvstore: payload read-back mismatch for id %#04x", id)
		}
	} else {
		chk = nvpage.ChecksumNilPayload(length, e.wordSize)
	}

	tail := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	nvpage.EncodeItemChecksum(chk, uint16(nvpage.Erased), tail, 0)
	if err := e.dev.Write(e.pageAddr(p)+off, tail); err != nil {
		e.meta[p].lost += full
		return -1, fmt.Errorf("nvstore: write checksum: %w", err)
	}
	final := e.readItemHeader(p, off)
	if final.Chk != chk || final.State() != nvpage.StatCurrent {
		e.meta[p].lost += full
		return -1, fmt.Errorf("nvstore: checksum read-back mismatch for id %#04x", id)
	}

	e.meta[p].off += full
	e.updateHotCache(id, p, off)
	return off, nil
}

func (e *Engine) updateHotCache(id uint16, page, hdrOff int) {
	for i := range e.hot {
		if e.hot[i].id == id {
			e.hot[i].page = page
			e.hot[i].hdrOff = hdrOff
			e.hot[i].valid = true
			return
		}
	}
}

func (e *Engine) invalidateHotCache(id uint16) {
	for i := range e.hot {
		if e.hot[i].id == id {
			e.hot[i].valid = false
		}
	}
}
