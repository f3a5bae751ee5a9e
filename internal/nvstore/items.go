package nvstore

import (
	"bytes"
	"fmt"

	"osalnv/internal/nvpage"
)

// ItemInit creates id with payload buf (nil meaning "reserve the space,
// leave the payload erased") if it does not already exist. It returns
// Success if the item already existed (untouched), ItemUninit if it was
// newly created, or OperFailed if creation could not complete.
func (e *Engine) ItemInit(id uint16, length int, buf []byte) (nvpage.Status, error) {
	if _, _, ok := e.find(id, nvpage.SearchCurrent); ok {
		return nvpage.Success, nil
	}
	if err := e.createItem(id, length, buf); err != nil {
		return nvpage.OperFailed, err
	}
	return nvpage.ItemUninit, nil
}

// ForceRewrite unconditionally replaces id's value with buf, creating it
// if absent. It backs the master-reset protocol's "every item_init on an
// existing Id becomes a rewrite" latch (SPEC_FULL.md §6) — unlike
// ItemInit, an existing item is not left alone.
func (e *Engine) ForceRewrite(id uint16, length int, buf []byte) (nvpage.Status, error) {
	p, off, ok := e.find(id, nvpage.SearchCurrent)
	if !ok {
		return e.ItemInit(id, length, buf)
	}
	hdr := e.readItemHeader(p, off)
	replacement := make([]byte, length)
	n := copy(replacement, buf)
	for ; n < length; n++ {
		replacement[n] = 0xFF
	}
	return e.updateItem(id, p, off, hdr, length, func([]byte) []byte { return replacement })
}

func (e *Engine) createItem(id uint16, length int, buf []byte) error {
	size := nvpage.ItemHeaderSize + nvpage.PaddedLen(length, e.wordSize)
	// id is brand new (find found neither a Current nor a prior xfer copy
	// of it), so there is nothing of its own for a triggered compaction to
	// skip.
	page, err := e.allocateSpace(size, 0)
	if err != nil {
		return err
	}
	_, err = e.writeNewItem(page, id, length, buf)
	return err
}

// ItemLength returns id's declared length, or 0 if it does not exist.
func (e *Engine) ItemLength(id uint16) int {
	p, off, ok := e.find(id, nvpage.SearchCurrent)
	if !ok {
		return 0
	}
	return int(e.readItemHeader(p, off).Len)
}

// Read copies length bytes starting at byte offset ndx within id's
// payload into out.
func (e *Engine) Read(id uint16, ndx, length int, out []byte) (nvpage.Status, error) {
	p, off, ok := e.find(id, nvpage.SearchCurrent)
	if !ok {
		return nvpage.OperFailed, fmt.Errorf("nvstore: read: id %#04x not found", id)
	}
	hdr := e.readItemHeader(p, off)
	if ndx < 0 || length < 0 || ndx+length > int(hdr.Len) {
		return nvpage.OperFailed, fmt.Errorf("nvstore: read: range [%d:%d) exceeds item length %d", ndx, ndx+length, hdr.Len)
	}
	copy(out, e.dev.ReadAt(e.pageAddr(p)+off+nvpage.ItemHeaderSize+ndx, length))
	return nvpage.Success, nil
}

// Write updates length bytes starting at byte offset ndx within id's
// payload, transferring the unaffected prefix and suffix from the
// existing copy. If the resulting payload is byte-for-byte identical to
// the current one, no flash activity occurs (SPEC_FULL.md §4.7 P4).
func (e *Engine) Write(id uint16, ndx, length int, in []byte) (nvpage.Status, error) {
	p, off, ok := e.find(id, nvpage.SearchCurrent)
	if !ok {
		return nvpage.ItemUninit, nil
	}
	hdr := e.readItemHeader(p, off)
	if ndx < 0 || length < 0 || ndx+length > int(hdr.Len) {
		return nvpage.OperFailed, fmt.Errorf("nvstore: write: range [%d:%d) exceeds item length %d", ndx, ndx+length, hdr.Len)
	}
	itemLen := int(hdr.Len)
	build := func(old []byte) []byte {
		out := append([]byte(nil), old...)
		copy(out[ndx:ndx+length], in)
		return out
	}
	return e.updateItem(id, p, off, hdr, itemLen, build)
}

// updateItem is the shared machinery behind Write and ForceRewrite: build
// the new payload, skip flash activity entirely if it matches the old one
// byte-for-byte, otherwise allocate a fresh copy, demote the old copy to
// xfer, write and verify the new copy, then tombstone the old one.
func (e *Engine) updateItem(id uint16, oldPage, oldOff int, oldHdr nvpage.ItemHeader, newLen int, build func(old []byte) []byte) (nvpage.Status, error) {
	oldPayload := e.readPayload(oldPage, oldOff, int(oldHdr.Len))
	newPayload := build(oldPayload)

	if newLen == int(oldHdr.Len) && bytes.Equal(newPayload, oldPayload) {
		return nvpage.Success, nil
	}

	// Demote the old copy to xfer before allocating space for the new one
	// (SPEC_FULL.md §3 item lifecycle, step 4). This must happen first:
	// if allocation ends up compacting oldPage itself, the demoted old
	// copy now sits there as a lone xfer copy with its destination copy
	// not yet written, which would otherwise look exactly like the last
	// surviving copy of an interrupted prior compaction and get carried
	// forward as Current. Passing id as compactPage's skipID below is
	// what actually prevents that — the demotion alone is not enough.
	if err := e.clearStatToXfer(oldPage, oldOff); err != nil {
		return nvpage.OperFailed, fmt.Errorf("nvstore: demote old copy of %#04x: %w", id, err)
	}

	size := nvpage.ItemHeaderSize + nvpage.PaddedLen(newLen, e.wordSize)
	destPage, err := e.allocateSpace(size, id)
	if err != nil {
		return nvpage.OperFailed, err
	}

	newOff, err := e.writeNewItem(destPage, id, newLen, newPayload)
	if err != nil {
		return nvpage.OperFailed, err
	}

	// If allocating space for the new copy compacted oldPage itself, it
	// is now the erased reserve — compactPage was told to skip id, so the
	// demoted old copy was left uncopied and erased along with the rest
	// of the page. There is nothing left to tombstone, and writing to a
	// freshly-erased reserve would violate the single-reserve invariant.
	if oldPage != e.reserve {
		oldSize := nvpage.ItemHeaderSize + nvpage.PaddedLen(int(oldHdr.Len), e.wordSize)
		if err := e.tombstone(oldPage, oldOff, oldSize); err != nil {
			e.logger.Printf("nvstore: %#04x: tombstone of superseded copy failed, will be collapsed on next boot: %v", id, err)
		}
	}

	e.updateHotCache(id, destPage, newOff)
	return nvpage.Success, nil
}
