package nvstore

import "osalnv/internal/nvpage"

// find locates the live item for id under mode, consulting the hot cache
// first for a SearchCurrent lookup before falling back to a linear scan of
// every page. It returns the item's page and the offset of its header.
//
// A SearchCurrent miss falls back to a SearchPriorXfer search, mirroring
// findItem's recursion into the id|OSAL_NV_SOURCE_ID lookup: if an update
// demoted the old copy to xfer and was then interrupted before the new
// copy's checksum landed, collapseDuplicates tombstones the torn new copy
// at the next boot and leaves the pre-write value as a lone xfer copy with
// no current counterpart. That surviving copy is still the committed
// value and must stay readable, not disappear.
func (e *Engine) find(id uint16, mode nvpage.SearchMode) (page, hdrOff int, ok bool) {
	if mode == nvpage.SearchCurrent {
		for _, h := range e.hot {
			if h.valid && h.id == id {
				hdr := e.readItemHeader(h.page, h.hdrOff)
				if hdr.Matches(id, mode) {
					return h.page, h.hdrOff, true
				}
				// Stale cache entry (e.g. the item moved during a
				// compaction and the cache wasn't updated in lockstep) —
				// fall through to the authoritative scan.
			}
		}
	}
	for p := 0; p < e.numPages; p++ {
		if p == e.reserve {
			continue
		}
		if off, ok := e.findInPage(p, id, mode); ok {
			return p, off, true
		}
	}
	if mode == nvpage.SearchCurrent {
		return e.find(id, nvpage.SearchPriorXfer)
	}
	return -1, -1, false
}

// findInPage scans a single page for id under mode.
func (e *Engine) findInPage(p int, id uint16, mode nvpage.SearchMode) (hdrOff int, ok bool) {
	_, _, items := e.scanPage(p)
	for _, it := range items {
		if it.header.Matches(id, mode) {
			return it.offset, true
		}
	}
	return -1, false
}

// Locate reports which logical page currently holds id's live copy, for
// diagnostics and tests that want to observe wear leveling directly rather
// than inferring it from behavior.
func (e *Engine) Locate(id uint16) (page int, ok bool) {
	page, _, ok = e.find(id, nvpage.SearchCurrent)
	return page, ok
}

// initHotCache populates the hot cache by looking up every configured hot
// Id once, at boot, after recovery has produced a consistent view.
func (e *Engine) initHotCache() error {
	for i := range e.hot {
		id := e.hot[i].id
		e.hot[i].valid = false
		if p, off, ok := e.find(id, nvpage.SearchCurrent); ok {
			e.hot[i].page = p
			e.hot[i].hdrOff = off
			e.hot[i].valid = true
		}
	}
	return nil
}
