package nvstore

import "osalnv/internal/nvpage"

// Recover runs once at boot, before any client call is accepted. It
// resolves the reserve page from whatever state a crash left on flash,
// finishes any interrupted compaction, recomputes every page's allocator
// bookkeeping, and collapses any duplicate current/xfer pair left by an
// interrupted update (SPEC_FULL.md §4.6).
func (e *Engine) Recover() error {
	erasedPages := make([]int, 0, 2)
	oldPg := -1
	for p := 0; p < e.numPages; p++ {
		switch e.readPageHeader(p).State() {
		case nvpage.PageErased:
			erasedPages = append(erasedPages, p)
		case nvpage.PageMarkedForCompaction:
			if oldPg == -1 {
				oldPg = p
			} else {
				e.logger.Printf("nvstore: recovery found a second compaction-marked page %d; deferring it to a future boot", p)
			}
		}
	}

	reserve := -1
	if len(erasedPages) > 0 {
		reserve = erasedPages[0]
		for _, p := range erasedPages[1:] {
			if err := e.promoteActive(p); err != nil {
				return err
			}
			if err := e.setInUse(p); err != nil {
				return err
			}
		}
	}

	switch {
	case oldPg != -1 && reserve != -1:
		// Crash before the reserve was promoted to in-use (cleanup step
		// 3a): the reserve may hold a partial destination copy. Erase it
		// and redo the compaction from scratch.
		e.logger.Printf("nvstore: recovery case A: redoing interrupted compaction of page %d", oldPg)
		if err := e.eraseLogicalPage(reserve); err != nil {
			return err
		}
		e.resetMeta(reserve)
		e.reserve = reserve
		if err := e.compactPage(oldPg, 0); err != nil {
			return err
		}

	case oldPg != -1 && reserve == -1:
		// Crash between cleanup steps 3a and 3b: the reserve has already
		// been absorbed (promoted). oldPg's live items are safely on the
		// (now in-use) former reserve; oldPg itself just needs erasing.
		e.logger.Printf("nvstore: recovery case B: promoting erased source page %d to reserve", oldPg)
		if err := e.eraseLogicalPage(oldPg); err != nil {
			return err
		}
		e.resetMeta(oldPg)
		e.reserve = oldPg

	case oldPg == -1 && reserve != -1:
		// Quiescent, or crashed during the final idempotent re-erase.
		e.logger.Printf("nvstore: recovery case C: re-erasing reserve page %d", reserve)
		if err := e.eraseLogicalPage(reserve); err != nil {
			return err
		}
		e.resetMeta(reserve)
		e.reserve = reserve

	default:
		// No reserve survived at all: the pre-crash reserve was promoted
		// and its erase of the old source was itself interrupted. This is
		// a documented heuristic, not a proof of correctness (SPEC_FULL.md
		// §9) — prefer a page that looks fully reclaimable, else the
		// page with the most lost bytes.
		p := e.pickMostLostPage()
		e.logger.Printf("nvstore: recovery case D: no reserve found, using most-lost-page heuristic, chose page %d", p)
		if err := e.eraseLogicalPage(p); err != nil {
			return err
		}
		e.resetMeta(p)
		e.reserve = p
	}

	anyXfer := false
	for p := 0; p < e.numPages; p++ {
		if p == e.reserve {
			e.resetMeta(p)
			continue
		}
		off, lost, items := e.scanPage(p)
		e.meta[p] = pageMeta{off: off, lost: lost}
		for _, it := range items {
			if !it.header.IsTombstone() && it.header.State() == nvpage.StatXfer {
				anyXfer = true
			}
		}
	}
	if anyXfer {
		if err := e.collapseDuplicates(); err != nil {
			return err
		}
	}

	return e.initHotCache()
}

// pickMostLostPage scans every page (the allocator metadata isn't
// populated yet at this point in boot) and returns the one whose lost
// bytes most closely indicate it was the compaction destination whose
// final erase was interrupted: an exact match of "everything past the
// header is lost" wins outright, otherwise the page with the most lost
// bytes is chosen as a safety net.
func (e *Engine) pickMostLostPage() int {
	fullyReclaimable := e.pageSize - nvpage.PageHeaderSize
	best, bestLost := 0, -1
	for p := 0; p < e.numPages; p++ {
		_, lost, _ := e.scanPage(p)
		if lost == fullyReclaimable {
			return p
		}
		if lost > bestLost {
			bestLost = lost
			best = p
		}
	}
	return best
}

// collapseDuplicates resolves every current/xfer pair left by a write
// that was interrupted after the new copy's checksum validated but before
// the old copy was tombstoned. Current items whose checksum no longer
// validates are themselves zeroed — they were left in a torn state and
// cannot be trusted.
func (e *Engine) collapseDuplicates() error {
	for p := 0; p < e.numPages; p++ {
		if p == e.reserve {
			continue
		}
		_, _, items := e.scanPage(p)
		for _, it := range items {
			if it.header.IsTombstone() || it.header.State() != nvpage.StatCurrent {
				continue
			}
			payload := e.readPayload(p, it.offset, int(it.header.Len))
			if nvpage.Checksum(payload, e.wordSize) != it.header.Chk {
				size := nvpage.ItemHeaderSize + nvpage.PaddedLen(int(it.header.Len), e.wordSize)
				if err := e.tombstone(p, it.offset, size); err != nil {
					return err
				}
				continue
			}
			for q := 0; q < e.numPages; q++ {
				if q == e.reserve {
					continue
				}
				if off, ok := e.findInPage(q, it.header.ID, nvpage.SearchPriorXfer); ok {
					dup := e.readItemHeader(q, off)
					size := nvpage.ItemHeaderSize + nvpage.PaddedLen(int(dup.Len), e.wordSize)
					if err := e.tombstone(q, off, size); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
