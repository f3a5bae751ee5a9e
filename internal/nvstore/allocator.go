package nvstore

import "fmt"

// allocateSpace selects the destination page for an item of size bytes
// (header + padded payload), starting one past the reserve and advancing
// round-robin so that writes spread across pages before ever revisiting
// the page most recently freed by a compaction (SPEC_FULL.md §4.3).
//
// If the chosen page already has size bytes free, it is returned directly.
// If it only has enough free-plus-lost space, it is compacted first —
// compaction moves its live items onto the current reserve and that
// former reserve (now promoted to in-use) is returned as the destination,
// since compaction already made room for the incoming item there.
//
// skipID, if nonzero, is an Id that must never be recopied by a
// compaction triggered here (mirroring the original's compactPage(srcPg,
// skipId)). Engine.updateItem demotes the old copy of the item it is
// rewriting to xfer before calling allocateSpace; if that demotion
// happens to land on the very page this call ends up compacting, the
// demoted copy would otherwise look like a lone surviving xfer copy and
// be carried forward as Current — resurrecting the value the in-flight
// write is in the middle of replacing. Pass 0 when no item is being
// superseded (e.g. creating a brand-new item, or recovery redoing a
// crashed compaction with no write in flight).
func (e *Engine) allocateSpace(size int, skipID uint16) (int, error) {
	for step := 1; step <= e.numPages; step++ {
		p := (e.reserve + step) % e.numPages
		if p == e.reserve {
			continue
		}
		avail := e.pageSize - e.meta[p].off
		if avail >= size {
			return p, nil
		}
		if avail+e.meta[p].lost >= size {
			dest := e.reserve
			if err := e.compactPage(p, skipID); err != nil {
				return -1, err
			}
			return dest, nil
		}
	}
	return -1, fmt.Errorf("nvstore: no page can accommodate %d bytes even after compaction", size)
}
