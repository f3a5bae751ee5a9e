package nvpage

// PreserveLegacyNilChecksum gates whether ChecksumNilPayload pads its sum
// out to the word boundary. The original device's calcChkB pads this case
// too (`if(fill) chk += (W-fill)*0xFF`), matching calcChkF — the function
// used whenever a checksum is recomputed by reading bytes back off flash.
// An item created with a nil buffer (the "reserve space, write padding
// checksum only" path used by item_init; compaction always copies real
// payload bytes and never takes this path) must therefore still verify against Checksum/ChecksumFlash
// later, which both always pad. Set to true only to reproduce a
// byte-for-byte image written against the old (incorrectly unpadded)
// reading of calcChkB; recovery's own duplicate-collapsing pass, which
// validates a Current item's on-flash checksum with the always-padded
// Checksum, will wrongly tombstone a surviving odd-length nil-payload item
// if this is set to true.
const PreserveLegacyNilChecksum = false

// Checksum sums payload bytes mod 2^16 over the word-padded length,
// treating padding bytes as 0xFF (the value unwritten flash reads as).
func Checksum(payload []byte, wordSize int) uint16 {
	padded := PaddedLen(len(payload), wordSize)
	var sum uint16
	for i := 0; i < padded; i++ {
		if i < len(payload) {
			sum += uint16(payload[i])
		} else {
			sum += 0xFF
		}
	}
	return sum
}

// ChecksumNilPayload computes the checksum written when an item is created
// with a nil buffer (payload left as 0xFF, to be filled in later). See
// PreserveLegacyNilChecksum.
func ChecksumNilPayload(length, wordSize int) uint16 {
	if PreserveLegacyNilChecksum {
		return uint16(length) * 0xFF
	}
	return uint16(PaddedLen(length, wordSize)) * 0xFF
}

// ChecksumFlash recomputes a checksum by summing wordSize-padded bytes
// already resident in a page buffer at off, as opposed to Checksum which
// sums a caller-supplied in-memory buffer. Always pads — there is no nil
// case when reading back from flash.
func ChecksumFlash(page []byte, off, length, wordSize int) uint16 {
	padded := PaddedLen(length, wordSize)
	var sum uint16
	for i := 0; i < padded; i++ {
		sum += uint16(page[off+i])
	}
	return sum
}
