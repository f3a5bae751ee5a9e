package nvpage

import "testing"

func TestItemHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, ItemHeaderSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	EncodeItemHeaderHalf(0x0010, 4, buf, 0)
	EncodeItemChecksum(0x1234, uint16(Erased), buf, 0)

	h := DecodeItemHeader(buf, 0)
	if h.ID != 0x0010 || h.Len != 4 || h.Chk != 0x1234 || h.Stat != Erased {
		t.Fatalf("unexpected header: %+v", h)
	}
	if h.State() != StatCurrent {
		t.Fatalf("expected StatCurrent, got %v", h.State())
	}
}

func TestItemHeaderXferState(t *testing.T) {
	buf := make([]byte, ItemHeaderSize)
	EncodeItemHeaderHalf(0x0010, 4, buf, 0)
	EncodeItemChecksum(0x1234, uint16(Zero), buf, 0)
	h := DecodeItemHeader(buf, 0)
	if h.State() != StatXfer {
		t.Fatalf("expected StatXfer, got %v", h.State())
	}
}

func TestItemHeaderMatches(t *testing.T) {
	current := ItemHeader{ID: 0x10, Len: 4, Stat: Erased}
	xfer := ItemHeader{ID: 0x10, Len: 4, Stat: Zero}
	erased := ItemHeader{ID: Erased}
	tomb := ItemHeader{ID: Zero}

	if !current.Matches(0x10, SearchCurrent) {
		t.Fatalf("current should match SearchCurrent")
	}
	if current.Matches(0x10, SearchPriorXfer) {
		t.Fatalf("current should not match SearchPriorXfer")
	}
	if !xfer.Matches(0x10, SearchPriorXfer) {
		t.Fatalf("xfer should match SearchPriorXfer")
	}
	if erased.Matches(0x10, SearchCurrent) || tomb.Matches(0x10, SearchCurrent) {
		t.Fatalf("erased/tombstone headers must never match")
	}
}

func TestPaddedLen(t *testing.T) {
	cases := []struct{ length, word, want int }{
		{4, 2, 4},
		{5, 2, 6},
		{0, 2, 0},
		{7, 4, 8},
	}
	for _, c := range cases {
		if got := PaddedLen(c.length, c.word); got != c.want {
			t.Fatalf("PaddedLen(%d,%d) = %d, want %d", c.length, c.word, got, c.want)
		}
	}
}
