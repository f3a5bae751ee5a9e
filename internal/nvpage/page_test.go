package nvpage

import "testing"

func TestPageHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		h    PageHeader
		want PageState
	}{
		{"erased", PageHeader{Erased, Erased, Erased, Erased}, PageErased},
		{"active-unused", PageHeader{Zero, Erased, Erased, Erased}, PageActiveUnused},
		{"in-use", PageHeader{Zero, Zero, Erased, Erased}, PageInUse},
		{"marked-for-compaction", PageHeader{Zero, Zero, Zero, Erased}, PageMarkedForCompaction},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf := make([]byte, PageHeaderSize)
			EncodePageHeader(c.h, buf)
			got := DecodePageHeader(buf)
			if got != c.h {
				t.Fatalf("round trip mismatch: got %+v, want %+v", got, c.h)
			}
			if got.State() != c.want {
				t.Fatalf("State() = %v, want %v", got.State(), c.want)
			}
		})
	}
}

func TestPageStateInconsistentCombinationIsMarkedForCompaction(t *testing.T) {
	h := PageHeader{Active: Erased, InUse: Zero, Xfer: Erased}
	if h.State() != PageMarkedForCompaction {
		t.Fatalf("inconsistent header should be treated conservatively, got %v", h.State())
	}
}

func TestStatusStrings(t *testing.T) {
	for _, s := range []Status{Success, ItemUninit, OperFailed, BadItemLen} {
		if s.String() == "" {
			t.Fatalf("empty String() for %d", s)
		}
	}
}
