package nv

import (
	"bytes"
	"testing"

	"osalnv/internal/flash"
)

func testConfig(dev flash.Device) Config {
	return Config{
		Device:   dev,
		NumPages: 4,
		PageSize: 512,
		WordSize: 2,
		HotIDs:   []uint16{0x0001},
	}
}

func newTestStore(t *testing.T) (*Store, flash.Device) {
	t.Helper()
	dev := flash.NewSimRegion(4*512, 512)
	s, err := Init(testConfig(dev))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, dev
}

func TestInitOnBlankDeviceSucceeds(t *testing.T) {
	s, _ := newTestStore(t)
	if s.Identity().DeviceID.String() == "" {
		t.Fatalf("expected a generated device identity")
	}
}

func TestItemInitThenReadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.ItemInit(0x0010, 4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("ItemInit: %v", err)
	}
	out := make([]byte, 4)
	status, err := s.Read(0x0010, 0, 4, out)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if status.String() == "" {
		t.Fatalf("Status must stringify")
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("got %x", out)
	}
}

func TestWriteIsVoltageGatedButReadIsNot(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.ItemInit(0x0010, 2, []byte{1, 2}); err != nil {
		t.Fatalf("ItemInit: %v", err)
	}
	s.voltage = fixedVoltage{ok: false}

	if _, err := s.Write(0x0010, 0, 2, []byte{9, 9}); err != ErrVoltageLow {
		t.Fatalf("expected ErrVoltageLow, got %v", err)
	}
	if _, err := s.ItemInit(0x0011, 2, []byte{1, 1}); err != ErrVoltageLow {
		t.Fatalf("ItemInit should also be voltage-gated")
	}

	out := make([]byte, 2)
	if status, err := s.Read(0x0010, 0, 2, out); err != nil {
		t.Fatalf("Read should not be voltage-gated: %v status=%v", err, status)
	}
}

func TestInvalidIdIsRejected(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.ItemInit(0x8000, 2, []byte{1, 2}); err == nil {
		t.Fatalf("expected bit-15 id to be rejected")
	}
	if _, err := s.ItemInit(0x0000, 2, []byte{1, 2}); err == nil {
		t.Fatalf("expected id 0 to be rejected")
	}
}

func TestMasterResetLatchesRewriteOnNextInit(t *testing.T) {
	s, dev := newTestStore(t)
	if _, err := s.ItemInit(0x0010, 4, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("ItemInit: %v", err)
	}
	if err := s.WriteMasterResetKey(); err != nil {
		t.Fatalf("WriteMasterResetKey: %v", err)
	}

	// The key takes effect on the *next* Init, not this boot session.
	if _, err := s.ItemInit(0x0010, 4, []byte{9, 9, 9, 9}); err != nil {
		t.Fatalf("ItemInit: %v", err)
	}
	out := make([]byte, 4)
	if _, err := s.Read(0x0010, 0, 4, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("master reset key should not affect the current boot session, got %x", out)
	}

	s2, err := Init(testConfig(dev))
	if err != nil {
		t.Fatalf("Init (reboot): %v", err)
	}
	if !s2.masterResetActive {
		t.Fatalf("expected masterResetActive to latch on the reboot that observes the key")
	}
	if _, err := s2.ItemInit(0x0010, 4, []byte{7, 7, 7, 7}); err != nil {
		t.Fatalf("ItemInit: %v", err)
	}
	if _, err := s2.Read(0x0010, 0, 4, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(out, []byte{7, 7, 7, 7}) {
		t.Fatalf("expected a forced rewrite once the master reset key latches, got %x", out)
	}
}

type fixedVoltage struct{ ok bool }

func (v fixedVoltage) Ok() bool { return v.ok }
