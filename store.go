// Package nv is the public API of osalnv: a power-fail-safe, wear-leveled
// key-value store backed by simulated NOR-flash pages. Every entry point
// is serialized through a single mutex and, for mutating calls, gated by
// a voltage source — there is no finer-grained locking anywhere in this
// module, by design (SPEC_FULL.md §5).
package nv

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"osalnv/internal/flash"
	"osalnv/internal/nvpage"
	"osalnv/internal/nvstore"
)

// NVIDMasterReset is the well-known Id under which the master-reset
// protocol stores its magic value (SPEC_FULL.md §6). It sits in the
// callable Id range like any other client item.
const NVIDMasterReset uint16 = 0x7F00

const masterResetMagic uint16 = 0xDEAF

// Config configures a Store. Device, NumPages, PageSize, and WordSize are
// required; the rest have sane defaults.
type Config struct {
	Device   flash.Device
	NumPages int
	PageSize int
	WordSize int
	HotIDs   []uint16

	// Voltage defaults to a gate that is always satisfied.
	Voltage VoltageSource
	// Logger defaults to log.Default().
	Logger *log.Logger
	// DeviceID, if the zero UUID, is generated fresh.
	DeviceID uuid.UUID
}

// Store is the serialized entry point to one flash region. All exported
// methods acquire the same mutex for their entire duration; none of them
// yield partway through (SPEC_FULL.md §5).
type Store struct {
	mu     sync.Mutex
	engine *nvstore.Engine

	voltage  VoltageSource
	logger   *log.Logger
	identity nvstore.Identity

	// masterResetActive latches for the remainder of this boot session
	// once NVIDMasterReset read back as the magic value at Init.
	masterResetActive bool
}

// Init constructs a Store: builds the engine, runs the recovery engine
// against whatever partial state is on flash, initializes the hot cache,
// and processes the master-reset key.
func Init(cfg Config) (*Store, error) {
	if cfg.Voltage == nil {
		cfg.Voltage = alwaysOk{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	geom := nvstore.Geometry{NumPages: cfg.NumPages, PageSize: cfg.PageSize, WordSize: cfg.WordSize}
	engine, err := nvstore.NewEngine(cfg.Device, geom, cfg.HotIDs, logger)
	if err != nil {
		return nil, fmt.Errorf("nv: init: %w", err)
	}
	if err := engine.Recover(); err != nil {
		return nil, fmt.Errorf("nv: init: recovery: %w", err)
	}

	s := &Store{
		engine:   engine,
		voltage:  cfg.Voltage,
		logger:   logger,
		identity: nvstore.NewIdentity(cfg.DeviceID),
	}
	s.processMasterResetKey()

	logger.Printf("nv: init complete, reserve=page %d, %s", engine.ReserveIndex(), s.identity)
	return s, nil
}

// processMasterResetKey reads NVIDMasterReset (if it exists) and, if it
// holds the magic value, clears it and latches masterResetActive for the
// rest of this boot session (SPEC_FULL.md §6).
func (s *Store) processMasterResetKey() {
	var buf [2]byte
	status, err := s.engine.Read(NVIDMasterReset, 0, 2, buf[:])
	if err != nil || status != nvpage.Success {
		return
	}
	if binary.LittleEndian.Uint16(buf[:]) != masterResetMagic {
		return
	}

	s.logger.Printf("nv: master reset key detected, latching rewrite-on-item_init for this boot session")
	s.masterResetActive = true
	if _, err := s.engine.ForceRewrite(NVIDMasterReset, 2, []byte{0x00, 0x00}); err != nil {
		s.logger.Printf("nv: failed to clear master reset key: %v", err)
	}
}

// Identity returns this store's device and boot-session identifiers.
func (s *Store) Identity() nvstore.Identity { return s.identity }
