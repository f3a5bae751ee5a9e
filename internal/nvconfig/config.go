// Package nvconfig loads the flash geometry and store configuration that,
// on the original device, were compile-time constants (OSAL_NV_PHY_PER_PG,
// the hot-Id table, the compile-time NV_ADDRESS_SPACE size). Since the Go
// port has no separate firmware compile step, the same values are
// expressed as a runtime-loaded YAML layout file instead, read by cmd/nvsim
// and by any test that wants a non-default geometry.
package nvconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layout describes the flash region geometry and store-wide parameters.
type Layout struct {
	// NumPages is P, the number of logical pages. Must be >= 2.
	NumPages int `yaml:"numPages"`
	// PageSize is S, the usable size in bytes of one logical page,
	// including its 8-byte header.
	PageSize int `yaml:"pageSize"`
	// WordSize is W, the minimum programmable unit in bytes.
	WordSize int `yaml:"wordSize"`
	// PhysPerLogicalPage is the number of physical erase units grouped
	// into one logical page for the purposes of a single erase call.
	PhysPerLogicalPage int `yaml:"physPerLogicalPage"`
	// HotIDs is the set of Ids given a dedicated hot-cache slot.
	HotIDs []uint16 `yaml:"hotIds"`
}

// DefaultLayout matches the concrete scenarios described in the
// specification: P=4, S=512, W=2, one physical page per logical page,
// hot set {0x0001}.
func DefaultLayout() Layout {
	return Layout{
		NumPages:           4,
		PageSize:           512,
		WordSize:           2,
		PhysPerLogicalPage: 1,
		HotIDs:             []uint16{0x0001},
	}
}

// Validate checks the layout for internal consistency.
func (l Layout) Validate() error {
	if l.NumPages < 2 {
		return fmt.Errorf("nvconfig: numPages must be >= 2, got %d", l.NumPages)
	}
	if l.PageSize <= nvpageHeaderAndOneItem(l.WordSize) {
		return fmt.Errorf("nvconfig: pageSize %d too small for word size %d", l.PageSize, l.WordSize)
	}
	if l.WordSize <= 0 || l.WordSize%2 != 0 {
		return fmt.Errorf("nvconfig: wordSize must be a positive even number, got %d", l.WordSize)
	}
	if l.PhysPerLogicalPage < 1 {
		return fmt.Errorf("nvconfig: physPerLogicalPage must be >= 1, got %d", l.PhysPerLogicalPage)
	}
	for _, id := range l.HotIDs {
		if id == 0 || id&0x8000 != 0 {
			return fmt.Errorf("nvconfig: hot id 0x%04x outside callable range 0x0001..0x7FFF", id)
		}
	}
	return nil
}

// nvpageHeaderAndOneItem is the minimum page size that could ever hold
// anything: the 8-byte page header plus one empty item header.
func nvpageHeaderAndOneItem(wordSize int) int {
	return 8 + 8
}

// Load reads a Layout from a YAML file at path.
func Load(path string) (Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("nvconfig: read %s: %w", path, err)
	}
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("nvconfig: parse %s: %w", path, err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
