package nvstore

import (
	"io"
	"log"

	"osalnv/internal/flash"
)

// testGeometry matches the concrete scenarios in SPEC_FULL.md §8: P=4,
// S=512, W=2, one physical page per logical page.
func testGeometry() Geometry {
	return Geometry{NumPages: 4, PageSize: 512, WordSize: 2}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestEngine(hotIDs ...uint16) (*Engine, *flash.SimRegion) {
	geom := testGeometry()
	region := flash.NewSimRegion(geom.NumPages*geom.PageSize, geom.PageSize)
	e, err := NewEngine(region, geom, hotIDs, quietLogger())
	if err != nil {
		panic(err)
	}
	if err := e.Recover(); err != nil {
		panic(err)
	}
	return e, region
}
