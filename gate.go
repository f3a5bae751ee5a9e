package nv

import "errors"

// ErrVoltageLow is returned by any mutating entry point when the voltage
// gate refuses the operation on entry. Reads are never gated.
var ErrVoltageLow = errors.New("nv: bus voltage too low, refusing mutating operation")

// VoltageSource abstracts the brownout monitor external to this module.
// A mutating Store call refuses to run at all if Ok reports false at the
// moment the call is made (SPEC_FULL.md §4.7, §5).
type VoltageSource interface {
	Ok() bool
}

// alwaysOk is the default VoltageSource for hosts with no brownout
// monitor to wire in (tests, the CLI harness unless told otherwise).
type alwaysOk struct{}

func (alwaysOk) Ok() bool { return true }
