// Package pf implements the Newton-Raphson power-flow solver (NRPF): it
// assembles a Jacobian in the block-sparse factorizer's layout from an
// admittance matrix and the current voltage estimate, formulates the power
// mismatch, calls pkg/sparse for the linear update, and applies it to the
// polar voltage state until the fixed-point loop converges.
package pf

import "github.com/edp1096/toy-gridflow/pkg/sparse"

// LoadGenType selects how a load or generator's base power S translates
// into a mismatch contribution and Jacobian correction.
type LoadGenType int

const (
	ConstPQ LoadGenType = iota // constant power
	ConstI                     // constant current
	ConstZ                     // constant impedance
)

func (t LoadGenType) String() string {
	switch t {
	case ConstPQ:
		return "const_pq"
	case ConstI:
		return "const_i"
	case ConstZ:
		return "const_y"
	default:
		return "unknown"
	}
}

// Load is a single load or generator attached to a bus, carrying a base
// complex power S = P + jQ (per phase, in asymmetric mode).
type Load struct {
	Bus  int
	Type LoadGenType
	S    sparse.Vec
}

// Source is an ideal voltage behind a series admittance, the slack/reference
// model for a bus the power flow does not solve for directly. The series
// admittance itself lives in the topology (yBus.SourceAdmittanceAt), indexed
// by this source's position in PowerFlowInput.Sources; Source only carries
// the reference voltage, matching the topology/voltage split the
// YBusSym/YBusAsym contract draws.
type Source struct {
	Bus  int
	URef sparse.Vec
}

// PowerFlowInput supplies the per-bus loads and sources that drive one
// Prepare call; it is re-read every outer iteration as V changes but never
// mutated by the solver. The same type serves both SymmetricSolver (width-1
// Vec/Block entries) and AsymmetricSolver (width-3).
type PowerFlowInput struct {
	Loads   []Load
	Sources []Source
}

// NewScalarLoad builds a width-1 Load for SymmetricSolver.
func NewScalarLoad(bus int, t LoadGenType, s complex128) Load {
	return Load{Bus: bus, Type: t, S: sparse.Vec{N: 1, V: []complex128{s}}}
}

// NewPhaseLoad builds a width-3 Load for AsymmetricSolver.
func NewPhaseLoad(bus int, t LoadGenType, s [3]complex128) Load {
	return Load{Bus: bus, Type: t, S: sparse.Vec{N: 3, V: s[:]}}
}

// NewScalarSource builds a width-1 Source for SymmetricSolver.
func NewScalarSource(bus int, uRef complex128) Source {
	return Source{Bus: bus, URef: sparse.Vec{N: 1, V: []complex128{uRef}}}
}

// NewPhaseSource builds a width-3 Source for AsymmetricSolver.
func NewPhaseSource(bus int, uRef [3]complex128) Source {
	return Source{Bus: bus, URef: sparse.Vec{N: 3, V: uRef[:]}}
}
