package pf

import "github.com/edp1096/toy-gridflow/pkg/sparse"

// SymmetricSolver is the single-phase NRPF solver: admittance and Jacobian
// entries are plain complex scalars.
type SymmetricSolver struct{ c *core }

// NewSymmetricSolver allocates working storage shaped by yb.NnzLU() and
// yb.Size() and builds an internal BSLU factorizer over the Jacobian's
// sparse pattern.
func NewSymmetricSolver(yb YBusSym) *SymmetricSolver {
	return &SymmetricSolver{c: newCore(symYBusAdapter{yb}, 1)}
}

// Initialize seeds u by solving the flat-start linear system.
func (s *SymmetricSolver) Initialize(input *PowerFlowInput, u []complex128) error {
	vecs := scalarsToVecs(u)
	if err := s.c.initialize(input, vecs); err != nil {
		return err
	}
	vecsToScalars(vecs, u)
	return nil
}

// Prepare assembles the Jacobian and mismatch for the current u.
func (s *SymmetricSolver) Prepare(input *PowerFlowInput, u []complex128) error {
	return s.c.prepare(input, scalarsToVecs(u))
}

// Solve factorizes the Jacobian and overwrites the mismatch in place with
// the increment, returning whether pivot perturbation was used.
func (s *SymmetricSolver) Solve(usePerturbation bool) (bool, error) {
	return s.c.solveMatrix(usePerturbation)
}

// Iterate applies the solved increment to (theta, V), recomputes u in
// place, and returns the max deviation across buses.
func (s *SymmetricSolver) Iterate(u []complex128) float64 {
	vecs := scalarsToVecs(u)
	dev := s.c.iterateUnknown(vecs)
	vecsToScalars(vecs, u)
	return dev
}

// AsymmetricSolver is the three-phase NRPF solver: admittance and Jacobian
// entries are 3x3 dense blocks.
type AsymmetricSolver struct{ c *core }

func NewAsymmetricSolver(yb YBusAsym) *AsymmetricSolver {
	return &AsymmetricSolver{c: newCore(asymYBusAdapter{yb}, 3)}
}

func (s *AsymmetricSolver) Initialize(input *PowerFlowInput, u [][3]complex128) error {
	vecs := phasesToVecs(u)
	if err := s.c.initialize(input, vecs); err != nil {
		return err
	}
	vecsToPhases(vecs, u)
	return nil
}

func (s *AsymmetricSolver) Prepare(input *PowerFlowInput, u [][3]complex128) error {
	return s.c.prepare(input, phasesToVecs(u))
}

func (s *AsymmetricSolver) Solve(usePerturbation bool) (bool, error) {
	return s.c.solveMatrix(usePerturbation)
}

func (s *AsymmetricSolver) Iterate(u [][3]complex128) float64 {
	vecs := phasesToVecs(u)
	dev := s.c.iterateUnknown(vecs)
	vecsToPhases(vecs, u)
	return dev
}

// RunSymmetric drives prepare -> solve -> iterate on solver until max
// deviation falls within cfg.Tolerance or cfg.MaxIterations is spent, in
// which case it returns a *DivergeError carrying the last deviation reached.
func RunSymmetric(solver *SymmetricSolver, input *PowerFlowInput, u []complex128, cfg Config) (Result, error) {
	vecs := scalarsToVecs(u)
	res, err := solver.c.run(input, vecs, cfg)
	vecsToScalars(vecs, u)
	return res, err
}

// RunAsymmetric is RunSymmetric's three-phase counterpart.
func RunAsymmetric(solver *AsymmetricSolver, input *PowerFlowInput, u [][3]complex128, cfg Config) (Result, error) {
	vecs := phasesToVecs(u)
	res, err := solver.c.run(input, vecs, cfg)
	vecsToPhases(vecs, u)
	return res, err
}

func scalarsToVecs(u []complex128) []sparse.Vec {
	out := make([]sparse.Vec, len(u))
	for i, c := range u {
		out[i] = sparse.Vec{N: 1, V: []complex128{c}}
	}
	return out
}

func vecsToScalars(vecs []sparse.Vec, u []complex128) {
	for i, v := range vecs {
		u[i] = v.V[0]
	}
}

func phasesToVecs(u [][3]complex128) []sparse.Vec {
	out := make([]sparse.Vec, len(u))
	for i, ph := range u {
		v := make([]complex128, 3)
		copy(v, ph[:])
		out[i] = sparse.Vec{N: 3, V: v}
	}
	return out
}

func vecsToPhases(vecs []sparse.Vec, u [][3]complex128) {
	for i, v := range vecs {
		copy(u[i][:], v.V)
	}
}
