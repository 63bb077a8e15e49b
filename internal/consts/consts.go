// Package consts holds the numerical constants shared by the sparse
// factorizer and the power-flow solver.
package consts

const (
	// Epsilon is the machine epsilon used as the baseline tolerance for
	// singularity checks when pivot perturbation is disabled.
	Epsilon = 2.220446049250313e-16

	// EpsilonPerturbation is the relative threshold below which a pivot is
	// perturbed instead of left singular, and the target backward error for
	// iterative refinement to converge against.
	EpsilonPerturbation = 1e-13

	// CapBackErrorDenominator floors the per-row backward-error denominator
	// at this fraction of the largest denominator, so that an all-but-zero
	// row cannot report a spuriously huge backward error.
	CapBackErrorDenominator = 1e-4

	// MaxIterativeRefinement bounds the number of refinement solves run
	// after the first one; exceeding it without convergence is a failure.
	MaxIterativeRefinement = 5

	// BlockSize is the fixed dimension of a three-phase tensor entry.
	BlockSize = 3
)
