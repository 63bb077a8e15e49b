package pf

import "fmt"

// MissingCaseError is raised when a Load carries a LoadGenType this module
// does not recognize.
type MissingCaseError struct {
	Bus  int
	Type LoadGenType
}

func (e *MissingCaseError) Error() string {
	return fmt.Sprintf("pf: bus %d: unhandled load/gen type %d", e.Bus, int(e.Type))
}

// DivergeError is raised by the outer fixed-point driver, not by the solver
// itself, when the iteration cap is reached without meeting tolerance. It
// carries the last deviation reached so the caller can decide whether to
// retry with pivot perturbation or a relaxed tolerance.
type DivergeError struct {
	Iterations   int
	MaxDeviation float64
	Tolerance    float64
}

func (e *DivergeError) Error() string {
	return fmt.Sprintf("pf: did not converge within %d iterations (max deviation %g, tolerance %g)",
		e.Iterations, e.MaxDeviation, e.Tolerance)
}
