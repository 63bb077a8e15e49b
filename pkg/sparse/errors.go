package sparse

import "fmt"

// MatrixError marks the error kinds BSLU can raise. A solve or
// factorization either succeeds or fails fatally with one of these; there
// is no internal retry.
type MatrixError interface {
	error
	matrixError()
}

// SingularPivotError is raised when a diagonal pivot is non-finite, or its
// magnitude falls below epsilon*maxPivot while pivot perturbation is
// disabled.
type SingularPivotError struct {
	Row   int
	Value complex128
}

func (e *SingularPivotError) matrixError() {}

func (e *SingularPivotError) Error() string {
	return fmt.Sprintf("sparse: singular or non-finite pivot at row %d (value=%v)", e.Row, e.Value)
}

// RefinementError is raised when iterative refinement fails to bring the
// backward error under the convergence threshold within the allotted
// iterations.
type RefinementError struct {
	Iterations    int
	BackwardError float64
}

func (e *RefinementError) matrixError() {}

func (e *RefinementError) Error() string {
	return fmt.Sprintf("sparse: iterative refinement did not converge after %d iterations (backward error=%g)",
		e.Iterations, e.BackwardError)
}
