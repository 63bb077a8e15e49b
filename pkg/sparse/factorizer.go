package sparse

import (
	"sort"

	"github.com/edp1096/toy-gridflow/internal/consts"
	"k8s.io/klog/v2"
)

// Factorizer performs in-place block-sparse LU factorization with optional
// pivot perturbation, and forward/back substitution with iterative
// refinement when perturbation was used. It is built once over a shared
// Pattern and reused across every outer iteration that re-populates the
// matrix data; see pkg/sparse/pattern.go for the sharing contract.
//
// N is the width of every Block/Vec entry this Factorizer will ever touch
// (1 for a plain scalar, 3 for a three-phase admittance block, 2/6 for a
// Newton-Raphson Jacobian cell).
type Factorizer struct {
	pattern *Pattern
	n       int

	hasPerturbation bool
	matrixNorm      float64
	originalMatrix  []Block

	// refinement scratch, allocated lazily by Solve and dropped once refinement converges
	rhsCache []Vec
	residual []Vec
	dx       []Vec
}

// NewFactorizer builds a factorizer for the given shared pattern and entry
// width. It performs no numerical work.
func NewFactorizer(p *Pattern, n int) *Factorizer {
	return &Factorizer{pattern: p, n: n}
}

// PrefactorizeAndSolve factorizes data in place and then solves for x.
func (f *Factorizer) PrefactorizeAndSolve(data []Block, perm []BlockPerm, rhs, x []Vec, usePerturbation bool) error {
	if err := f.Prefactorize(data, perm, usePerturbation); err != nil {
		return err
	}
	return f.Solve(data, perm, rhs, x)
}

// Perturbed reports whether the most recent Prefactorize call had to
// rescale a pivot, which is also what determines whether Solve performs
// iterative refinement.
func (f *Factorizer) Perturbed() bool { return f.hasPerturbation }

// Solve applies forward/backward substitution against the most recent
// factorization, refining iteratively if that factorization perturbed a
// pivot.
func (f *Factorizer) Solve(data []Block, perm []BlockPerm, rhs, x []Vec) error {
	if f.hasPerturbation {
		return f.solveWithRefinement(data, perm, rhs, x)
	}
	f.solveOnce(data, perm, rhs, x)
	return nil
}

// Prefactorize factorizes A into L*U in place over data. Unit diagonal of L
// is implicit; U's diagonal lives at pattern.DiagIdx. Fill-ins must already
// be present (zeroed) in data per the shared pattern.
func (f *Factorizer) Prefactorize(data []Block, perm []BlockPerm, usePerturbation bool) error {
	f.resetMatrixCache()
	if usePerturbation {
		f.initializePerturbation(data)
	}
	perturbThreshold := consts.EpsilonPerturbation * f.matrixNorm

	rowIndptr := f.pattern.RowIndptr
	colIndices := f.pattern.ColIndices
	diagIdx := f.pattern.DiagIdx
	size := f.pattern.Size()
	n := f.n

	colPositionIdx := make([]int, size)
	copy(colPositionIdx, rowIndptr[:size])

	for pivotRowCol := 0; pivotRowCol < size; pivotRowCol++ {
		pivotIdx := diagIdx[pivotRowCol]

		bp, perturbed, err := factorizeBlockInPlace(data[pivotIdx], perturbThreshold, usePerturbation)
		if err != nil {
			return err
		}
		if perturbed {
			f.hasPerturbation = true
		}
		perm[pivotRowCol] = bp
		pivot := data[pivotIdx]

		// catch up already-placed L's to the left and U's above with this
		// pivot's permutation, exploiting the symmetric nonzero pattern.
		for lIdx := rowIndptr[pivotRowCol]; lIdx < pivotIdx; lIdx++ {
			data[lIdx] = data[lIdx].PermuteRows(bp.P)
			uRow := colIndices[lIdx]
			uIdx := colPositionIdx[uRow]
			data[uIdx] = data[uIdx].PermuteCols(bp.Q)
			colPositionIdx[uRow]++
		}

		// normalize U blocks to the right of the pivot: permute rows, then
		// forward-substitute against the pivot's lower-triangular part.
		for uIdx := pivotIdx + 1; uIdx < rowIndptr[pivotRowCol+1]; uIdx++ {
			data[uIdx] = data[uIdx].PermuteRows(bp.P)
			u := data[uIdx]
			for br := 0; br < n; br++ {
				for bc := 0; bc < br; bc++ {
					coeff := pivot.At(br, bc)
					if coeff == 0 {
						continue
					}
					for col := 0; col < n; col++ {
						u.V[br*n+col] -= coeff * u.V[bc*n+col]
					}
				}
			}
		}

		// normalize L blocks below the pivot and apply the Schur update.
		for lRefIdx := pivotIdx + 1; lRefIdx < rowIndptr[pivotRowCol+1]; lRefIdx++ {
			lRow := colIndices[lRefIdx]
			lIdx := colPositionIdx[lRow]

			data[lIdx] = data[lIdx].PermuteCols(bp.Q)
			l := data[lIdx]
			for bc := 0; bc < n; bc++ {
				for br := 0; br < bc; br++ {
					coeff := pivot.At(br, bc)
					if coeff == 0 {
						continue
					}
					for row := 0; row < n; row++ {
						l.V[row*n+bc] -= coeff * l.V[row*n+br]
					}
				}
				d := pivot.At(bc, bc)
				for row := 0; row < n; row++ {
					l.V[row*n+bc] /= d
				}
			}

			aIdx := lIdx
			rowEnd := rowIndptr[lRow+1]
			for uIdx := pivotIdx + 1; uIdx < rowIndptr[pivotRowCol+1]; uIdx++ {
				uCol := colIndices[uIdx]
				aIdx += lowerBound(colIndices[aIdx:rowEnd], uCol)
				data[aIdx].SubInPlace(l.MatMul(data[uIdx]))
			}
			colPositionIdx[lRow]++
		}
		colPositionIdx[pivotRowCol]++
	}

	if !f.hasPerturbation {
		f.resetMatrixCache()
	}
	if klog.V(2).Enabled() {
		klog.V(2).Infof("sparse: prefactorize done, n=%d size=%d nnz=%d perturbation=%v",
			f.n, size, f.pattern.NNZ(), f.hasPerturbation)
	}
	return nil
}

// lowerBound returns the index of the first element >= x in the sorted
// slice s, mirroring std::lower_bound; the caller guarantees x is present.
func lowerBound(s []int, x int) int {
	return sort.Search(len(s), func(i int) bool { return s[i] >= x })
}

func (f *Factorizer) solveOnce(data []Block, perm []BlockPerm, rhs, x []Vec) {
	rowIndptr := f.pattern.RowIndptr
	colIndices := f.pattern.ColIndices
	diagIdx := f.pattern.DiagIdx
	size := f.pattern.Size()
	n := f.n

	for row := 0; row < size; row++ {
		x[row] = rhs[row].Permute(perm[row].P)
		for idx := rowIndptr[row]; idx < diagIdx[row]; idx++ {
			col := colIndices[idx]
			x[row] = x[row].Sub(data[idx].Dot(x[col]))
		}
		pivot := data[diagIdx[row]]
		for br := 0; br < n; br++ {
			for bc := 0; bc < br; bc++ {
				x[row].V[br] -= pivot.At(br, bc) * x[row].V[bc]
			}
		}
	}

	for row := size - 1; row >= 0; row-- {
		for idx := rowIndptr[row+1] - 1; idx > diagIdx[row]; idx-- {
			col := colIndices[idx]
			x[row] = x[row].Sub(data[idx].Dot(x[col]))
		}
		pivot := data[diagIdx[row]]
		for br := n - 1; br >= 0; br-- {
			for bc := n - 1; bc > br; bc-- {
				x[row].V[br] -= pivot.At(br, bc) * x[row].V[bc]
			}
			x[row].V[br] /= pivot.At(br, br)
		}
	}

	// x = Q*y: entry i of the pivoted solution belongs at position Q[i].
	for row := 0; row < size; row++ {
		y := x[row]
		x[row] = NewVec(n)
		for i, qi := range perm[row].Q {
			x[row].V[qi] = y.V[i]
		}
	}
}

func (f *Factorizer) solveWithRefinement(data []Block, perm []BlockPerm, rhs, x []Vec) error {
	f.initializeRefinement(rhs, x)
	backwardError := 1.0
	numIter := 0
	for backwardError > consts.EpsilonPerturbation {
		if numIter == consts.MaxIterativeRefinement+1 {
			return &RefinementError{Iterations: numIter, BackwardError: backwardError}
		}
		numIter++
		f.solveOnce(data, perm, f.residual, f.dx)
		backwardError = f.iterateAndBackwardError(x)
		f.calculateResidual(data, x)
	}
	if klog.V(2).Enabled() {
		klog.V(2).Infof("sparse: refinement converged in %d iterations, backward error=%g", numIter, backwardError)
	}
	f.resetRefinementCache()
	return nil
}

func (f *Factorizer) initializeRefinement(rhs []Vec, x []Vec) {
	size := f.pattern.Size()
	f.rhsCache = make([]Vec, size)
	f.residual = make([]Vec, size)
	f.dx = make([]Vec, size)
	for i := 0; i < size; i++ {
		f.rhsCache[i] = rhs[i].Clone()
		f.residual[i] = rhs[i].Clone()
		f.dx[i] = NewVec(f.n)
		x[i] = NewVec(f.n)
	}
}

func (f *Factorizer) resetRefinementCache() {
	f.rhsCache, f.residual, f.dx = nil, nil, nil
}

func (f *Factorizer) calculateResidual(data []Block, x []Vec) {
	rowIndptr := f.pattern.RowIndptr
	colIndices := f.pattern.ColIndices
	original := f.originalMatrix
	size := f.pattern.Size()

	for row := 0; row < size; row++ {
		r := f.rhsCache[row].Clone()
		for idx := rowIndptr[row]; idx < rowIndptr[row+1]; idx++ {
			r = r.Sub(original[idx].Dot(x[colIndices[idx]]))
		}
		f.residual[row] = r
	}
}

func (f *Factorizer) iterateAndBackwardError(x []Vec) float64 {
	rowIndptr := f.pattern.RowIndptr
	colIndices := f.pattern.ColIndices
	original := f.originalMatrix
	size := f.pattern.Size()

	denominators := make([]RealVec, size)
	maxDenominator := 0.0
	for row := 0; row < size; row++ {
		denom := f.rhsCache[row].CAbs()
		for idx := rowIndptr[row]; idx < rowIndptr[row+1]; idx++ {
			denom = denom.Add(original[idx].CAbs().DotAbs(x[colIndices[idx]].CAbs()))
		}
		denominators[row] = denom
		maxDenominator = max(maxDenominator, denom.Max())
	}
	minDenominator := consts.CapBackErrorDenominator * maxDenominator

	maxBerr := 0.0
	for row := 0; row < size; row++ {
		numerator := f.residual[row].CAbs()
		denom := denominators[row].CapBelow(minDenominator)
		for i := range numerator.V {
			berr := numerator.V[i] / denom.V[i]
			maxBerr = max(maxBerr, berr)
		}
		x[row] = x[row].Add(f.dx[row])
	}
	return maxBerr
}

func (f *Factorizer) initializePerturbation(data []Block) {
	f.originalMatrix = make([]Block, len(data))
	for i, b := range data {
		f.originalMatrix[i] = b.Clone()
	}

	rowIndptr := f.pattern.RowIndptr
	colIndices := f.pattern.ColIndices
	size := f.pattern.Size()

	norm := 0.0
	for row := 0; row < size; row++ {
		rowNorm := 0.0
		for idx := rowIndptr[row]; idx < rowIndptr[row+1]; idx++ {
			if colIndices[idx] == row {
				continue
			}
			rowNorm += maxRowAbs(data[idx])
		}
		norm = max(norm, rowNorm)
	}
	f.matrixNorm = norm
}

// maxRowAbs returns the largest per-row sum of the elementwise magnitudes
// of b, the infinity norm of the block.
func maxRowAbs(b Block) float64 {
	best := 0.0
	for i := 0; i < b.N; i++ {
		s := 0.0
		for j := 0; j < b.N; j++ {
			s += cabs(b.At(i, j))
		}
		best = max(best, s)
	}
	return best
}

func (f *Factorizer) resetMatrixCache() {
	f.hasPerturbation = false
	f.matrixNorm = 0
	f.originalMatrix = nil
}
