package sparse

import (
	"math"

	"github.com/edp1096/toy-gridflow/internal/consts"
)

// perturbPivotIfNeeded rescales value to perturbThreshold, preserving its
// phase, when its magnitude falls below the threshold. It reports the
// (possibly unchanged) value, its magnitude, and whether a perturbation
// happened.
func perturbPivotIfNeeded(perturbThreshold float64, value complex128, absValue float64) (complex128, float64, bool) {
	if absValue >= perturbThreshold {
		return value, absValue, false
	}
	scale := complex(1, 0)
	if absValue != 0 {
		scale = value / complex(absValue, 0)
	}
	return scale * complex(perturbThreshold, 0), perturbThreshold, true
}

// factorizeBlockInPlace runs full-pivoting dense LU, derived from Eigen's
// FullPivLU (see pkg/sparse/entry.go for the entry representation), on the
// n x n block m, in place. It records the accumulated row/column
// permutations and reports whether pivot perturbation was used.
//
// n=1 degenerates to a single scalar pivot with no row/column search.
func factorizeBlockInPlace(m Block, perturbThreshold float64, usePerturbation bool) (BlockPerm, bool, error) {
	n := m.N
	rowTrans := make([]int, n)
	colTrans := make([]int, n)
	maxPivot := 0.0
	hasPerturbation := false

	for pivot := 0; pivot < n; pivot++ {
		rowBiggest, colBiggest := pivot, pivot
		best := -1.0
		for i := pivot; i < n; i++ {
			for j := pivot; j < n; j++ {
				v := m.At(i, j)
				score := real(v)*real(v) + imag(v)*imag(v)
				if score > best {
					best = score
					rowBiggest, colBiggest = i, j
				}
			}
		}

		if best == 0 && !usePerturbation {
			for k := pivot; k < n; k++ {
				rowTrans[k], colTrans[k] = k, k
			}
			break
		}

		absPivot := math.Sqrt(best)
		val, absPivot, perturbed := perturbPivotIfNeeded(perturbThreshold, m.At(rowBiggest, colBiggest), absPivot)
		if perturbed {
			hasPerturbation = true
		}
		m.Set(rowBiggest, colBiggest, val)
		maxPivot = math.Max(maxPivot, absPivot)

		rowTrans[pivot], colTrans[pivot] = rowBiggest, colBiggest
		if pivot != rowBiggest {
			swapRow(m, pivot, rowBiggest)
		}
		if pivot != colBiggest {
			swapCol(m, pivot, colBiggest)
		}

		if pivot < n-1 {
			piv := m.At(pivot, pivot)
			for r := pivot + 1; r < n; r++ {
				m.Set(r, pivot, m.At(r, pivot)/piv)
			}
			for r := pivot + 1; r < n; r++ {
				lrp := m.At(r, pivot)
				if lrp == 0 {
					continue
				}
				for c := pivot + 1; c < n; c++ {
					m.Set(r, c, m.At(r, c)-lrp*m.At(pivot, c))
				}
			}
		}
	}

	p := newIdentityPerm(n)
	for k := 0; k < n; k++ {
		p[k], p[rowTrans[k]] = p[rowTrans[k]], p[k]
	}
	q := newIdentityPerm(n)
	for k := 0; k < n; k++ {
		q[k], q[colTrans[k]] = q[colTrans[k]], q[k]
	}

	pivotThreshold := 0.0
	if !hasPerturbation {
		pivotThreshold = consts.Epsilon * maxPivot
	}
	for i := 0; i < n; i++ {
		d := m.At(i, i)
		if cabs(d) < pivotThreshold || !isNormal(d) {
			return BlockPerm{}, hasPerturbation, &SingularPivotError{Row: i, Value: d}
		}
	}

	return BlockPerm{P: p, Q: q}, hasPerturbation, nil
}

func swapRow(m Block, a, b int) {
	n := m.N
	for j := 0; j < n; j++ {
		m.V[a*n+j], m.V[b*n+j] = m.V[b*n+j], m.V[a*n+j]
	}
}

func swapCol(m Block, a, b int) {
	n := m.N
	for i := 0; i < n; i++ {
		m.V[i*n+a], m.V[i*n+b] = m.V[i*n+b], m.V[i*n+a]
	}
}
