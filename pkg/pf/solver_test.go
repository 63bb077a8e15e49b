package pf_test

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-gridflow/pkg/pf"
	"github.com/edp1096/toy-gridflow/pkg/sparse"
)

// symFixture is a small dense YBusSym: row_indptr/col_indices/diag_idx over
// a fully-stored n x n admittance, no fill-in.
type symFixture struct {
	n    int
	y    []complex128 // row-major n x n
	yRef []complex128 // per source
}

func (f symFixture) Size() int  { return f.n }
func (f symFixture) NnzLU() int { return f.n * f.n }
func (f symFixture) Pattern() *sparse.Pattern {
	rowIndptr := make([]int, f.n+1)
	colIndices := make([]int, 0, f.n*f.n)
	diagIdx := make([]int, f.n)
	for r := 0; r < f.n; r++ {
		rowIndptr[r] = len(colIndices)
		for c := 0; c < f.n; c++ {
			if c == r {
				diagIdx[r] = len(colIndices)
			}
			colIndices = append(colIndices, c)
		}
	}
	rowIndptr[f.n] = len(colIndices)
	return sparse.NewPattern(rowIndptr, colIndices, diagIdx)
}
func (f symFixture) MapLUYBus() []int {
	m := make([]int, f.n*f.n)
	for i := range m {
		m[i] = i
	}
	return m
}
func (f symFixture) Admittance() []complex128          { return f.y }
func (f symFixture) SourceAdmittance(i int) complex128 { return f.yRef[i] }

// TestSingleBusSingleSource checks that a single bus already pinned by a
// stiff source at the reference voltage converges in exactly one iteration
// with zero deviation.
func TestSingleBusSingleSource(t *testing.T) {
	yb := symFixture{n: 1, y: []complex128{0}, yRef: []complex128{1000 - 1000i}}
	solver := pf.NewSymmetricSolver(yb)

	input := &pf.PowerFlowInput{
		Sources: []pf.Source{pf.NewScalarSource(0, 1)},
	}
	u := make([]complex128, 1)
	require.NoError(t, solver.Initialize(input, u))

	res, err := pf.RunSymmetric(solver, input, u, pf.DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 1, res.Iterations)
	require.InDelta(t, 0, res.MaxDeviation, 1e-9)
	require.InDelta(t, 1.0, real(u[0]), 1e-6)
	require.InDelta(t, 0, imag(u[0]), 1e-6)
}

// TestTwoBusPQLoad checks a slack bus behind a stiff source, with one PQ
// load on the far bus: the slack bus stays near the reference while the
// loaded bus sags in magnitude and lags in angle.
func TestTwoBusPQLoad(t *testing.T) {
	yLine := 10 - 30i
	yb := symFixture{
		n:    2,
		y:    []complex128{yLine, -yLine, -yLine, yLine},
		yRef: []complex128{1e6},
	}
	solver := pf.NewSymmetricSolver(yb)

	input := &pf.PowerFlowInput{
		Sources: []pf.Source{pf.NewScalarSource(0, 1)},
		Loads:   []pf.Load{pf.NewScalarLoad(1, pf.ConstPQ, complex(0.5, 0.2))},
	}
	u := make([]complex128, 2)
	require.NoError(t, solver.Initialize(input, u))

	res, err := pf.RunSymmetric(solver, input, u, pf.DefaultConfig())
	require.NoError(t, err)
	require.LessOrEqual(t, res.Iterations, 20)
	require.LessOrEqual(t, res.MaxDeviation, pf.DefaultConfig().Tolerance)

	require.InDelta(t, 1.0, cmplx.Abs(u[0]), 1e-3, "slack bus stays near reference")
	require.Greater(t, cmplx.Abs(u[1]), 0.8)
	require.Less(t, cmplx.Abs(u[1]), 1.0, "loaded bus voltage sags below the slack")
	require.Less(t, cmplx.Phase(u[1]), 0.0, "loaded bus angle lags the slack")
}

// asymFixture replicates symFixture per phase with no inter-phase coupling,
// so the three-phase solve should decouple into three independent replicas
// of the same scalar problem.
type asymFixture struct {
	n    int
	y    []sparse.Block
	yRef []sparse.Block
}

func diag3(v complex128) sparse.Block {
	b := sparse.NewBlock(3)
	for i := 0; i < 3; i++ {
		b.Set(i, i, v)
	}
	return b
}

func (f asymFixture) Size() int  { return f.n }
func (f asymFixture) NnzLU() int { return f.n * f.n }
func (f asymFixture) Pattern() *sparse.Pattern {
	return symFixture{n: f.n}.Pattern()
}
func (f asymFixture) MapLUYBus() []int {
	m := make([]int, f.n*f.n)
	for i := range m {
		m[i] = i
	}
	return m
}
func (f asymFixture) Admittance() []sparse.Block          { return f.y }
func (f asymFixture) SourceAdmittance(i int) sparse.Block { return f.yRef[i] }

func TestThreePhaseBalancedEquivalence(t *testing.T) {
	yLine := 10 - 30i
	yb := asymFixture{
		n:    2,
		y:    []sparse.Block{diag3(yLine), diag3(-yLine), diag3(-yLine), diag3(yLine)},
		yRef: []sparse.Block{diag3(1e6)},
	}
	solver := pf.NewAsymmetricSolver(yb)

	input := &pf.PowerFlowInput{
		Sources: []pf.Source{pf.NewPhaseSource(0, [3]complex128{1, 1, 1})},
		Loads: []pf.Load{pf.NewPhaseLoad(1, pf.ConstPQ, [3]complex128{
			complex(0.5, 0.2), complex(0.5, 0.2), complex(0.5, 0.2),
		})},
	}
	u := make([][3]complex128, 2)
	require.NoError(t, solver.Initialize(input, u))

	res, err := pf.RunAsymmetric(solver, input, u, pf.DefaultConfig())
	require.NoError(t, err)
	require.LessOrEqual(t, res.MaxDeviation, pf.DefaultConfig().Tolerance)

	for p := 1; p < 3; p++ {
		require.InDelta(t, real(u[1][0]), real(u[1][p]), 1e-9, "phase %d real part matches phase 0", p)
		require.InDelta(t, imag(u[1][0]), imag(u[1][p]), 1e-9, "phase %d imag part matches phase 0", p)
	}
}
