package pf

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/edp1096/toy-gridflow/pkg/sparse"
)

// fakeYBus is a minimal single-bus yBus fixture for white-box core tests;
// it carries no branches, so tests can isolate a single load/source
// contribution.
type fakeYBus struct {
	size int
	bw   int
}

func (f fakeYBus) Size() int  { return f.size }
func (f fakeYBus) NnzLU() int { return f.size }
func (f fakeYBus) Pattern() *sparse.Pattern {
	rowIndptr := make([]int, f.size+1)
	colIndices := make([]int, f.size)
	diagIdx := make([]int, f.size)
	for i := 0; i < f.size; i++ {
		rowIndptr[i] = i
		colIndices[i] = i
		diagIdx[i] = i
	}
	rowIndptr[f.size] = f.size
	return sparse.NewPattern(rowIndptr, colIndices, diagIdx)
}
func (f fakeYBus) MapLUYBus() []int {
	m := make([]int, f.size)
	for i := range m {
		m[i] = i
	}
	return m
}
func (f fakeYBus) AdmittanceAt(pos int) sparse.Block             { return sparse.NewBlock(f.bw) }
func (f fakeYBus) SourceAdmittanceAt(sourceIdx int) sparse.Block { return sparse.NewBlock(f.bw) }

// TestConstZMismatchScaling checks that a constant-impedance load at V=0.95
// contributes P*V^2 to the mismatch and -2*P*V^2 to the Jacobian's N
// diagonal.
func TestConstZMismatchScaling(t *testing.T) {
	c := newCore(fakeYBus{size: 1, bw: 1}, 1)
	c.vmag[0].V[0] = 0.95

	ld := NewScalarLoad(0, ConstZ, complex(1, 0))
	require.NoError(t, c.addLoad(ld))

	require.InDelta(t, 0.9025, real(c.dpq[0].V[0]), 1e-9)
	require.InDelta(t, 0, real(c.dpq[0].V[1]), 1e-9)

	diagPos := c.yb.Pattern().DiagIdx[0]
	nDiag := real(c.jacData[diagPos].At(0, 1))
	require.InDelta(t, -2*0.9025, nDiag, 1e-9)
}

// TestMixedLoadTypes checks one PQ, one constant-Z, and one constant-I load
// of 0.1+0.05j each at V=1.0, summed without renormalization.
func TestMixedLoadTypes(t *testing.T) {
	c := newCore(fakeYBus{size: 1, bw: 1}, 1)
	c.vmag[0].V[0] = 1.0

	s := complex(0.1, 0.05)
	require.NoError(t, c.addLoad(NewScalarLoad(0, ConstPQ, s)))
	require.NoError(t, c.addLoad(NewScalarLoad(0, ConstI, s)))
	require.NoError(t, c.addLoad(NewScalarLoad(0, ConstZ, s)))

	require.InDelta(t, 0.3, real(c.dpq[0].V[0]), 1e-9)
	require.InDelta(t, 0.15, real(c.dpq[0].V[1]), 1e-9)

	diagPos := c.yb.Pattern().DiagIdx[0]
	nDiag := real(c.jacData[diagPos].At(0, 1))
	require.InDelta(t, -0.3, nDiag, 1e-9)
}

// TestMissingCaseForEnum confirms an unrecognized LoadGenType fails with
// MissingCaseError rather than silently doing nothing.
func TestMissingCaseForEnum(t *testing.T) {
	c := newCore(fakeYBus{size: 1, bw: 1}, 1)
	ld := Load{Bus: 0, Type: LoadGenType(99), S: sparse.Vec{N: 1, V: []complex128{1}}}
	err := c.addLoad(ld)
	require.Error(t, err)
	var mce *MissingCaseError
	require.ErrorAs(t, err, &mce)
}

// TestIterateUnknownNoOpAtSolution checks that once the Jacobian solve
// yields a zero increment (the fixed point is already satisfied),
// iterateUnknown reports zero deviation and leaves U untouched.
func TestIterateUnknownNoOpAtSolution(t *testing.T) {
	c := newCore(fakeYBus{size: 1, bw: 1}, 1)
	c.theta[0].V[0] = 0.1
	c.vmag[0].V[0] = 0.98
	c.dpq[0] = sparse.NewVec(2)

	u := []sparse.Vec{{N: 1, V: []complex128{
		complex(c.vmag[0].V[0], 0) * cmplx.Exp(complex(0, c.theta[0].V[0])),
	}}}
	uBefore := u[0].V[0]

	maxDev := c.iterateUnknown(u)

	require.Equal(t, 0.0, maxDev)
	require.Equal(t, uBefore, u[0].V[0])
}

// TestJacobianSolveMatchesGonum cross-checks the BSLU Jacobian solve against
// gonum's dense real solver. H/N/M/L are real-valued in practice (stored as
// complex128 with a zero imaginary part so the same Factorizer serves both
// the admittance and Jacobian solves), so the single-bus 2x2 Jacobian system
// here is an ordinary real linear system a dense solver can verify
// independently of BSLU's block-sparse machinery.
func TestJacobianSolveMatchesGonum(t *testing.T) {
	c := newCore(fakeYBus{size: 1, bw: 1}, 1)

	j := []float64{4, 1, 1, 3}
	rhs := []float64{5, 6}

	c.jacData[0] = sparse.Block{N: 2, V: []complex128{
		complex(j[0], 0), complex(j[1], 0),
		complex(j[2], 0), complex(j[3], 0),
	}}
	c.dpq[0] = sparse.Vec{N: 2, V: []complex128{complex(rhs[0], 0), complex(rhs[1], 0)}}

	_, err := c.solveMatrix(false)
	require.NoError(t, err)

	a := mat.NewDense(2, 2, j)
	b := mat.NewVecDense(2, rhs)
	var x mat.VecDense
	require.NoError(t, x.SolveVec(a, b))

	require.InDelta(t, x.AtVec(0), real(c.dpq[0].V[0]), 1e-9)
	require.InDelta(t, x.AtVec(1), real(c.dpq[0].V[1]), 1e-9)
}
