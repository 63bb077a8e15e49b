package pf

import (
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-gridflow/pkg/sparse"
	"github.com/edp1096/toy-gridflow/pkg/util"
	"k8s.io/klog/v2"
)

const pi = math.Pi

// core is the width-erased Newton-Raphson engine shared by SymmetricSolver
// (bw=1) and AsymmetricSolver (bw=3). Both variants talk to it through the
// yBus adapter and plain sparse.Vec/Block values so the NR algorithm itself
// is written once.
type core struct {
	yb yBus
	bw int // admittance entry width
	jw int // jacobian entry width, 2*bw

	jacFz *sparse.Factorizer
	linFz *sparse.Factorizer

	jacData []sparse.Block
	perm    []sparse.BlockPerm
	dpq     []sparse.Vec

	linData []sparse.Block
	linPerm []sparse.BlockPerm

	theta []sparse.RealVec
	vmag  []sparse.RealVec
}

func newCore(yb yBus, bw int) *core {
	size := yb.Size()
	nnz := yb.NnzLU()
	jw := 2 * bw

	c := &core{
		yb:      yb,
		bw:      bw,
		jw:      jw,
		jacFz:   sparse.NewFactorizer(yb.Pattern(), jw),
		linFz:   sparse.NewFactorizer(yb.Pattern(), bw),
		jacData: make([]sparse.Block, nnz),
		perm:    make([]sparse.BlockPerm, size),
		dpq:     make([]sparse.Vec, size),
		linData: make([]sparse.Block, nnz),
		linPerm: make([]sparse.BlockPerm, size),
		theta:   make([]sparse.RealVec, size),
		vmag:    make([]sparse.RealVec, size),
	}
	for i := range c.jacData {
		c.jacData[i] = sparse.NewBlock(jw)
		c.linData[i] = sparse.NewBlock(bw)
	}
	for i := range c.dpq {
		c.dpq[i] = sparse.NewVec(jw)
		c.theta[i] = sparse.RealVec{N: bw, V: make([]float64, bw)}
		c.vmag[i] = sparse.RealVec{N: bw, V: make([]float64, bw)}
	}
	return c
}

// initialize seeds u by solving the flat-start linear system: the
// admittance matrix with every load replaced by its constant-current
// equivalent around a unit reference voltage, and every source stamped as
// a Norton injection (Y_ref, Y_ref*U_ref).
func (c *core) initialize(input *PowerFlowInput, u []sparse.Vec) error {
	mapLUYBus := c.yb.MapLUYBus()
	rhs := make([]sparse.Vec, len(u))
	for i := range c.linData {
		if mapLUYBus[i] == -1 {
			zeroBlock(c.linData[i])
			continue
		}
		copyBlockInto(c.linData[i], c.yb.AdmittanceAt(mapLUYBus[i]))
	}
	for i := range rhs {
		rhs[i] = sparse.NewVec(c.bw)
	}

	diagIdx := c.yb.Pattern().DiagIdx
	for idx, src := range input.Sources {
		yRef := c.yb.SourceAdmittanceAt(idx)
		c.linData[diagIdx[src.Bus]].AddInPlace(yRef)
		rhs[src.Bus] = rhs[src.Bus].Add(yRef.Dot(src.URef))
	}
	for _, ld := range input.Loads {
		// constant-current approximation around U_flat = 1+0j per phase:
		// S is injected power, so the injected current is
		// conj(S)/conj(U_flat) = conj(S).
		rhs[ld.Bus] = rhs[ld.Bus].Add(conjVec(ld.S))
	}

	if err := c.linFz.PrefactorizeAndSolve(c.linData, c.linPerm, rhs, u, false); err != nil {
		return err
	}
	for i := range u {
		for p := 0; p < c.bw; p++ {
			c.vmag[i].V[p] = cmplx.Abs(u[i].V[p])
			c.theta[i].V[p] = cmplx.Phase(u[i].V[p])
		}
	}
	return nil
}

// prepare assembles jacData and dpq for the current voltage estimate u.
func (c *core) prepare(input *PowerFlowInput, u []sparse.Vec) error {
	pattern := c.yb.Pattern()
	rowIndptr, colIndices, diagIdx := pattern.RowIndptr, pattern.ColIndices, pattern.DiagIdx
	mapLUYBus := c.yb.MapLUYBus()
	bw := c.bw

	for idx := range c.jacData {
		zeroBlock(c.jacData[idx])
	}
	for i := range c.dpq {
		zeroVec(c.dpq[i])
	}

	for i := 0; i < c.yb.Size(); i++ {
		pcal := sparse.NewVec(bw)
		qcal := sparse.NewVec(bw)

		for idx := rowIndptr[i]; idx < rowIndptr[i+1]; idx++ {
			pos := mapLUYBus[idx]
			if pos == -1 {
				continue
			}
			j := colIndices[idx]
			y := c.yb.AdmittanceAt(pos)
			hb := hnml(y, u[i], u[j])
			setQuad(c.jacData[idx], bw, 0, 0, hb.H)
			setQuad(c.jacData[idx], bw, 0, 1, hb.N)
			setQuad(c.jacData[idx], bw, 1, 0, hb.M)
			setQuad(c.jacData[idx], bw, 1, 1, hb.L)
			pcal = pcal.Add(hb.N.RowSum())
			qcal = qcal.Add(hb.H.RowSum())
		}

		pcalR, qcalR := realPartVec(pcal), realPartVec(qcal)
		diagPos := diagIdx[i]
		addQuadDiag(c.jacData[diagPos], bw, 0, 0, negateRealVec(qcalR))
		addQuadDiag(c.jacData[diagPos], bw, 0, 1, pcalR)
		addQuadDiag(c.jacData[diagPos], bw, 1, 0, pcalR)
		addQuadDiag(c.jacData[diagPos], bw, 1, 1, qcalR)

		for p := 0; p < bw; p++ {
			c.dpq[i].V[p] = complex(-pcalR.V[p], 0)
			c.dpq[i].V[bw+p] = complex(-qcalR.V[p], 0)
		}
	}

	for _, ld := range input.Loads {
		if err := c.addLoad(ld); err != nil {
			return err
		}
	}
	for idx, src := range input.Sources {
		c.addSource(src, c.yb.SourceAdmittanceAt(idx), u)
	}
	return nil
}

func (c *core) addLoad(ld Load) error {
	bw := c.bw
	i := ld.Bus
	p, q := realPartVec(ld.S), imagPartVec(ld.S)
	v := c.vmag[i]
	diagPos := c.yb.Pattern().DiagIdx[i]

	switch ld.Type {
	case ConstPQ:
		for k := 0; k < bw; k++ {
			c.dpq[i].V[k] += complex(p.V[k], 0)
			c.dpq[i].V[bw+k] += complex(q.V[k], 0)
		}
	case ConstI:
		for k := 0; k < bw; k++ {
			c.dpq[i].V[k] += complex(p.V[k]*v.V[k], 0)
			c.dpq[i].V[bw+k] += complex(q.V[k]*v.V[k], 0)
		}
		addQuadDiagScalar(c.jacData[diagPos], bw, 0, 1, p, v, -1)
		addQuadDiagScalar(c.jacData[diagPos], bw, 1, 1, q, v, -1)
	case ConstZ:
		for k := 0; k < bw; k++ {
			v2 := v.V[k] * v.V[k]
			c.dpq[i].V[k] += complex(p.V[k]*v2, 0)
			c.dpq[i].V[bw+k] += complex(q.V[k]*v2, 0)
		}
		addQuadDiagScalar(c.jacData[diagPos], bw, 0, 1, p, sparse.RealVec{N: bw, V: squared(v)}, -2)
		addQuadDiagScalar(c.jacData[diagPos], bw, 1, 1, q, sparse.RealVec{N: bw, V: squared(v)}, -2)
	default:
		return &MissingCaseError{Bus: i, Type: ld.Type}
	}
	return nil
}

func (c *core) addSource(src Source, yRef sparse.Block, u []sparse.Vec) {
	i := src.Bus
	bw := c.bw
	diagPos := c.yb.Pattern().DiagIdx[i]

	mm := hnml(yRef, u[i], u[i])
	ms := hnml(negateBlock(yRef), u[i], src.URef)

	pcal := realPartVec(mm.N.RowSum().Add(ms.N.RowSum()))
	qcal := realPartVec(mm.H.RowSum().Add(ms.H.RowSum()))

	mm.H.AddDiag(negateVec(toComplexVec(qcal)))
	mm.N.AddDiag(toComplexVec(pcal))
	mm.M.AddDiag(toComplexVec(pcal))
	mm.L.AddDiag(toComplexVec(qcal))

	for k := 0; k < bw; k++ {
		c.dpq[i].V[k] -= complex(pcal.V[k], 0)
		c.dpq[i].V[bw+k] -= complex(qcal.V[k], 0)
	}

	addQuad(c.jacData[diagPos], bw, 0, 0, mm.H)
	addQuad(c.jacData[diagPos], bw, 0, 1, mm.N)
	addQuad(c.jacData[diagPos], bw, 1, 0, mm.M)
	addQuad(c.jacData[diagPos], bw, 1, 1, mm.L)
}

// solveMatrix factorizes jacData and overwrites dpq in place with the
// increment.
func (c *core) solveMatrix(usePerturbation bool) (bool, error) {
	if err := c.jacFz.Prefactorize(c.jacData, c.perm, usePerturbation); err != nil {
		return false, err
	}
	if err := c.jacFz.Solve(c.jacData, c.perm, c.dpq, c.dpq); err != nil {
		return c.jacFz.Perturbed(), err
	}
	return c.jacFz.Perturbed(), nil
}

// iterateUnknown applies the increment held in dpq to (theta, V), recomputes
// u in place, and returns the max deviation across buses and phases.
func (c *core) iterateUnknown(u []sparse.Vec) float64 {
	maxDev := 0.0
	bw := c.bw
	for i := 0; i < c.yb.Size(); i++ {
		for p := 0; p < bw; p++ {
			dtheta := real(c.dpq[i].V[p])
			dvrel := real(c.dpq[i].V[bw+p])

			c.theta[i].V[p] += dtheta
			c.vmag[i].V[p] += c.vmag[i].V[p] * dvrel

			uOld := u[i].V[p]
			uNew := complex(c.vmag[i].V[p], 0) * cmplx.Exp(complex(0, c.theta[i].V[p]))
			u[i].V[p] = uNew
			if dev := cmplx.Abs(uNew - uOld); dev > maxDev {
				maxDev = dev
			}
		}
	}
	return maxDev
}

// run drives the fixed-point loop: prepare -> solveMatrix -> iterateUnknown
// until maxDev <= tol or the iteration cap is reached.
func (c *core) run(input *PowerFlowInput, u []sparse.Vec, cfg Config) (Result, error) {
	perturbed := false
	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		if err := c.prepare(input, u); err != nil {
			return Result{}, err
		}
		p, err := c.solveMatrix(cfg.UsePivotPerturbation)
		if err != nil {
			return Result{}, err
		}
		perturbed = perturbed || p
		maxDev := c.iterateUnknown(u)
		if klog.V(3).Enabled() {
			klog.V(3).Infof("pf: iteration %d max deviation %s", iter, util.FormatMagnitude(maxDev))
		}
		if maxDev <= cfg.Tolerance {
			if klog.V(2).Enabled() {
				for i := range u {
					for p := 0; p < c.bw; p++ {
						klog.V(2).Infof("pf: bus %d phase %d %s", i, p,
							util.FormatMagnitudePhase("U", c.vmag[i].V[p], c.theta[i].V[p]*180/pi))
					}
				}
			}
			return Result{Iterations: iter, MaxDeviation: maxDev, Perturbed: perturbed}, nil
		}
		if iter == cfg.MaxIterations {
			return Result{Iterations: iter, MaxDeviation: maxDev, Perturbed: perturbed},
				&DivergeError{Iterations: iter, MaxDeviation: maxDev, Tolerance: cfg.Tolerance}
		}
	}
	return Result{}, &DivergeError{Iterations: cfg.MaxIterations, Tolerance: cfg.Tolerance}
}

func zeroBlock(b sparse.Block) {
	for i := range b.V {
		b.V[i] = 0
	}
}

func zeroVec(v sparse.Vec) {
	for i := range v.V {
		v.V[i] = 0
	}
}

func copyBlockInto(dst, src sparse.Block) {
	copy(dst.V, src.V)
}

func negateRealVec(v sparse.RealVec) sparse.RealVec {
	out := sparse.RealVec{N: v.N, V: make([]float64, v.N)}
	for i, x := range v.V {
		out.V[i] = -x
	}
	return out
}

func negateVec(v sparse.Vec) sparse.Vec {
	out := sparse.NewVec(v.N)
	for i, c := range v.V {
		out.V[i] = -c
	}
	return out
}

func toComplexVec(v sparse.RealVec) sparse.Vec {
	out := sparse.NewVec(v.N)
	for i, x := range v.V {
		out.V[i] = complex(x, 0)
	}
	return out
}

func squared(v sparse.RealVec) []float64 {
	out := make([]float64, v.N)
	for i, x := range v.V {
		out[i] = x * x
	}
	return out
}

// addQuadDiagScalar adds sign * p[k]*scale[k] to the diagonal of quadrant
// (qi, qj), per phase k.
func addQuadDiagScalar(b sparse.Block, bw, qi, qj int, p, scale sparse.RealVec, sign float64) {
	jw := 2 * bw
	for k := 0; k < bw; k++ {
		b.V[(qi*bw+k)*jw+qj*bw+k] += complex(sign*p.V[k]*scale.V[k], 0)
	}
}
