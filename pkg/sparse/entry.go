package sparse

import "math"

// Block is a dense N x N tensor entry, stored row-major. N is 1 for a plain
// complex scalar, 3 for a three-phase admittance block, or 2 / 6 for a
// Newton-Raphson Jacobian cell (see pkg/pf). Every Block a Factorizer
// touches must share the same N; that width is fixed at construction time
// and never checked per-call, matching the pattern's own immutability.
type Block struct {
	N int
	V []complex128
}

// NewBlock allocates a zeroed n x n entry.
func NewBlock(n int) Block { return Block{N: n, V: make([]complex128, n*n)} }

// At returns the (i,j) element.
func (b Block) At(i, j int) complex128 { return b.V[i*b.N+j] }

// Set assigns the (i,j) element.
func (b Block) Set(i, j int, v complex128) { b.V[i*b.N+j] = v }

// Clone returns an independent copy.
func (b Block) Clone() Block {
	out := NewBlock(b.N)
	copy(out.V, b.V)
	return out
}

// Add returns the elementwise sum.
func (b Block) Add(c Block) Block {
	out := NewBlock(b.N)
	for i := range b.V {
		out.V[i] = b.V[i] + c.V[i]
	}
	return out
}

// Sub returns the elementwise difference b - c.
func (b Block) Sub(c Block) Block {
	out := NewBlock(b.N)
	for i := range b.V {
		out.V[i] = b.V[i] - c.V[i]
	}
	return out
}

// AddInPlace accumulates c into b.
func (b Block) AddInPlace(c Block) {
	for i := range b.V {
		b.V[i] += c.V[i]
	}
}

// SubInPlace subtracts c from b in place.
func (b Block) SubInPlace(c Block) {
	for i := range b.V {
		b.V[i] -= c.V[i]
	}
}

// Dot computes the matrix-vector product b * v.
func (b Block) Dot(v Vec) Vec {
	out := NewVec(b.N)
	for i := 0; i < b.N; i++ {
		var s complex128
		for j := 0; j < b.N; j++ {
			s += b.At(i, j) * v.V[j]
		}
		out.V[i] = s
	}
	return out
}

// MatMul computes the matrix-matrix product b * c.
func (b Block) MatMul(c Block) Block {
	out := NewBlock(b.N)
	for i := 0; i < b.N; i++ {
		for k := 0; k < b.N; k++ {
			bik := b.At(i, k)
			if bik == 0 {
				continue
			}
			for j := 0; j < b.N; j++ {
				out.V[i*b.N+j] += bik * c.At(k, j)
			}
		}
	}
	return out
}

// PermuteRows returns a copy with row i taken from the original row p[i].
func (b Block) PermuteRows(p []int) Block {
	out := NewBlock(b.N)
	for i := 0; i < b.N; i++ {
		copy(out.V[i*b.N:(i+1)*b.N], b.V[p[i]*b.N:(p[i]+1)*b.N])
	}
	return out
}

// PermuteCols returns a copy with column j taken from the original column p[j].
func (b Block) PermuteCols(p []int) Block {
	out := NewBlock(b.N)
	for i := 0; i < b.N; i++ {
		for j := 0; j < b.N; j++ {
			out.Set(i, j, b.At(i, p[j]))
		}
	}
	return out
}

// CAbs returns the elementwise complex magnitude.
func (b Block) CAbs() RealBlock {
	out := RealBlock{N: b.N, V: make([]float64, len(b.V))}
	for i, v := range b.V {
		out.V[i] = cabs(v)
	}
	return out
}

// RowSum returns, per row, the sum across columns (used to reduce a
// Jacobian cell's nonzero columns down to a single scalar contribution).
func (b Block) RowSum() Vec {
	out := NewVec(b.N)
	for i := 0; i < b.N; i++ {
		var s complex128
		for j := 0; j < b.N; j++ {
			s += b.At(i, j)
		}
		out.V[i] = s
	}
	return out
}

// AddDiag adds v to the diagonal of b, in place.
func (b Block) AddDiag(v Vec) {
	for i := 0; i < b.N; i++ {
		b.V[i*b.N+i] += v.V[i]
	}
}

// Vec is a length-N tensor entry: a plain complex scalar (N=1), a
// per-phase vector (N=3), or a Newton-Raphson right-hand side (N=2 / 6),
// sharing the Block's width.
type Vec struct {
	N int
	V []complex128
}

// NewVec allocates a zeroed length-n vector.
func NewVec(n int) Vec { return Vec{N: n, V: make([]complex128, n)} }

func (v Vec) Clone() Vec {
	out := NewVec(v.N)
	copy(out.V, v.V)
	return out
}

func (v Vec) Add(w Vec) Vec {
	out := NewVec(v.N)
	for i := range v.V {
		out.V[i] = v.V[i] + w.V[i]
	}
	return out
}

func (v Vec) Sub(w Vec) Vec {
	out := NewVec(v.N)
	for i := range v.V {
		out.V[i] = v.V[i] - w.V[i]
	}
	return out
}

// Permute returns a copy with entry i taken from the original entry p[i].
func (v Vec) Permute(p []int) Vec {
	out := NewVec(v.N)
	for i := range p {
		out.V[i] = v.V[p[i]]
	}
	return out
}

func (v Vec) CAbs() RealVec {
	out := RealVec{N: v.N, V: make([]float64, len(v.V))}
	for i, c := range v.V {
		out.V[i] = cabs(c)
	}
	return out
}

// RealBlock is the elementwise magnitude of a Block, used only for the
// piecewise backward-error bound during iterative refinement.
type RealBlock struct {
	N int
	V []float64
}

// DotAbs computes the matrix-vector product with a RealVec.
func (b RealBlock) DotAbs(v RealVec) RealVec {
	out := RealVec{N: b.N, V: make([]float64, b.N)}
	for i := 0; i < b.N; i++ {
		var s float64
		for j := 0; j < b.N; j++ {
			s += b.V[i*b.N+j] * v.V[j]
		}
		out.V[i] = s
	}
	return out
}

// RealVec is the elementwise magnitude of a Vec.
type RealVec struct {
	N int
	V []float64
}

func (v RealVec) Add(w RealVec) RealVec {
	out := RealVec{N: v.N, V: make([]float64, v.N)}
	for i := range v.V {
		out.V[i] = v.V[i] + w.V[i]
	}
	return out
}

// Max returns the largest component.
func (v RealVec) Max() float64 {
	m := v.V[0]
	for _, x := range v.V[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// CapBelow returns a copy where every component below floor is raised to it.
func (v RealVec) CapBelow(floor float64) RealVec {
	out := RealVec{N: v.N, V: make([]float64, v.N)}
	for i, x := range v.V {
		out.V[i] = math.Max(x, floor)
	}
	return out
}

// BlockPerm holds the row/column permutations produced by full-pivot dense
// LU on one diagonal block: P applied on the left (rows), Q on the right
// (columns). Both are permutations of {0..N-1}.
type BlockPerm struct {
	P, Q []int
}

func newIdentityPerm(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return p
}

func cabs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func isNormal(c complex128) bool {
	re, im := real(c), imag(c)
	if math.IsNaN(re) || math.IsNaN(im) || math.IsInf(re, 0) || math.IsInf(im, 0) {
		return false
	}
	return c != 0
}
