package pf

import "github.com/edp1096/toy-gridflow/pkg/sparse"

// hnmlBlock holds one power-flow block's H, N, M, L quadrants, each a bw x
// bw complex entry (real-valued in practice; kept complex128 so the same
// sparse.Factorizer serves the Jacobian solve without a second real-only
// variant).
type hnmlBlock struct {
	H, N, M, L sparse.Block
}

// hnml computes the H/N/M/L quadrants contributed by the admittance y
// coupling bus a's voltage ua to bus b's voltage ub:
// S = ua (x) conj(ub) .* conj(y); H = Im(S); N = Re(S); M = -N; L = H.
func hnml(y sparse.Block, ua, ub sparse.Vec) hnmlBlock {
	s := hadamard(outer(ua, conjVec(ub)), conjBlock(y))
	h := imagBlock(s)
	n := realBlock(s)
	return hnmlBlock{H: h, N: n, M: negateBlock(n), L: h}
}

// outer computes the bw x bw outer product u (x) w; bw=1 degenerates to a
// plain scalar product.
func outer(u, w sparse.Vec) sparse.Block {
	out := sparse.NewBlock(u.N)
	for i := 0; i < u.N; i++ {
		for j := 0; j < u.N; j++ {
			out.Set(i, j, u.V[i]*w.V[j])
		}
	}
	return out
}

func hadamard(a, b sparse.Block) sparse.Block {
	out := sparse.NewBlock(a.N)
	for i := range a.V {
		out.V[i] = a.V[i] * b.V[i]
	}
	return out
}

func conjVec(v sparse.Vec) sparse.Vec {
	out := sparse.NewVec(v.N)
	for i, c := range v.V {
		out.V[i] = complex(real(c), -imag(c))
	}
	return out
}

func conjBlock(b sparse.Block) sparse.Block {
	out := sparse.NewBlock(b.N)
	for i, c := range b.V {
		out.V[i] = complex(real(c), -imag(c))
	}
	return out
}

// realBlock returns a block holding each entry's real part as a complex
// value with zero imaginary part.
func realBlock(b sparse.Block) sparse.Block {
	out := sparse.NewBlock(b.N)
	for i, c := range b.V {
		out.V[i] = complex(real(c), 0)
	}
	return out
}

// imagBlock returns a block holding each entry's imaginary part as a
// complex value with zero imaginary part.
func imagBlock(b sparse.Block) sparse.Block {
	out := sparse.NewBlock(b.N)
	for i, c := range b.V {
		out.V[i] = complex(imag(c), 0)
	}
	return out
}

func negateBlock(b sparse.Block) sparse.Block {
	out := sparse.NewBlock(b.N)
	for i, c := range b.V {
		out.V[i] = -c
	}
	return out
}

// realPartVec extracts the real component of each entry as a plain float
// vector (bw-wide).
func realPartVec(v sparse.Vec) sparse.RealVec {
	out := sparse.RealVec{N: v.N, V: make([]float64, v.N)}
	for i, c := range v.V {
		out.V[i] = real(c)
	}
	return out
}

func imagPartVec(v sparse.Vec) sparse.RealVec {
	out := sparse.RealVec{N: v.N, V: make([]float64, v.N)}
	for i, c := range v.V {
		out.V[i] = imag(c)
	}
	return out
}

// quadrant addressing into a jw x jw Jacobian entry, jw = 2*bw. qi, qj in
// {0,1} select which of (H N; M L) the bw x bw sub-block occupies.
func setQuad(b sparse.Block, bw, qi, qj int, sub sparse.Block) {
	jw := 2 * bw
	for r := 0; r < bw; r++ {
		for c := 0; c < bw; c++ {
			b.V[(qi*bw+r)*jw+qj*bw+c] = sub.At(r, c)
		}
	}
}

func addQuad(b sparse.Block, bw, qi, qj int, sub sparse.Block) {
	jw := 2 * bw
	for r := 0; r < bw; r++ {
		for c := 0; c < bw; c++ {
			b.V[(qi*bw+r)*jw+qj*bw+c] += sub.At(r, c)
		}
	}
}

// addQuadDiag adds the real-valued diagonal vector d to the diagonal of
// quadrant (qi, qj).
func addQuadDiag(b sparse.Block, bw, qi, qj int, d sparse.RealVec) {
	jw := 2 * bw
	for i := 0; i < bw; i++ {
		b.V[(qi*bw+i)*jw+qj*bw+i] += complex(d.V[i], 0)
	}
}
