// Package sparse implements the block-sparse LU factorizer (BSLU): in-place
// factorization of a sparse matrix whose entries are either scalar
// (complex128) or N x N dense blocks of one fixed width, with full-pivot dense LU on the
// diagonal blocks, optional pivot perturbation, and iterative refinement.
package sparse

// Pattern is the immutable symbolic structure shared by every factorization
// over the same topology: CSR-style row pointers, column indices (including
// pre-allocated fill-ins), and the position of each diagonal entry.
//
// A Pattern is built once by the topology-building collaborator and shared
// read-only across solver instances via a plain pointer — Go's garbage
// collector already gives the reference-counted sharing the design calls
// for, so there is no manual refcount to manage.
type Pattern struct {
	// RowIndptr has length n+1; row r spans columns [RowIndptr[r], RowIndptr[r+1]).
	RowIndptr []int
	// ColIndices has length nnz; the column of each nonzero, fill-ins included.
	ColIndices []int
	// DiagIdx has length n; the index into ColIndices/data of the (r,r) entry.
	DiagIdx []int
}

// NewPattern wraps the three CSR index arrays without checking them. It performs no
// numerical work; the caller (a topology-building collaborator) guarantees
// the sparsity pattern already contains every fill-in the elimination order
// will produce.
func NewPattern(rowIndptr, colIndices, diagIdx []int) *Pattern {
	return &Pattern{RowIndptr: rowIndptr, ColIndices: colIndices, DiagIdx: diagIdx}
}

// Size returns n, the number of rows/columns.
func (p *Pattern) Size() int { return len(p.RowIndptr) - 1 }

// NNZ returns the number of stored entries, fill-ins included.
func (p *Pattern) NNZ() int { return p.RowIndptr[len(p.RowIndptr)-1] }
