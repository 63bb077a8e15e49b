package pf

import "github.com/edp1096/toy-gridflow/pkg/sparse"

// YBusSym is the topology-building collaborator's contract for the
// single-phase symmetric model: a pre-assembled admittance matrix in the
// factorizer's sparse layout, plus a mapping back to the caller's own
// admittance storage.
type YBusSym interface {
	Size() int
	NnzLU() int
	Pattern() *sparse.Pattern
	MapLUYBus() []int // -1 marks a fill-in
	Admittance() []complex128
	SourceAdmittance(sourceIdx int) complex128
}

// YBusAsym is the three-phase asymmetric counterpart, identical in shape but
// with 3x3 block entries.
type YBusAsym interface {
	Size() int
	NnzLU() int
	Pattern() *sparse.Pattern
	MapLUYBus() []int
	Admittance() []sparse.Block
	SourceAdmittance(sourceIdx int) sparse.Block
}

// yBus is the internal, width-erased view both solver variants funnel into;
// it always speaks in sparse.Block regardless of bw, with bw=1 wrapping a
// scalar admittance as a 1x1 block.
type yBus interface {
	Size() int
	NnzLU() int
	Pattern() *sparse.Pattern
	MapLUYBus() []int
	AdmittanceAt(pos int) sparse.Block
	SourceAdmittanceAt(sourceIdx int) sparse.Block
}

type symYBusAdapter struct{ y YBusSym }

func (a symYBusAdapter) Size() int                { return a.y.Size() }
func (a symYBusAdapter) NnzLU() int               { return a.y.NnzLU() }
func (a symYBusAdapter) Pattern() *sparse.Pattern { return a.y.Pattern() }
func (a symYBusAdapter) MapLUYBus() []int         { return a.y.MapLUYBus() }

func (a symYBusAdapter) AdmittanceAt(pos int) sparse.Block {
	return sparse.Block{N: 1, V: []complex128{a.y.Admittance()[pos]}}
}

func (a symYBusAdapter) SourceAdmittanceAt(sourceIdx int) sparse.Block {
	return sparse.Block{N: 1, V: []complex128{a.y.SourceAdmittance(sourceIdx)}}
}

type asymYBusAdapter struct{ y YBusAsym }

func (a asymYBusAdapter) Size() int                { return a.y.Size() }
func (a asymYBusAdapter) NnzLU() int               { return a.y.NnzLU() }
func (a asymYBusAdapter) Pattern() *sparse.Pattern { return a.y.Pattern() }
func (a asymYBusAdapter) MapLUYBus() []int         { return a.y.MapLUYBus() }

func (a asymYBusAdapter) AdmittanceAt(pos int) sparse.Block {
	return a.y.Admittance()[pos]
}

func (a asymYBusAdapter) SourceAdmittanceAt(sourceIdx int) sparse.Block {
	return a.y.SourceAdmittance(sourceIdx)
}
