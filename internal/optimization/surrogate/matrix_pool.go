package surrogate

import (
	"sync"

	"gonum.org/v1/gonum/mat"
)

// MatrixPool provides reusable matrices to reduce allocations during
// hyperparameter search, where many kernel matrices of the same size are
// built and discarded.
type MatrixPool struct {
	mu       sync.Mutex
	symPools []*mat.SymDense
	vecPools []*mat.VecDense
}

// NewMatrixPool creates a new MatrixPool
func NewMatrixPool() *MatrixPool {
	return &MatrixPool{
		symPools: make([]*mat.SymDense, 0, 10),
		vecPools: make([]*mat.VecDense, 0, 10),
	}
}

// GetSymDense returns a zeroed n×n symmetric matrix from the pool or creates a new one
func (p *MatrixPool) GetSymDense(n int) *mat.SymDense {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.symPools) > 0 {
		m := p.symPools[len(p.symPools)-1]
		p.symPools = p.symPools[:len(p.symPools)-1]
		m.Reset()
		m.ReuseAsSym(n)
		return m
	}
	return mat.NewSymDense(n, nil)
}

// PutSymDense returns a symmetric matrix to the pool
func (p *MatrixPool) PutSymDense(m *mat.SymDense) {
	p.mu.Lock()
	p.symPools = append(p.symPools, m)
	p.mu.Unlock()
}

// GetVecDense returns a zeroed vector of length n from the pool or creates a new one
func (p *MatrixPool) GetVecDense(n int) *mat.VecDense {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.vecPools) > 0 {
		v := p.vecPools[len(p.vecPools)-1]
		p.vecPools = p.vecPools[:len(p.vecPools)-1]
		v.Reset()
		v.ReuseAsVec(n)
		return v
	}
	return mat.NewVecDense(n, nil)
}

// PutVecDense returns a vector to the pool
func (p *MatrixPool) PutVecDense(v *mat.VecDense) {
	p.mu.Lock()
	p.vecPools = append(p.vecPools, v)
	p.mu.Unlock()
}
