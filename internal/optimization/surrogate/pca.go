package surrogate

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/boxopt/internal/optimization"
)

// ContextProjector reduces raw context vectors to a fixed number of
// principal components. With zero components it is the identity.
//
// The projection is refitted on every Fit call over all raw contexts seen
// so far; training and prediction contexts must be projected by the same
// fit. With fewer than two distinct observations the principal directions
// are undefined and the projector falls back to the leading raw axes.
type ContextProjector struct {
	rawDims    int
	components int

	mean  []float64
	basis *mat.Dense // rawDims × components
}

// NewContextProjector validates that components fits within rawDims.
func NewContextProjector(rawDims, components int) (*ContextProjector, error) {
	if rawDims <= 0 {
		return nil, optimization.DimensionMismatchf("context dimension must be positive, got %d", rawDims).
			WithComponent("context_projector")
	}
	if components < 0 || components > rawDims {
		return nil, optimization.DimensionMismatchf("cannot project %d context dimensions onto %d components", rawDims, components).
			WithComponent("context_projector")
	}
	p := &ContextProjector{rawDims: rawDims, components: components}
	p.resetToAxes(make([]float64, rawDims))
	return p, nil
}

// RawDims returns the expected raw context width.
func (p *ContextProjector) RawDims() int { return p.rawDims }

// Dims returns the projected context width.
func (p *ContextProjector) Dims() int {
	if p.components == 0 {
		return p.rawDims
	}
	return p.components
}

func (p *ContextProjector) resetToAxes(mean []float64) {
	if p.components == 0 {
		return
	}
	p.mean = mean
	p.basis = mat.NewDense(p.rawDims, p.components, nil)
	for i := 0; i < p.components; i++ {
		p.basis.Set(i, i, 1)
	}
}

// Fit estimates the projection from raw context rows.
func (p *ContextProjector) Fit(raw *mat.Dense) error {
	if err := p.check("Fit", raw); err != nil {
		return err
	}
	if p.components == 0 {
		return nil
	}

	rows, _ := raw.Dims()
	mean := make([]float64, p.rawDims)
	for j := 0; j < p.rawDims; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, raw), nil)
	}
	if rows < 2 {
		p.resetToAxes(mean)
		return nil
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(raw, nil); !ok {
		p.resetToAxes(mean)
		return nil
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, avail := vecs.Dims()

	basis := mat.NewDense(p.rawDims, p.components, nil)
	for k := 0; k < p.components && k < avail; k++ {
		for j := 0; j < p.rawDims; j++ {
			basis.Set(j, k, vecs.At(j, k))
		}
	}
	p.mean = mean
	p.basis = basis
	return nil
}

// Transform projects raw context rows.
func (p *ContextProjector) Transform(raw *mat.Dense) (*mat.Dense, error) {
	if err := p.check("Transform", raw); err != nil {
		return nil, err
	}
	if p.components == 0 {
		return mat.DenseCopyOf(raw), nil
	}
	rows, _ := raw.Dims()
	centered := mat.NewDense(rows, p.rawDims, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < p.rawDims; j++ {
			centered.Set(i, j, raw.At(i, j)-p.mean[j])
		}
	}
	out := mat.NewDense(rows, p.components, nil)
	out.Mul(centered, p.basis)
	return out, nil
}

func (p *ContextProjector) check(op string, raw *mat.Dense) error {
	if raw == nil {
		return optimization.DimensionMismatchf("context matrix must not be nil").
			WithComponent("context_projector").WithOperation(op)
	}
	if _, cols := raw.Dims(); cols != p.rawDims {
		return optimization.DimensionMismatchf("context has %d columns, want %d", cols, p.rawDims).
			WithComponent("context_projector").WithOperation(op)
	}
	return nil
}
