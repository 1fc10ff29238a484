package surrogate

import (
	"fmt"
	"math/rand"
	"runtime"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/boxopt/internal/optimization/space"
)

// BenchmarkGPTrainScaling measures how GP fitting scales with input size
func BenchmarkGPTrainScaling(b *testing.B) {
	tests := []struct {
		nSamples  int
		nFeatures int
	}{
		{50, 2},
		{200, 5},
		{500, 10},
	}

	for _, tt := range tests {
		b.Run(fmt.Sprintf("n=%d/d=%d", tt.nSamples, tt.nFeatures), func(b *testing.B) {
			rng := rand.New(rand.NewSource(42))
			X := generateRandomMatrix(rng, tt.nSamples, tt.nFeatures, 0, 1)
			y := objectiveVector(X)

			gp, err := NewGP(unitSpace(b, tt.nFeatures), Options{})
			if err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = gp.Train(X, y, nil)
			}
		})
	}
}

// BenchmarkKernelComparison compares GP training cost per kernel
func BenchmarkKernelComparison(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	X := generateRandomMatrix(rng, 200, 5, 0, 1)
	y := objectiveVector(X)

	for _, kernel := range []string{"rbf", "matern52"} {
		b.Run(kernel, func(b *testing.B) {
			gp, err := NewGP(unitSpace(b, 5), Options{Kernel: kernel})
			if err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = gp.Train(X, y, nil)
			}
		})
	}
}

// BenchmarkPredictConcurrent measures prediction under concurrent readers
func BenchmarkPredictConcurrent(b *testing.B) {
	rng := rand.New(rand.NewSource(42))
	X := generateRandomMatrix(rng, 300, 5, 0, 1)
	y := objectiveVector(X)
	XTest := generateRandomMatrix(rng, 100, 5, 0, 1)

	models := map[string]Model{}
	gp, err := NewGP(unitSpace(b, 5), Options{})
	if err != nil {
		b.Fatal(err)
	}
	models["gp"] = gp
	forest, err := NewForest(unitSpace(b, 5), Options{})
	if err != nil {
		b.Fatal(err)
	}
	models["prf"] = forest

	for name, m := range models {
		if err := m.Train(X, y, nil); err != nil {
			b.Fatalf("train %s: %v", name, err)
		}
		b.Run(name, func(b *testing.B) {
			b.SetParallelism(runtime.NumCPU())
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					_, _, _ = m.Predict(XTest, nil)
				}
			})
		})
	}
}

// BenchmarkPFeasible measures index cost scoring over a candidate batch
func BenchmarkPFeasible(b *testing.B) {
	hps := make([]space.Hyperparameter, 20)
	sizes := ResourceSizes{}
	for i := range hps {
		resource := fmt.Sprintf("t.c%d", i)
		hps[i] = space.Int(IndexPrefix+resource, 0, 1, 0)
		sizes[resource] = float64(50 + 10*i)
	}
	sp, err := space.New(hps...)
	if err != nil {
		b.Fatal(err)
	}
	m, err := NewIndexSpaceModel(sp, DefaultIndexBudget, sizes, nil)
	if err != nil {
		b.Fatal(err)
	}

	rng := rand.New(rand.NewSource(42))
	X := mat.NewDense(1000, sp.Len(), nil)
	for i := 0; i < 1000; i++ {
		X.SetRow(i, sp.Sample(rng).Vector())
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.PFeasible(X)
	}
}
