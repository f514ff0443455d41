package initwfn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
)

// GlorotUConfig configures Glorot uniform initialization
type GlorotUConfig struct{ Gain float64 }

// GlorotNConfig configures Glorot normal initialization
type GlorotNConfig struct{ Gain float64 }

// HeUConfig configures He uniform initialization
type HeUConfig struct{ Gain float64 }

// HeNConfig configures He normal initialization
type HeNConfig struct{ Gain float64 }

// ZeroesConfig initializes all weights to 0
type ZeroesConfig struct{}

// OnesConfig initializes all weights to 1
type OnesConfig struct{}

// ConstantConfig initializes all weights to Value
type ConstantConfig struct{ Value float64 }

// GaussianConfig draws weights from N(Mean, StdDev²)
type GaussianConfig struct{ Mean, StdDev float64 }

// UniformConfig draws weights from U[Low, High)
type UniformConfig struct{ Low, High float64 }

// NewGlorotU returns a new Glorot uniform weight initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotUConfig{gain})
}

// NewGlorotN returns a new Glorot normal weight initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotNConfig{gain})
}

// NewHeU returns a new He uniform weight initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return newInitWFn(HeUConfig{gain})
}

// NewHeN returns a new He normal weight initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return newInitWFn(HeNConfig{gain})
}

// NewZeroes returns a new weight initializer setting all weights to 0
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

// NewOnes returns a new weight initializer setting all weights to 1
func NewOnes() (*InitWFn, error) {
	return newInitWFn(OnesConfig{})
}

// NewConstant returns a new weight initializer setting all weights to
// value
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{value})
}

// NewGaussian returns a new gaussian weight initializer
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	return newInitWFn(GaussianConfig{mean, stddev})
}

// NewUniform returns a new uniform weight initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	return newInitWFn(UniformConfig{low, high})
}

func (g GlorotUConfig) Type() Type        { return GlorotU }
func (g GlorotUConfig) Create() G.InitWFn { return G.GlorotU(g.Gain) }
func (g GlorotUConfig) Validate() error   { return positiveGain(g.Gain) }

func (g GlorotNConfig) Type() Type        { return GlorotN }
func (g GlorotNConfig) Create() G.InitWFn { return G.GlorotN(g.Gain) }
func (g GlorotNConfig) Validate() error   { return positiveGain(g.Gain) }

func (h HeUConfig) Type() Type        { return HeU }
func (h HeUConfig) Create() G.InitWFn { return G.HeU(h.Gain) }
func (h HeUConfig) Validate() error   { return positiveGain(h.Gain) }

func (h HeNConfig) Type() Type        { return HeN }
func (h HeNConfig) Create() G.InitWFn { return G.HeN(h.Gain) }
func (h HeNConfig) Validate() error   { return positiveGain(h.Gain) }

func (ZeroesConfig) Type() Type        { return Zeroes }
func (ZeroesConfig) Create() G.InitWFn { return G.Zeroes() }
func (ZeroesConfig) Validate() error   { return nil }

func (OnesConfig) Type() Type        { return Ones }
func (OnesConfig) Create() G.InitWFn { return G.Ones() }
func (OnesConfig) Validate() error   { return nil }

func (c ConstantConfig) Type() Type        { return Constant }
func (c ConstantConfig) Create() G.InitWFn { return G.ValuesOf(c.Value) }
func (c ConstantConfig) Validate() error   { return nil }

func (g GaussianConfig) Type() Type        { return Gaussian }
func (g GaussianConfig) Create() G.InitWFn { return G.Gaussian(g.Mean, g.StdDev) }

// Validate returns an error if the standard deviation is not positive
func (g GaussianConfig) Validate() error {
	if g.StdDev <= 0 {
		return fmt.Errorf("standard deviation must be positive, got %v",
			g.StdDev)
	}
	return nil
}

func (u UniformConfig) Type() Type        { return Uniform }
func (u UniformConfig) Create() G.InitWFn { return G.Uniform(u.Low, u.High) }

// Validate returns an error if the interval is empty
func (u UniformConfig) Validate() error {
	if u.Low >= u.High {
		return fmt.Errorf("low (%v) must be less than high (%v)", u.Low,
			u.High)
	}
	return nil
}

func positiveGain(gain float64) error {
	if gain <= 0 {
		return fmt.Errorf("gain must be positive, got %v", gain)
	}
	return nil
}
