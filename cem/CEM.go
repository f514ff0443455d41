// Package cem implements the separable Cross-Entropy Method, an
// evolution strategy which maintains a diagonal Gaussian search
// distribution over parameter vectors.
package cem

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tau is the rate at which the covariance damping decays towards its
// limit after each call to Tell
const Tau = 0.95

// CEM implements the separable Cross-Entropy Method. Samples are
// drawn from N(mean, diag(cov)). On each call to Tell, the mean is
// moved to a log-weighted recombination of the best half of the
// population and the covariance is re-estimated around the old mean,
// plus a damping term which decays towards dampLimit.
type CEM struct {
	numParams int
	popSize   int
	parents   int

	mean    *mat.VecDense
	cov     *mat.VecDense
	weights []float64

	damp      float64
	dampLimit float64

	antithetic bool
	elitism    bool
	elite      *mat.VecDense
	told       bool

	seed        uint64
	generations int
	normal      distuv.Normal
}

// New returns a new CEM with its mean initialized to mu and its
// covariance initialized to sigmaInit in each dimension. The number of
// parents used for recombination is popSize / 2. If antithetic is true,
// then popSize must be even and populations of even size are sampled
// with mirrored noise. If elitism is true, then the last member of
// each population after the first call to Tell is replaced by the best
// member of the previous population.
func New(mu mat.Vector, sigmaInit float64, popSize int, damp,
	dampLimit float64, antithetic, elitism bool, seed uint64) (*CEM,
	error) {
	if mu == nil || mu.Len() == 0 {
		return nil, fmt.Errorf("new: mean must have at least one element")
	}
	if sigmaInit <= 0 {
		return nil, fmt.Errorf("new: sigmaInit must be positive")
	}
	if popSize < 2 {
		return nil, fmt.Errorf("new: popSize must be at least 2")
	}
	if antithetic && popSize%2 != 0 {
		return nil, fmt.Errorf("new: antithetic sampling requires an even "+
			"popSize, got %v", popSize)
	}
	if damp < 0 || dampLimit < 0 {
		return nil, fmt.Errorf("new: damp and dampLimit must be " +
			"non-negative")
	}

	numParams := mu.Len()
	mean := mat.NewVecDense(numParams, nil)
	mean.CopyVec(mu)

	cov := mat.NewVecDense(numParams, nil)
	for i := 0; i < numParams; i++ {
		cov.SetVec(i, sigmaInit)
	}

	parents := popSize / 2

	c := &CEM{
		numParams:  numParams,
		popSize:    popSize,
		parents:    parents,
		mean:       mean,
		cov:        cov,
		weights:    recombinationWeights(parents),
		damp:       damp,
		dampLimit:  dampLimit,
		antithetic: antithetic,
		elitism:    elitism,
		seed:       seed,
	}
	c.seedNormal()

	return c, nil
}

// recombinationWeights returns the normalized weights
// w_i ∝ log((parents+1)/i), i = 1, ..., parents
func recombinationWeights(parents int) []float64 {
	weights := make([]float64, parents)
	for i := range weights {
		weights[i] = math.Log(float64(parents+1) / float64(i+1))
	}
	floats.Scale(1/floats.Sum(weights), weights)
	return weights
}

// seedNormal resets the standard normal used for sampling noise
func (c *CEM) seedNormal() {
	c.normal = distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(c.seed + uint64(c.generations)),
	}
}

// Ask samples n parameter vectors from the search distribution
func (c *CEM) Ask(n int) ([]*mat.VecDense, error) {
	if n <= 0 {
		return nil, fmt.Errorf("ask: cannot sample %v vectors", n)
	}

	eps := make([][]float64, n)
	if c.antithetic && n%2 == 0 {
		half := n / 2
		for i := 0; i < half; i++ {
			eps[i] = c.noise()
			eps[i+half] = make([]float64, c.numParams)
			floats.ScaleTo(eps[i+half], -1, eps[i])
		}
	} else {
		for i := range eps {
			eps[i] = c.noise()
		}
	}

	std := make([]float64, c.numParams)
	for i := range std {
		std[i] = math.Sqrt(c.cov.AtVec(i))
	}

	population := make([]*mat.VecDense, n)
	for i := range population {
		floats.Mul(eps[i], std)
		floats.Add(eps[i], c.mean.RawVector().Data)
		population[i] = mat.NewVecDense(c.numParams, eps[i])
	}

	if c.elitism && c.told {
		population[n-1].CopyVec(c.elite)
	}

	return population, nil
}

// noise returns a vector of standard normal noise
func (c *CEM) noise() []float64 {
	eps := make([]float64, c.numParams)
	for i := range eps {
		eps[i] = c.normal.Rand()
	}
	return eps
}

// Tell updates the search distribution given a population of
// parameter vectors and their fitnesses. Higher fitness is better.
func (c *CEM) Tell(population []*mat.VecDense, fitnesses []float64) error {
	if len(population) != len(fitnesses) {
		return fmt.Errorf("tell: population size (%v) != number of "+
			"fitnesses (%v)", len(population), len(fitnesses))
	}
	if len(population) < c.parents {
		return fmt.Errorf("tell: population size (%v) must be at least "+
			"the number of parents (%v)", len(population), c.parents)
	}
	for i, member := range population {
		if member.Len() != c.numParams {
			return fmt.Errorf("tell: population member %v has %v "+
				"parameters, expected %v", i, member.Len(), c.numParams)
		}
	}

	// Sort in descending order of fitness
	scores := make([]float64, len(fitnesses))
	floats.ScaleTo(scores, -1, fitnesses)
	order := make([]int, len(scores))
	floats.Argsort(scores, order)

	oldMean := mat.VecDenseCopyOf(c.mean)
	c.damp = c.damp*Tau + (1-Tau)*c.dampLimit

	c.mean.Zero()
	for i := 0; i < c.parents; i++ {
		c.mean.AddScaledVec(c.mean, c.weights[i], population[order[i]])
	}

	z := mat.NewVecDense(c.numParams, nil)
	cov := mat.NewVecDense(c.numParams, nil)
	for i := 0; i < c.parents; i++ {
		z.SubVec(population[order[i]], oldMean)
		z.MulElemVec(z, z)
		cov.AddScaledVec(cov, c.weights[i], z)
	}
	cov.ScaleVec(1/float64(c.parents), cov)
	for i := 0; i < c.numParams; i++ {
		cov.SetVec(i, cov.AtVec(i)+c.damp)
	}
	c.cov = cov

	c.elite = mat.VecDenseCopyOf(population[order[0]])
	c.told = true
	c.generations++

	return nil
}

// Mean returns a copy of the mean of the search distribution
func (c *CEM) Mean() *mat.VecDense {
	return mat.VecDenseCopyOf(c.mean)
}

// Cov returns a copy of the diagonal covariance of the search
// distribution
func (c *CEM) Cov() *mat.VecDense {
	return mat.VecDenseCopyOf(c.cov)
}

// Elite returns a copy of the best member of the last population
// passed to Tell and whether such a member exists
func (c *CEM) Elite() (*mat.VecDense, bool) {
	if !c.told {
		return nil, false
	}
	return mat.VecDenseCopyOf(c.elite), true
}

// Damp returns the current covariance damping
func (c *CEM) Damp() float64 {
	return c.damp
}

// NumParams returns the dimension of the search space
func (c *CEM) NumParams() int {
	return c.numParams
}

// PopSize returns the population size the CEM was constructed with
func (c *CEM) PopSize() int {
	return c.popSize
}

// Parents returns the number of population members used for
// recombination
func (c *CEM) Parents() int {
	return c.parents
}

// Generations returns the number of calls to Tell that have succeeded
func (c *CEM) Generations() int {
	return c.generations
}

// cemState is the gob-encodable state of a CEM
type cemState struct {
	PopSize     int
	Mean        []float64
	Cov         []float64
	Damp        float64
	DampLimit   float64
	Antithetic  bool
	Elitism     bool
	Elite       []float64
	Told        bool
	Seed        uint64
	Generations int
}

// GobEncode implements the gob.GobEncoder interface. The random
// source is not stored; after decoding, sampling continues from a
// source seeded with the original seed offset by the number of
// generations.
func (c *CEM) GobEncode() ([]byte, error) {
	state := cemState{
		PopSize:     c.popSize,
		Mean:        c.mean.RawVector().Data,
		Cov:         c.cov.RawVector().Data,
		Damp:        c.damp,
		DampLimit:   c.dampLimit,
		Antithetic:  c.antithetic,
		Elitism:     c.elitism,
		Told:        c.told,
		Seed:        c.seed,
		Generations: c.generations,
	}
	if c.told {
		state.Elite = c.elite.RawVector().Data
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (c *CEM) GobDecode(in []byte) error {
	var state cemState
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&state); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}
	if len(state.Mean) == 0 || len(state.Mean) != len(state.Cov) {
		return fmt.Errorf("gobDecode: invalid search distribution")
	}

	c.numParams = len(state.Mean)
	c.popSize = state.PopSize
	c.parents = state.PopSize / 2
	c.weights = recombinationWeights(c.parents)
	c.mean = mat.NewVecDense(c.numParams, state.Mean)
	c.cov = mat.NewVecDense(c.numParams, state.Cov)
	c.damp = state.Damp
	c.dampLimit = state.DampLimit
	c.antithetic = state.Antithetic
	c.elitism = state.Elitism
	c.told = state.Told
	c.elite = nil
	if state.Told {
		c.elite = mat.NewVecDense(c.numParams, state.Elite)
	}
	c.seed = state.Seed
	c.generations = state.Generations
	c.seedNormal()

	return nil
}

// String implements the fmt.Stringer interface
func (c *CEM) String() string {
	return fmt.Sprintf("sep-CEM | params: %v  |  pop: %v  |  parents: %v  "+
		"|  damp: %.3g", c.numParams, c.popSize, c.parents, c.damp)
}
