// Package expreplay implements experience replay buffers which store
// transitions in a fixed-capacity FIFO ring and sample batches of them.
package expreplay

import (
	"fmt"
	"os"

	"github.com/samuelfneumann/cemrl/timestep"
)

// Config implements a specific configuration of an ExperienceReplayer
type Config struct {
	MaxReplayCapacity int `json:"MaxReplayCapacity" yaml:"max_replay_capacity"`
	MinReplayCapacity int `json:"MinReplayCapacity" yaml:"min_replay_capacity"`
	BatchSize         int `json:"BatchSize" yaml:"batch_size"`
}

// Create creates and returns the ExperienceReplayer with the specified
// Config.
func (c Config) Create(featureSize, actionSize int,
	seed uint64) (ExperienceReplayer, error) {
	sampler := NewUniformSelector(c.BatchSize, seed)
	return New(sampler, c.MinReplayCapacity, c.MaxReplayCapacity,
		featureSize, actionSize)
}

// Batch is a batch of transitions sampled from an ExperienceReplayer.
// Each field stores Size rows in row-major order.
type Batch struct {
	State     []float64
	Action    []float64
	Reward    []float64
	Done      []float64
	NextState []float64
	Size      int
}

// ExperienceReplayer implements an experience replay buffer
type ExperienceReplayer interface {
	// Add adds a transition to the buffer
	Add(t timestep.Transition) error

	// Sample samples a batch of experience from the buffer
	Sample() (Batch, error)

	// Capacity returns the current number of samples in the buffer
	Capacity() int

	// MaxCapacity returns the maximum allowable samples in the buffer
	MaxCapacity() int

	// MinCapacity returns the number of samples required to be in
	// the buffer before the buffer can be sampled
	MinCapacity() int

	// BatchSize returns the number of samples returned by Sample()
	BatchSize() int
}

// fifoCache implements a concrete ExperienceReplayer where the oldest
// element is overwritten once the buffer is full.
type fifoCache struct {
	stateCache     []float64
	actionCache    []float64
	rewardCache    []float64
	doneCache      []float64
	nextStateCache []float64

	currentInUsePos int
	isFull          bool

	sampler Selector

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// New creates and returns a new ExperienceReplayer. The sampler
// determines how data is sampled from the buffer. The featureSize and
// actionSize parameters define the size of the feature and action
// vectors.
func New(sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int) (ExperienceReplayer, error) {
	if minCapacity <= 0 {
		return nil, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < minCapacity {
		return nil, fmt.Errorf("new: maxCapacity (%v) must be >= "+
			"minCapacity (%v)", maxCapacity, minCapacity)
	}
	if sampler.BatchSize() <= 0 {
		return nil, fmt.Errorf("new: batch size must be > 0")
	}
	if featureSize <= 0 || actionSize <= 0 {
		return nil, fmt.Errorf("new: feature and action sizes must be > 0")
	}
	if maxCapacity < sampler.BatchSize() {
		fmt.Fprintf(os.Stderr, "new: batch size (%v) > max buffer "+
			"capacity (%v), samples will be repeated\n",
			sampler.BatchSize(), maxCapacity)
	}

	return &fifoCache{
		stateCache:     make([]float64, maxCapacity*featureSize),
		actionCache:    make([]float64, maxCapacity*actionSize),
		rewardCache:    make([]float64, maxCapacity),
		doneCache:      make([]float64, maxCapacity),
		nextStateCache: make([]float64, maxCapacity*featureSize),

		sampler: sampler,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// String returns the string representation of the fifoCache
func (c *fifoCache) String() string {
	return fmt.Sprintf("FIFO replay buffer | capacity: %v/%v  |  batch: %v",
		c.Capacity(), c.MaxCapacity(), c.BatchSize())
}

// BatchSize returns the number of samples sampled using Sample()
func (c *fifoCache) BatchSize() int {
	return c.sampler.BatchSize()
}

// Sample samples and returns a batch of transitions from the replay
// buffer
func (c *fifoCache) Sample() (Batch, error) {
	if c.Capacity() == 0 {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errEmptyCache,
		}
		return Batch{}, err
	}
	if c.Capacity() < c.MinCapacity() {
		err := &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
		return Batch{}, err
	}

	indices := c.sampler.choose(c.Capacity())
	batchSize := len(indices)

	batch := Batch{
		State:     make([]float64, batchSize*c.featureSize),
		Action:    make([]float64, batchSize*c.actionSize),
		Reward:    make([]float64, batchSize),
		Done:      make([]float64, batchSize),
		NextState: make([]float64, batchSize*c.featureSize),
		Size:      batchSize,
	}

	for i, index := range indices {
		batchStart := i * c.featureSize
		expStart := index * c.featureSize
		copy(batch.State[batchStart:batchStart+c.featureSize],
			c.stateCache[expStart:expStart+c.featureSize])
		copy(batch.NextState[batchStart:batchStart+c.featureSize],
			c.nextStateCache[expStart:expStart+c.featureSize])

		batchStart = i * c.actionSize
		expStart = index * c.actionSize
		copy(batch.Action[batchStart:batchStart+c.actionSize],
			c.actionCache[expStart:expStart+c.actionSize])

		batch.Reward[i] = c.rewardCache[index]
		batch.Done[i] = c.doneCache[index]
	}

	return batch, nil
}

// Capacity returns the current number of elements in the fifoCache
// that are available for sampling
func (c *fifoCache) Capacity() int {
	if c.isFull {
		return c.MaxCapacity()
	}
	return c.currentInUsePos
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the fifoCache
func (c *fifoCache) MaxCapacity() int {
	return c.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// fifoCache before sampling is allowed
func (c *fifoCache) MinCapacity() int {
	return c.minCapacity
}

// Add adds a transition to the fifoCache, overwriting the oldest
// transition if the buffer is full
func (c *fifoCache) Add(t timestep.Transition) error {
	if t.State.Len() != c.featureSize || t.NextState.Len() != c.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)\n\thave(%v)",
			c.featureSize, t.State.Len())
	}
	if t.Action.Len() != c.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)\n\thave(%v)",
			c.actionSize, t.Action.Len())
	}

	index := c.currentInUsePos

	stateInd := index * c.featureSize
	copy(c.stateCache[stateInd:stateInd+c.featureSize],
		t.State.RawVector().Data)
	copy(c.nextStateCache[stateInd:stateInd+c.featureSize],
		t.NextState.RawVector().Data)

	actionInd := index * c.actionSize
	copy(c.actionCache[actionInd:actionInd+c.actionSize],
		t.Action.RawVector().Data)

	c.rewardCache[index] = t.Reward
	c.doneCache[index] = t.Done

	if index+1 == c.MaxCapacity() {
		c.isFull = true
	}
	c.currentInUsePos = (c.currentInUsePos + 1) % c.MaxCapacity()
	return nil
}
