// Package td3 implements the gradient updates of Twin Delayed Deep
// Deterministic Policy Gradient (TD3). The package does not interact
// with environments itself; it trains an actor and two critics on
// batches of transitions sampled by some other learner.
package td3

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"

	"github.com/samuelfneumann/cemrl/agent"
	"github.com/samuelfneumann/cemrl/agent/nonlinear/continuous/policy"
	env "github.com/samuelfneumann/cemrl/environment"
	"github.com/samuelfneumann/cemrl/expreplay"
	"github.com/samuelfneumann/cemrl/network"
	"github.com/samuelfneumann/cemrl/solver"
	"github.com/samuelfneumann/cemrl/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// critic is a state-action value function together with the graph
// nodes and VM needed to regress it onto update targets
type critic struct {
	net    network.NeuralNet
	target *G.Node
	vm     G.VM
	solver *solver.Solver

	targetNet network.NeuralNet
	targetVM  G.VM
}

// TD3 implements the TD3 actor and critic updates.
//
// Critics take the concatenation [state | action] as input, where
// actions are normalized to [-1, 1]. The critic update target is
//
//	y = r + γ (1 - done) min(Q1'(s', π'(s') + ε), Q2'(s', π'(s') + ε))
//
// with ε ~ clip(N(0, PolicyNoise), -NoiseClip, NoiseClip). The actor is
// updated to maximize Q1(s, π(s)).
type TD3 struct {
	// Behaviour actor with a batch size of 1
	actor *policy.Deterministic

	// Actor training graph: a batched actor feeding a copy of the first
	// critic, differentiated only with respect to the actor
	actorTrain      network.NeuralNet
	actorTrainState *G.Node
	criticOfActor   network.NeuralNet
	actorVM         G.VM
	actorSolver     *solver.Solver

	actorTarget   network.NeuralNet
	actorTargetVM G.VM

	critics [2]*critic

	normal distuv.Normal

	batchSize   int
	obsDims     int
	actionDims  int
	gamma       float64
	tau         float64
	policyNoise float64
	noiseClip   float64
}

// New returns a new TD3 trainer for actors acting in environment e
func New(e env.Environment, c Config, seed uint64) (*TD3, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: invalid config: %v", err)
	}

	actor, err := policy.NewDeterministic(e, c.ActorLayers, c.ActorBiases,
		c.ActorActivations, c.InitWFn.InitWFn())
	if err != nil {
		return nil, fmt.Errorf("new: could not create actor: %v", err)
	}
	obsDims := e.ObservationSpec().Shape.Len()
	actionDims := actor.ActionDims()

	var critics [2]*critic
	for i := range critics {
		critics[i], err = newCritic(fmt.Sprintf("critic%v", i+1), c,
			obsDims+actionDims)
		if err != nil {
			return nil, fmt.Errorf("new: %v", err)
		}
	}

	// Build the actor training graph
	g := G.NewGraph()
	state := G.NewMatrix(g, tensor.Float64,
		G.WithShape(c.BatchSize, obsDims), G.WithName("actorState"),
		G.WithInit(G.Zeroes()))
	actorTrain, err := actor.Network().CloneWithInputTo(1,
		[]*G.Node{state}, g)
	if err != nil {
		return nil, fmt.Errorf("new: could not create training actor: %v",
			err)
	}
	criticOfActor, err := critics[0].net.CloneWithInputTo(1,
		[]*G.Node{state, actorTrain.Prediction()}, g)
	if err != nil {
		return nil, fmt.Errorf("new: could not connect critic to actor: %v",
			err)
	}

	// Maximize Q1(s, π(s))
	actorLoss := G.Must(G.Mean(criticOfActor.Prediction()))
	actorLoss = G.Must(G.Neg(actorLoss))
	if _, err := G.Grad(actorLoss, actorTrain.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute actor gradient: %v",
			err)
	}
	actorVM := G.NewTapeMachine(g,
		G.BindDualValues(actorTrain.Learnables()...))

	actorTarget, err := actor.Network().CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target actor: %v",
			err)
	}

	return &TD3{
		actor: actor,

		actorTrain:      actorTrain,
		actorTrainState: state,
		criticOfActor:   criticOfActor,
		actorVM:         actorVM,
		actorSolver:     c.ActorSolver.Clone(),

		actorTarget:   actorTarget,
		actorTargetVM: G.NewTapeMachine(actorTarget.Graph()),

		critics: critics,

		normal: distuv.Normal{
			Mu:    0,
			Sigma: c.PolicyNoise,
			Src:   rand.NewSource(seed),
		},

		batchSize:   c.BatchSize,
		obsDims:     obsDims,
		actionDims:  actionDims,
		gamma:       c.Gamma,
		tau:         c.Tau,
		policyNoise: c.PolicyNoise,
		noiseClip:   c.NoiseClip,
	}, nil
}

// newCritic creates a critic, its regression graph, and its target
func newCritic(name string, c Config, features int) (*critic, error) {
	net, err := network.NewSingleHeadMLP(name, features, c.BatchSize,
		G.NewGraph(), c.CriticLayers, c.CriticBiases, c.InitWFn.InitWFn(),
		c.CriticActivations)
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not create %v: %v", name,
			err)
	}

	target := G.NewMatrix(net.Graph(), tensor.Float64,
		G.WithShape(c.BatchSize, 1), G.WithName(name+"UpdateTarget"),
		G.WithInit(G.Zeroes()))

	// Mean squared error to the update target
	loss := G.Must(G.Sub(net.Prediction(), target))
	loss = G.Must(G.Square(loss))
	loss = G.Must(G.Mean(loss))
	if _, err := G.Grad(loss, net.Learnables()...); err != nil {
		return nil, fmt.Errorf("newCritic: could not compute gradient of "+
			"%v: %v", name, err)
	}

	targetNet, err := net.CloneWithBatch(c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("newCritic: could not create target of "+
			"%v: %v", name, err)
	}

	return &critic{
		net:    net,
		target: target,
		vm:     G.NewTapeMachine(net.Graph(), G.BindDualValues(net.Learnables()...)),
		solver: c.CriticSolver.Clone(),

		targetNet: targetNet,
		targetVM:  G.NewTapeMachine(targetNet.Graph()),
	}, nil
}

// TrainCritic performs a single update of both critics on a batch of
// transitions, then moves the critic targets towards the critics
func (t *TD3) TrainCritic(b expreplay.Batch) error {
	if err := t.validateBatch(b); err != nil {
		return fmt.Errorf("trainCritic: %v", err)
	}

	nextActions, err := t.run(t.actorTarget, t.actorTargetVM, b.NextState)
	if err != nil {
		return fmt.Errorf("trainCritic: could not compute next actions: %v",
			err)
	}

	// Target policy smoothing
	for i := range nextActions {
		noise := 0.0
		if t.policyNoise > 0 {
			noise = floatutils.Clip(t.normal.Rand(), -t.noiseClip,
				t.noiseClip)
		}
		nextActions[i] = floatutils.Clip(nextActions[i]+noise, -1, 1)
	}

	nextInput := concatRows(b.NextState, t.obsDims, nextActions,
		t.actionDims, t.batchSize)
	q1, err := t.targetValues(0, nextInput)
	if err != nil {
		return fmt.Errorf("trainCritic: %v", err)
	}
	q2, err := t.targetValues(1, nextInput)
	if err != nil {
		return fmt.Errorf("trainCritic: %v", err)
	}

	updateTarget := make([]float64, t.batchSize)
	for i := range updateTarget {
		next := math.Min(q1[i], q2[i])
		updateTarget[i] = b.Reward[i] + t.gamma*(1-b.Done[i])*next
	}

	input := concatRows(b.State, t.obsDims, b.Action, t.actionDims,
		t.batchSize)
	for i, c := range t.critics {
		if err := c.step(input, updateTarget); err != nil {
			return fmt.Errorf("trainCritic: could not update critic %v: %v",
				i+1, err)
		}
		if err := c.targetNet.Polyak(c.net, t.tau); err != nil {
			return fmt.Errorf("trainCritic: could not update target of "+
				"critic %v: %v", i+1, err)
		}
	}

	return nil
}

// step takes a single gradient step on the critic towards the update
// targets
func (c *critic) step(input, updateTarget []float64) error {
	if err := c.net.SetInput(input); err != nil {
		return err
	}

	targetTensor := tensor.New(
		tensor.WithShape(len(updateTarget), 1),
		tensor.WithBacking(updateTarget),
	)
	if err := G.Let(c.target, targetTensor); err != nil {
		return fmt.Errorf("could not set update target: %v", err)
	}

	defer c.vm.Reset()
	if err := c.vm.RunAll(); err != nil {
		return fmt.Errorf("could not run critic VM: %v", err)
	}
	return c.solver.Step(c.net.Model())
}

// targetValues returns the predictions of the target of critic i
// on a batch of [state | action] inputs
func (t *TD3) targetValues(i int, input []float64) ([]float64, error) {
	c := t.critics[i]
	values, err := t.run(c.targetNet, c.targetVM, input)
	if err != nil {
		return nil, fmt.Errorf("could not compute target values of critic "+
			"%v: %v", i+1, err)
	}
	return values, nil
}

// TrainActor performs a single update of the actor to maximize the
// first critic, then moves the actor target towards the actor
func (t *TD3) TrainActor(b expreplay.Batch) error {
	if err := t.validateBatch(b); err != nil {
		return fmt.Errorf("trainActor: %v", err)
	}

	if err := t.criticOfActor.Set(t.critics[0].net); err != nil {
		return fmt.Errorf("trainActor: could not synchronize critic: %v",
			err)
	}

	state := make([]float64, len(b.State))
	copy(state, b.State)
	stateTensor := tensor.New(
		tensor.WithShape(t.batchSize, t.obsDims),
		tensor.WithBacking(state),
	)
	if err := G.Let(t.actorTrainState, stateTensor); err != nil {
		return fmt.Errorf("trainActor: could not set state: %v", err)
	}

	if err := t.actorVM.RunAll(); err != nil {
		t.actorVM.Reset()
		return fmt.Errorf("trainActor: could not run actor VM: %v", err)
	}
	err := t.actorSolver.Step(t.actorTrain.Model())
	t.actorVM.Reset()
	if err != nil {
		return fmt.Errorf("trainActor: could not step solver: %v", err)
	}

	if err := t.actorTarget.Polyak(t.actorTrain, t.tau); err != nil {
		return fmt.Errorf("trainActor: could not update target actor: %v",
			err)
	}
	if err := t.actor.Set(t.actorTrain); err != nil {
		return fmt.Errorf("trainActor: could not synchronize behaviour "+
			"actor: %v", err)
	}

	return nil
}

// ResetActorSolver replaces the actor's solver with a solver of the
// same configuration and no accumulated state
func (t *TD3) ResetActorSolver() {
	t.actorSolver = t.actorSolver.Clone()
}

// Actor returns the trained actor. Loading a vector into the returned
// actor loads it into both the behaviour and training actors.
func (t *TD3) Actor() agent.VectorPolicy {
	return syncedActor{t}
}

// ActorTarget returns the target actor
func (t *TD3) ActorTarget() network.VectorLoader {
	return network.AsVectorLoader(t.actorTarget)
}

// run runs the forward pass of a batched network on input and returns
// a copy of its output
func (t *TD3) run(net network.NeuralNet, vm G.VM,
	input []float64) ([]float64, error) {
	if err := net.SetInput(input); err != nil {
		return nil, err
	}

	defer vm.Reset()
	if err := vm.RunAll(); err != nil {
		return nil, err
	}

	out := net.Output().Data().([]float64)
	values := make([]float64, len(out))
	copy(values, out)
	return values, nil
}

// validateBatch ensures a batch has the shape the trainer was built for
func (t *TD3) validateBatch(b expreplay.Batch) error {
	if b.Size != t.batchSize {
		return fmt.Errorf("invalid batch size \n\twant(%v) \n\thave(%v)",
			t.batchSize, b.Size)
	}
	if len(b.State) != t.batchSize*t.obsDims ||
		len(b.NextState) != t.batchSize*t.obsDims {
		return fmt.Errorf("invalid number of state features in batch")
	}
	if len(b.Action) != t.batchSize*t.actionDims {
		return fmt.Errorf("invalid number of action dimensions in batch")
	}
	if len(b.Reward) != t.batchSize || len(b.Done) != t.batchSize {
		return fmt.Errorf("invalid number of rewards or done flags in batch")
	}
	return nil
}

// Close closes all VMs owned by the trainer
func (t *TD3) Close() error {
	vms := []G.VM{t.actorVM, t.actorTargetVM}
	for _, c := range t.critics {
		vms = append(vms, c.vm, c.targetVM)
	}

	for _, vm := range vms {
		if err := vm.Close(); err != nil {
			return fmt.Errorf("close: %v", err)
		}
	}
	return t.actor.Close()
}

// concatRows concatenates two row-major batches along the feature
// dimension
func concatRows(a []float64, aCols int, b []float64, bCols,
	rows int) []float64 {
	out := make([]float64, 0, rows*(aCols+bCols))
	for i := 0; i < rows; i++ {
		out = append(out, a[i*aCols:(i+1)*aCols]...)
		out = append(out, b[i*bCols:(i+1)*bCols]...)
	}
	return out
}

// syncedActor is the VectorPolicy view of a TD3 actor
type syncedActor struct {
	t *TD3
}

func (s syncedActor) SelectAction(obs mat.Vector) (*mat.VecDense, error) {
	return s.t.actor.SelectAction(obs)
}

func (s syncedActor) MaxAction() float64 {
	return s.t.actor.MaxAction()
}

func (s syncedActor) ParametersToVector() (*mat.VecDense, error) {
	return s.t.actor.ParametersToVector()
}

func (s syncedActor) LoadFromVector(v mat.Vector) error {
	if err := s.t.actor.LoadFromVector(v); err != nil {
		return err
	}
	return s.t.actorTrain.Set(s.t.actor.Network())
}

// parameters is the gob-encodable state of a TD3 trainer
type parameters struct {
	Actor         []float64
	ActorTarget   []float64
	Critics       [2][]float64
	CriticTargets [2][]float64
}

// GobEncode implements the gob.GobEncoder interface. Only network
// parameters are encoded; solver state is not.
func (t *TD3) GobEncode() ([]byte, error) {
	var p parameters
	var err error

	if p.Actor, err = rawParameters(t.actorTrain); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	if p.ActorTarget, err = rawParameters(t.actorTarget); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	for i, c := range t.critics {
		if p.Critics[i], err = rawParameters(c.net); err != nil {
			return nil, fmt.Errorf("gobEncode: %v", err)
		}
		if p.CriticTargets[i], err = rawParameters(c.targetNet); err != nil {
			return nil, fmt.Errorf("gobEncode: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, fmt.Errorf("gobEncode: %v", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The receiver must
// have been constructed with the same architecture as the encoded
// trainer.
func (t *TD3) GobDecode(in []byte) error {
	if t.actor == nil {
		return fmt.Errorf("gobDecode: trainer must be constructed before " +
			"decoding")
	}

	var p parameters
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&p); err != nil {
		return fmt.Errorf("gobDecode: %v", err)
	}

	if err := t.Actor().LoadFromVector(toVec(p.Actor)); err != nil {
		return fmt.Errorf("gobDecode: actor: %v", err)
	}
	if err := network.LoadFromVector(t.actorTarget,
		toVec(p.ActorTarget)); err != nil {
		return fmt.Errorf("gobDecode: target actor: %v", err)
	}
	for i, c := range t.critics {
		if err := network.LoadFromVector(c.net, toVec(p.Critics[i])); err != nil {
			return fmt.Errorf("gobDecode: critic %v: %v", i+1, err)
		}
		if err := network.LoadFromVector(c.targetNet,
			toVec(p.CriticTargets[i])); err != nil {
			return fmt.Errorf("gobDecode: target critic %v: %v", i+1, err)
		}
	}
	return nil
}

func rawParameters(net network.NeuralNet) ([]float64, error) {
	v, err := network.ParametersToVector(net)
	if err != nil {
		return nil, err
	}
	return v.RawVector().Data, nil
}

func toVec(data []float64) *mat.VecDense {
	if len(data) == 0 {
		return mat.NewVecDense(1, []float64{0})
	}
	return mat.NewVecDense(len(data), data)
}
