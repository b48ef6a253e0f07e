// Package models builds the classifier computation graphs for the sweep: a
// single feed-forward network (MLP) and a soft mixture-of-experts (MoE).
// Both map a flattened image to raw per-class logits; gradients, the
// optimizer and parameter storage are all handled by gomlx.
package models

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Kind selects which classifier variant to build.
type Kind string

const (
	// KindMLP is a single hidden-layer feed-forward classifier.
	KindMLP Kind = "mlp"

	// KindMoE is a soft mixture of independent expert MLPs combined by a
	// learned softmax gate.
	KindMoE Kind = "moe"
)

// Config describes one classifier. It is immutable once constructed and is
// validated before any graph is built.
type Config struct {
	Kind       Kind
	InputDim   int
	HiddenDim  int
	NumClasses int

	// NumExperts is only meaningful for KindMoE, where it must be positive.
	NumExperts int
}

// Validate reports configuration errors immediately, at model-construction
// time, rather than deferring them to the forward pass.
func (cfg Config) Validate() error {
	if cfg.InputDim <= 0 || cfg.HiddenDim <= 0 || cfg.NumClasses <= 0 {
		return fmt.Errorf("model dimensions must be positive: input=%d hidden=%d classes=%d",
			cfg.InputDim, cfg.HiddenDim, cfg.NumClasses)
	}
	switch cfg.Kind {
	case KindMLP:
		return nil
	case KindMoE:
		if cfg.NumExperts <= 0 {
			return fmt.Errorf("mixture-of-experts requires a positive expert count, got %d", cfg.NumExperts)
		}
		return nil
	default:
		return fmt.Errorf("unsupported model kind %q", cfg.Kind)
	}
}

// Build constructs the forward graph for a batch of images, returning raw
// logits with shape [batch, NumClasses]. Images of any rank are accepted and
// flattened to [batch, InputDim] first. Callers must Validate the config
// before building.
func (cfg Config) Build(ctx *context.Context, images *Node) *Node {
	batch := images.Shape().Dimensions[0]
	x := Reshape(images, batch, -1)
	switch cfg.Kind {
	case KindMoE:
		return cfg.buildMoE(ctx, x)
	default:
		return cfg.buildMLP(ctx.In("mlp"), x)
	}
}

// buildMLP is the shared feed-forward body: Dense(hidden) -> ReLU ->
// Dense(classes). The output stays linear, scores are logits.
func (cfg Config) buildMLP(ctx *context.Context, x *Node) *Node {
	h := activations.Relu(layers.DenseWithBias(ctx.In("hidden"), x, cfg.HiddenDim))
	return layers.DenseWithBias(ctx.In("output"), h, cfg.NumClasses)
}

// buildMoE combines NumExperts independent MLP bodies through a learned
// gate. The gate is a linear projection of the flattened input to one logit
// per expert followed by a softmax, so each sample's gate weights form a
// probability simplex. Every expert contributes on every sample, weighted by
// its gate probability; there is no top-k sparsity.
func (cfg Config) buildMoE(ctx *context.Context, x *Node) *Node {
	gate := Softmax(layers.DenseWithBias(ctx.In("gate"), x, cfg.NumExperts)) // [batch, E]

	parts := make([]*Node, cfg.NumExperts)
	for e := range parts {
		out := cfg.buildMLP(ctx.In(fmt.Sprintf("expert_%02d", e)), x)
		parts[e] = InsertAxes(out, 1) // [batch, 1, classes]
	}
	stacked := Concatenate(parts, 1) // [batch, E, classes]

	// Broadcast-multiply each expert's logits by its per-sample gate weight
	// and sum over the expert axis.
	weighted := Mul(stacked, InsertAxes(gate, -1))
	return ReduceSum(weighted, 1) // [batch, classes]
}

// ModelFn adapts the config to the gomlx trainer's model-graph signature.
func (cfg Config) ModelFn() func(ctx *context.Context, spec any, inputs []*Node) []*Node {
	return func(ctx *context.Context, spec any, inputs []*Node) []*Node {
		_ = spec
		return []*Node{cfg.Build(ctx, inputs[0])}
	}
}
