package quota

import (
	"context"
	"errors"
)

// Generator is the opaque text-generation collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (<-chan string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (<-chan string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (<-chan string, error) {
	return f(ctx, prompt)
}

// Consumer charges quota. *Ledger satisfies it.
type Consumer interface {
	Consume(ctx context.Context, accountID string, amount int64) (Record, error)
}

// GatedGenerator charges Cost units before every generation. A rejected or
// failed charge means the generator is never called. A generator failure
// after a successful charge is not refunded.
type GatedGenerator struct {
	ledger Consumer
	gen    Generator
	cost   int64
}

// NewGatedGenerator wraps gen. cost below 1 is treated as 1.
func NewGatedGenerator(ledger Consumer, gen Generator, cost int64) *GatedGenerator {
	if cost < 1 {
		cost = 1
	}
	return &GatedGenerator{ledger: ledger, gen: gen, cost: cost}
}

// Generate charges accountID and then streams the generator's output.
func (g *GatedGenerator) Generate(ctx context.Context, accountID, prompt string) (<-chan string, error) {
	if g.gen == nil {
		return nil, errors.New("quota: no generator configured")
	}
	if _, err := g.ledger.Consume(ctx, accountID, g.cost); err != nil {
		return nil, err
	}
	return g.gen.Generate(ctx, prompt)
}
