package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/movra/payout-service/internal/model"
)

// SimulatedGateway stands in for a real gateway: every call blocks for a
// fixed delay and then answers.
type SimulatedGateway struct {
	delay time.Duration
	sleep func(time.Duration)
}

// Option configures a SimulatedGateway
type Option func(*SimulatedGateway)

// WithSleeper replaces time.Sleep, mainly so tests do not wait.
func WithSleeper(sleep func(time.Duration)) Option {
	return func(g *SimulatedGateway) {
		g.sleep = sleep
	}
}

// NewSimulatedGateway creates a gateway that answers after delay
func NewSimulatedGateway(delay time.Duration, opts ...Option) *SimulatedGateway {
	g := &SimulatedGateway{
		delay: delay,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *SimulatedGateway) Name() string {
	return "simulated"
}

// SendPayout blocks for the configured delay. The wait ignores ctx: once a
// request is on the wire it cannot be called back.
func (g *SimulatedGateway) SendPayout(ctx context.Context, payout *model.Payout) (*GatewayResponse, error) {
	g.sleep(g.delay)

	return &GatewayResponse{
		Reference: fmt.Sprintf("SIM_%s", uuid.NewString()),
		Latency:   g.delay,
	}, nil
}
