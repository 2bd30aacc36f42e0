package provider

import (
	"context"
	"time"

	"github.com/movra/payout-service/internal/model"
)

// GatewayResponse is what the payment gateway reports for one transfer
type GatewayResponse struct {
	Reference string
	// Latency is how long the gateway took to answer
	Latency time.Duration
}

// PaymentGateway defines the interface for payout gateways
type PaymentGateway interface {
	// SendPayout submits the payout and blocks until the gateway answers
	SendPayout(ctx context.Context, payout *model.Payout) (*GatewayResponse, error)

	// Name returns the gateway name
	Name() string
}
