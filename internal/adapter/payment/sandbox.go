package payment

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// SandboxGateway simulates a payment gateway for local runs: a refund is
// accepted immediately and its result is reported back asynchronously,
// mimicking real gateway notification semantics.
type SandboxGateway struct {
	delay  time.Duration
	onDone func(orderNo, refundNo string, ok bool)
}

func NewSandboxGateway(delay time.Duration) *SandboxGateway {
	return &SandboxGateway{delay: delay}
}

// OnResult registers the callback invoked when a simulated refund settles.
// Set once during wiring, before the gateway receives traffic.
func (g *SandboxGateway) OnResult(fn func(orderNo, refundNo string, ok bool)) {
	g.onDone = fn
}

func (g *SandboxGateway) Refund(ctx context.Context, orderNo, refundNo string, amount decimal.Decimal) error {
	log.Printf("sandbox gateway: refund %s for order %s, amount %s", refundNo, orderNo, amount.StringFixed(2))
	go func() {
		time.Sleep(g.delay)
		if g.onDone != nil {
			g.onDone(orderNo, refundNo, true)
		}
	}()
	return nil
}
