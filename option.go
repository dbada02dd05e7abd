package balancerail

import (
	"time"

	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/metrics"
)

type Option func(*Paywall)

func WithLogger(l logger.Logger) Option {
	return func(p *Paywall) {
		p.logger = logger.OrNoop(l)
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(p *Paywall) {
		if r != nil {
			p.metrics = r
		}
	}
}

// WithClock sets the clock used for content timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Paywall) {
		p.now = now
	}
}
