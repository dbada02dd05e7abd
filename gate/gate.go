// Package gate releases a tier's content once the settlement verifier
// accepts the request's payment proof.
package gate

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/metrics"
	"github.com/vitwit/balancerail/types"
)

// Verifier is the settlement verifier contract.
type Verifier interface {
	Settle(ctx context.Context, req *types.SettleRequest) (*types.SettleResult, error)
}

// Terms are the merchant-wide payment settings shared by every tier.
type Terms struct {
	BaseURL string // public origin the resources are served from
	PayTo   string
	Network types.Network
	Asset   string
}

// Gate guards one tier. It holds no per-request state.
type Gate struct {
	tier     types.Tier
	verifier Verifier
	terms    Terms
	logger   logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time
}

type Option func(*Gate)

func WithLogger(l logger.Logger) Option {
	return func(g *Gate) {
		g.logger = logger.OrNoop(l)
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(g *Gate) {
		if r != nil {
			g.metrics = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

func New(tier types.Tier, verifier Verifier, terms Terms, opts ...Option) *Gate {
	g := &Gate{
		tier:     tier,
		verifier: verifier,
		terms:    terms,
		logger:   logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tier returns the tier this gate guards.
func (g *Gate) Tier() types.Tier {
	return g.tier
}

// ResourceURL is the absolute URL advertised in payment terms.
func (g *Gate) ResourceURL() string {
	return strings.TrimRight(g.terms.BaseURL, "/") + g.tier.Resource
}

// Handle is the gin handler for the tier's resource.
func (g *Gate) Handle(c *gin.Context) {
	labels := map[string]string{"tier": g.tier.ID.String(), "network": g.terms.Network.String()}

	start := g.now()
	result, err := g.verifier.Settle(c.Request.Context(), &types.SettleRequest{
		ResourceURL: g.ResourceURL(),
		Method:      c.Request.Method,
		PaymentData: c.GetHeader(types.HeaderPayment),
		PayTo:       g.terms.PayTo,
		Network:     g.terms.Network,
		Price: types.Price{
			Amount: g.tier.AmountString(),
			Asset:  types.Asset{Address: g.terms.Asset},
		},
		Description: g.tier.Label + ": " + g.tier.Description,
	})
	g.metrics.ObserveLatency(metrics.OperationSettle, g.now().Sub(start), labels)

	if err != nil {
		g.metrics.IncCounter(metrics.EventGateError, labels)
		g.logger.Error("settlement verifier failed", map[string]any{"tier": g.tier.ID.String(), "err": err})
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	copyHeaders(c.Writer.Header(), result.Headers)

	if result.OK() {
		g.metrics.IncCounter(metrics.EventGatePaid, labels)
		c.JSON(http.StatusOK, types.Content{
			Tier:      g.tier.ID.String(),
			Data:      g.tier.Data,
			Features:  g.tier.Features,
			Timestamp: types.ISOTimestamp(g.now()),
		})
		return
	}

	g.metrics.IncCounter(metrics.EventGateRejected, labels)
	g.logger.Debug("payment not accepted", map[string]any{"tier": g.tier.ID.String(), "status": result.Status})
	if _, ok := result.Headers["Content-Type"]; !ok {
		// a nil entry keeps net/http from sniffing one
		c.Writer.Header()["Content-Type"] = nil
	}
	c.Status(result.Status)
	c.Writer.WriteHeaderNow()
	if len(result.Body) > 0 {
		if _, err := c.Writer.Write(result.Body); err != nil {
			g.logger.Warn("write rejection body", map[string]any{"tier": g.tier.ID.String(), "err": err})
		}
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		dst.Del(key)
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
