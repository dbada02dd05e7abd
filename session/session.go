// Package session drives purchase attempts for a connected wallet and keeps
// the client-side projections of them: the log, the envelope list, the last
// released content and the simulated vault.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitwit/balancerail/catalog"
	"github.com/vitwit/balancerail/logger"
	"github.com/vitwit/balancerail/types"
)

const maxBodyBytes = 1 << 20

// Log messages.
const (
	msgInitiateFmt = "Initiating %s payment..."
	msgAuthorize   = "Requesting payment authorization..."
	msgPaid        = "Payment successful!"
	msgContent     = "Content received"
	msgFailedFmt   = "Payment failed: %s"
	msgErrorFmt    = "Error: %s"
	unknownError   = "Unknown error"
)

// Severity tags a log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// LogEntry is one line of the attempt log.
type LogEntry struct {
	AttemptID uuid.UUID
	Message   string
	Severity  Severity
	Timestamp time.Time
}

// Account is a connected wallet. Client returns a payment-enabled client
// that authorizes at most maxAmount minor units per request.
type Account interface {
	Address() string
	Client(maxAmount *big.Int) *http.Client
}

// Snapshot is a copy of the session state safe to read without locking.
type Snapshot struct {
	Address   string
	Connected bool
	Paying    bool
	Logs      []LogEntry
	Envelopes []Envelope // creation order
	Content   *types.Content
	Vault     decimal.Decimal
}

// Session is safe for concurrent use. At most one purchase runs at a time;
// a second Purchase while one is in flight fails with PURCHASE_IN_PROGRESS.
type Session struct {
	catalog *catalog.Catalog
	apiBase string
	rate    decimal.Decimal
	logger  logger.Logger
	now     func() time.Time

	mu        sync.Mutex
	account   Account
	epoch     uint64 // bumped on every account change
	paying    bool
	logs      []LogEntry
	envelopes []*Envelope
	content   *types.Content
	vault     decimal.Decimal
}

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.logger = logger.OrNoop(l)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

// New creates a disconnected session. apiBase is the origin tier resources
// are requested from.
func New(cat *catalog.Catalog, apiBase string, opts ...Option) *Session {
	s := &Session{
		catalog: cat,
		apiBase: strings.TrimRight(apiBase, "/"),
		rate:    decimal.RequireFromString(catalog.VaultAllocationRate),
		logger:  logger.NoopLogger{},
		now:     time.Now,
		vault:   decimal.Zero,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect makes acct the active account. Switching to a different address
// discards all session state.
func (s *Session) Connect(acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account != nil && acct != nil && strings.EqualFold(s.account.Address(), acct.Address()) {
		s.account = acct
		return
	}
	s.account = acct
	s.resetLocked()
}

// Disconnect drops the active account and discards all session state.
func (s *Session) Disconnect() {
	s.Connect(nil)
}

func (s *Session) resetLocked() {
	s.epoch++
	s.logs = nil
	s.envelopes = nil
	s.content = nil
	s.vault = decimal.Zero
}

// Purchase runs one attempt for tier id and returns its final envelope.
// Payment failures are recorded in the envelope and log, not returned; the
// error is reserved for attempts that could not start.
func (s *Session) Purchase(ctx context.Context, id types.TierID) (Envelope, error) {
	tier, err := s.catalog.Get(id)
	if err != nil {
		return Envelope{}, err
	}

	a, err := s.begin(tier)
	if err != nil {
		return Envelope{}, err
	}
	defer s.finish()

	s.log(a, fmt.Sprintf(msgInitiateFmt, tier.Label), SeverityInfo)
	s.advance(a, StatusAuthorized)
	s.log(a, msgAuthorize, SeverityInfo)

	content, failure := s.fetch(ctx, a, tier)
	switch {
	case failure != "":
		s.retag(a, SeverityError)
		s.log(a, failure, SeverityError)
		s.advance(a, StatusFailed)
		s.logger.Warn("purchase failed", map[string]any{"tier": tier.ID.String(), "attempt": a.id.String(), "reason": failure})
	default:
		s.retag(a, SeveritySuccess)
		s.log(a, msgPaid, SeveritySuccess)
		s.log(a, msgContent, SeveritySuccess)
		s.complete(a, content)
		s.logger.Info("purchase completed", map[string]any{"tier": tier.ID.String(), "attempt": a.id.String()})
	}

	return s.envelopeOf(a), nil
}

// attempt ties an in-flight purchase to the session epoch it started in.
type attempt struct {
	id       uuid.UUID
	epoch    uint64
	envelope *Envelope
	amount   decimal.Decimal
}

func (s *Session) begin(tier types.Tier) (*attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account == nil {
		return nil, &types.X402Error{Code: types.ErrNoWallet, Message: "no wallet connected"}
	}
	if s.paying {
		return nil, &types.X402Error{Code: types.ErrPurchaseInProgress, Message: "a purchase is already in progress"}
	}
	s.paying = true
	s.content = nil
	s.logs = nil

	amount := catalog.DecimalAmount(tier)
	a := &attempt{id: uuid.New(), epoch: s.epoch, amount: amount}
	a.envelope = newEnvelope(a.id, tier, amount, s.now())
	s.envelopes = append(s.envelopes, a.envelope)
	return a, nil
}

func (s *Session) finish() {
	s.mu.Lock()
	s.paying = false
	s.mu.Unlock()
}

// fetch requests the tier resource and returns the released content or the
// log message describing why the attempt failed.
func (s *Session) fetch(ctx context.Context, a *attempt, tier types.Tier) (*types.Content, string) {
	s.mu.Lock()
	acct := s.account
	s.mu.Unlock()
	if acct == nil {
		return nil, fmt.Sprintf(msgErrorFmt, "wallet disconnected")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiBase+tier.Resource, nil)
	if err != nil {
		return nil, fmt.Sprintf(msgErrorFmt, errorText(err))
	}
	resp, err := acct.Client(big.NewInt(tier.Amount)).Do(req)
	if err != nil {
		return nil, fmt.Sprintf(msgErrorFmt, errorText(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Sprintf(msgErrorFmt, errorText(err))
	}

	if resp.StatusCode != http.StatusOK {
		var rejection struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &rejection); err != nil || rejection.Error == "" {
			return nil, fmt.Sprintf(msgFailedFmt, unknownError)
		}
		return nil, fmt.Sprintf(msgFailedFmt, rejection.Error)
	}

	var content types.Content
	if err := json.Unmarshal(body, &content); err != nil {
		return nil, fmt.Sprintf(msgErrorFmt, errorText(err))
	}
	return &content, ""
}

func errorText(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	if err == nil || err.Error() == "" {
		return unknownError
	}
	var x402Err *types.X402Error
	if errors.As(err, &x402Err) && x402Err.Message != "" {
		return x402Err.Message
	}
	return err.Error()
}

// The helpers below drop writes from an attempt whose account has since
// been switched away.

func (s *Session) log(a *attempt, msg string, sev Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.epoch != s.epoch {
		return
	}
	s.logs = append(s.logs, LogEntry{AttemptID: a.id, Message: msg, Severity: sev, Timestamp: s.now()})
}

func (s *Session) retag(a *attempt, sev Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.epoch != s.epoch {
		return
	}
	for i := range s.logs {
		if s.logs[i].AttemptID == a.id {
			s.logs[i].Severity = sev
		}
	}
}

func (s *Session) advance(a *attempt, next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := a.envelope.advance(next); err != nil {
		s.logger.Error("envelope transition rejected", map[string]any{"err": err})
	}
}

func (s *Session) complete(a *attempt, content *types.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := a.envelope.advance(StatusCompleted); err != nil {
		s.logger.Error("envelope transition rejected", map[string]any{"err": err})
		return
	}
	if a.epoch != s.epoch {
		return
	}
	s.content = content
	s.vault = s.vault.Add(a.amount.Mul(s.rate))
}

func (s *Session) envelopeOf(a *attempt) Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *a.envelope
}

// Paying reports whether an attempt is in flight.
func (s *Session) Paying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paying
}

// Vault returns the simulated vault balance.
func (s *Session) Vault() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Connected: s.account != nil,
		Paying:    s.paying,
		Logs:      append([]LogEntry(nil), s.logs...),
		Envelopes: make([]Envelope, 0, len(s.envelopes)),
		Vault:     s.vault,
	}
	if s.account != nil {
		snap.Address = s.account.Address()
	}
	for _, e := range s.envelopes {
		snap.Envelopes = append(snap.Envelopes, *e)
	}
	if s.content != nil {
		c := *s.content
		c.Features = append([]string(nil), s.content.Features...)
		snap.Content = &c
	}
	return snap
}
