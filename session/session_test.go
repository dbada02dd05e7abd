package session

import (
	"context"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/balancerail/catalog"
	"github.com/vitwit/balancerail/types"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type fakeAccount struct {
	address string
	rt      roundTripFunc

	mu      sync.Mutex
	ceiling []*big.Int
	paths   []string
}

func (a *fakeAccount) Address() string { return a.address }

func (a *fakeAccount) Client(maxAmount *big.Int) *http.Client {
	a.mu.Lock()
	a.ceiling = append(a.ceiling, new(big.Int).Set(maxAmount))
	a.mu.Unlock()
	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		a.mu.Lock()
		a.paths = append(a.paths, r.URL.Path)
		a.mu.Unlock()
		return a.rt(r)
	})}
}

func respond(status int, body string) roundTripFunc {
	return func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	}
}

const enterpriseBody = `{"tier":"enterprise","data":"Enterprise envelope cleared: AI NISA vault focus unlocked.","features":["Priority settlement window"],"timestamp":"2026-03-01T00:00:00.000Z"}`

type emptyErr struct{}

func (emptyErr) Error() string { return "" }

func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

func newSession() *Session {
	return New(catalog.Default(), "http://localhost:3000/", WithClock(tickingClock()))
}

func messages(logs []LogEntry) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Message)
	}
	return out
}

func TestPurchaseCompletesAndCreditsVault(t *testing.T) {
	s := newSession()
	acct := &fakeAccount{address: "0xA", rt: respond(http.StatusOK, enterpriseBody)}
	s.Connect(acct)

	env, err := s.Purchase(context.Background(), types.TierEnterprise)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, env.Status)
	assert.Equal(t, "Enterprise", env.Label)
	assert.True(t, strings.HasPrefix(env.ID, "enterprise-"))
	assert.True(t, decimal.RequireFromString("0.5").Equal(env.Amount))

	assert.Equal(t, []*big.Int{big.NewInt(500000)}, acct.ceiling)
	assert.Equal(t, []string{"/api/enterprise"}, acct.paths)

	snap := s.Snapshot()
	assert.True(t, decimal.RequireFromString("0.0075").Equal(snap.Vault), snap.Vault.String())
	assert.False(t, snap.Paying)
	require.NotNil(t, snap.Content)
	assert.Equal(t, "enterprise", snap.Content.Tier)

	assert.Equal(t, []string{
		"Initiating Enterprise payment...",
		"Requesting payment authorization...",
		"Payment successful!",
		"Content received",
	}, messages(snap.Logs))
	for _, l := range snap.Logs {
		assert.Equal(t, SeveritySuccess, l.Severity)
		assert.Equal(t, env.AttemptID, l.AttemptID)
	}
}

func TestVaultAccumulatesExactly(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: respond(http.StatusOK, `{"tier":"basic","data":"x","timestamp":"t"}`)})

	for i := 0; i < 3; i++ {
		_, err := s.Purchase(context.Background(), types.TierBasic)
		require.NoError(t, err)
	}
	// 3 × 0.01 × 0.015
	assert.Equal(t, "0.00045", s.Vault().String())
	assert.Len(t, s.Snapshot().Envelopes, 3)
}

func TestPurchaseRejectedLeavesVaultUntouched(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: respond(http.StatusPaymentRequired, `{"x402Version":1,"accepts":[],"error":"X-PAYMENT header is required"}`)})

	env, err := s.Purchase(context.Background(), types.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, env.Status)

	snap := s.Snapshot()
	assert.True(t, snap.Vault.IsZero())
	assert.Nil(t, snap.Content)
	require.Len(t, snap.Logs, 3)
	assert.Equal(t, "Payment failed: X-PAYMENT header is required", snap.Logs[2].Message)
	for _, l := range snap.Logs {
		assert.Equal(t, SeverityError, l.Severity)
	}
}

func TestPurchaseRejectedWithoutMessage(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: respond(http.StatusInternalServerError, "oops")})

	env, err := s.Purchase(context.Background(), types.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, env.Status)

	logs := s.Snapshot().Logs
	assert.Equal(t, "Payment failed: Unknown error", logs[len(logs)-1].Message)
}

func TestPurchaseTransportErrorAppendsOneErrorEntry(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: func(*http.Request) (*http.Response, error) {
		return nil, errors.New("insufficient funds for transfer")
	}})

	env, err := s.Purchase(context.Background(), types.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, env.Status)

	snap := s.Snapshot()
	require.Len(t, snap.Logs, 3)
	assert.Equal(t, "Error: insufficient funds for transfer", snap.Logs[2].Message)
	assert.Equal(t, SeverityError, snap.Logs[2].Severity)
	for _, l := range snap.Logs[:2] {
		assert.NotContains(t, l.Message, "insufficient")
	}
	assert.True(t, snap.Vault.IsZero())
}

func TestPurchaseErrorWithoutMessage(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: func(*http.Request) (*http.Response, error) {
		return nil, emptyErr{}
	}})

	_, err := s.Purchase(context.Background(), types.TierBasic)
	require.NoError(t, err)

	logs := s.Snapshot().Logs
	assert.Equal(t, "Error: Unknown error", logs[len(logs)-1].Message)
}

func TestPurchaseMalformedContentFails(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: respond(http.StatusOK, "not json")})

	env, err := s.Purchase(context.Background(), types.TierBasic)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, env.Status)
	assert.True(t, s.Vault().IsZero())
}

func TestPurchaseRequiresWallet(t *testing.T) {
	s := newSession()
	_, err := s.Purchase(context.Background(), types.TierBasic)
	assert.True(t, errors.Is(err, types.X402Error{Code: types.ErrNoWallet}))
	assert.Empty(t, s.Snapshot().Envelopes)
}

func TestPurchaseUnknownTier(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: respond(http.StatusOK, enterpriseBody)})
	_, err := s.Purchase(context.Background(), types.TierID("platinum"))
	assert.True(t, errors.Is(err, types.X402Error{Code: types.ErrUnknownTier}))
}

func TestSecondPurchaseWhileInFlightIsRejected(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: func(r *http.Request) (*http.Response, error) {
		close(entered)
		<-release
		return respond(http.StatusOK, enterpriseBody)(r)
	}})

	done := make(chan Envelope)
	go func() {
		env, _ := s.Purchase(context.Background(), types.TierEnterprise)
		done <- env
	}()
	<-entered

	assert.True(t, s.Paying())
	_, err := s.Purchase(context.Background(), types.TierBasic)
	assert.True(t, errors.Is(err, types.X402Error{Code: types.ErrPurchaseInProgress}))

	close(release)
	env := <-done
	assert.Equal(t, StatusCompleted, env.Status)
	assert.False(t, s.Paying())
	assert.Len(t, s.Snapshot().Envelopes, 1)
}

func TestSwitchingAccountClearsState(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: respond(http.StatusOK, enterpriseBody)})
	_, err := s.Purchase(context.Background(), types.TierEnterprise)
	require.NoError(t, err)
	require.True(t, s.Vault().IsPositive())

	s.Connect(&fakeAccount{address: "0xB", rt: respond(http.StatusOK, enterpriseBody)})

	snap := s.Snapshot()
	assert.Equal(t, "0xB", snap.Address)
	assert.True(t, snap.Vault.IsZero())
	assert.Empty(t, snap.Envelopes)
	assert.Empty(t, snap.Logs)
	assert.Nil(t, snap.Content)
}

func TestReconnectingSameAccountKeepsState(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xAbC", rt: respond(http.StatusOK, enterpriseBody)})
	_, err := s.Purchase(context.Background(), types.TierEnterprise)
	require.NoError(t, err)

	s.Connect(&fakeAccount{address: "0xabc", rt: respond(http.StatusOK, enterpriseBody)})
	assert.Len(t, s.Snapshot().Envelopes, 1)
	assert.True(t, s.Vault().IsPositive())
}

func TestDisconnectClearsState(t *testing.T) {
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: respond(http.StatusOK, enterpriseBody)})
	_, err := s.Purchase(context.Background(), types.TierEnterprise)
	require.NoError(t, err)

	s.Disconnect()
	snap := s.Snapshot()
	assert.False(t, snap.Connected)
	assert.Empty(t, snap.Envelopes)
	assert.True(t, snap.Vault.IsZero())
}

func TestSwitchDuringAttemptDiscardsItsResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	s := newSession()
	s.Connect(&fakeAccount{address: "0xA", rt: func(r *http.Request) (*http.Response, error) {
		close(entered)
		<-release
		return respond(http.StatusOK, enterpriseBody)(r)
	}})

	done := make(chan struct{})
	go func() {
		_, _ = s.Purchase(context.Background(), types.TierEnterprise)
		close(done)
	}()
	<-entered
	s.Connect(&fakeAccount{address: "0xB", rt: respond(http.StatusOK, enterpriseBody)})
	close(release)
	<-done

	snap := s.Snapshot()
	assert.True(t, snap.Vault.IsZero())
	assert.Empty(t, snap.Logs)
	assert.Empty(t, snap.Envelopes)
	assert.Nil(t, snap.Content)
}

func TestLaterAttemptDoesNotTouchEarlierEnvelope(t *testing.T) {
	s := newSession()
	acct := &fakeAccount{address: "0xA", rt: respond(http.StatusPaymentRequired, `{"error":"invalid_exact_evm_payload_signature"}`)}
	s.Connect(acct)

	first, err := s.Purchase(context.Background(), types.TierPremium)
	require.NoError(t, err)

	acct.rt = respond(http.StatusOK, `{"tier":"premium","data":"ok","timestamp":"t"}`)
	second, err := s.Purchase(context.Background(), types.TierPremium)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.AttemptID, second.AttemptID)

	envs := s.Snapshot().Envelopes
	require.Len(t, envs, 2)
	assert.Equal(t, StatusFailed, envs[0].Status)
	assert.Equal(t, StatusCompleted, envs[1].Status)

	// the log only covers the latest attempt
	for _, l := range s.Snapshot().Logs {
		assert.Equal(t, second.AttemptID, l.AttemptID)
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusInitiated.CanTransition(StatusAuthorized))
	assert.True(t, StatusInitiated.CanTransition(StatusFailed))
	assert.True(t, StatusAuthorized.CanTransition(StatusCompleted))
	assert.True(t, StatusAuthorized.CanTransition(StatusFailed))
	assert.False(t, StatusInitiated.CanTransition(StatusCompleted))

	for _, terminal := range []Status{StatusCompleted, StatusFailed} {
		assert.True(t, terminal.Terminal())
		for _, next := range []Status{StatusInitiated, StatusAuthorized, StatusCompleted, StatusFailed} {
			assert.False(t, terminal.CanTransition(next))
		}
	}
}

func TestNewestFirst(t *testing.T) {
	envs := []Envelope{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	got := NewestFirst(envs)
	assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "a", envs[0].ID)
}
