package entitlement

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tiergate/internal/db/memstore"
	"tiergate/internal/events"
	"tiergate/internal/types"
)

// fakeIdentity returns a fixed profile or error.
type fakeIdentity struct {
	mu      sync.Mutex
	profile types.UserProfile
	err     error
	calls   int
}

func (f *fakeIdentity) FetchProfile(_ context.Context, _ string) (*types.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := f.profile
	return &p, nil
}

// recordingMetrics captures outcomes for assertions.
type recordingMetrics struct {
	mu           sync.Mutex
	outcomes     []types.Outcome
	degraded     int
	failedTables []string
}

func (m *recordingMetrics) RecordOutcome(_ context.Context, _ string, o types.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
}

func (m *recordingMetrics) RecordLatency(context.Context, string, time.Duration) {}

func (m *recordingMetrics) RecordIdentityDegraded(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded++
}

func (m *recordingMetrics) RecordLedgerWriteFailed(_ context.Context, table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedTables = append(m.failedTables, table)
}

// memClaims is an in-process dedupe.Store.
type memClaims struct {
	mu       sync.Mutex
	held     map[string]bool
	claimErr error
	released int
}

func newMemClaims() *memClaims { return &memClaims{held: make(map[string]bool)} }

func (c *memClaims) Claim(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claimErr != nil {
		return false, c.claimErr
	}
	if c.held[key] {
		return false, nil
	}
	c.held[key] = true
	return true, nil
}

func (c *memClaims) Release(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, key)
	c.released++
	return nil
}

type harness struct {
	store    *memstore.Store
	identity *fakeIdentity
	metrics  *recordingMetrics
	claims   *memClaims
	logs     *bytes.Buffer
	proc     *Processor
}

func newHarness(t *testing.T, policy types.RevocationPolicy) *harness {
	t.Helper()
	h := &harness{
		store:    memstore.New(),
		identity: &fakeIdentity{profile: types.UserProfile{Username: "tiermaker", Email: "tm@example.com"}},
		metrics:  &recordingMetrics{},
		claims:   newMemClaims(),
		logs:     &bytes.Buffer{},
	}
	logger := slog.New(slog.NewJSONHandler(&syncWriter{w: h.logs}, nil))
	h.proc = New(h.store, h.identity, policy, h.claims, h.metrics, logger)
	return h
}

// syncWriter serializes writes from concurrent workers.
type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// decode runs a raw body through the same parse steps as the webhook handler.
func decode(t *testing.T, body, deliveryID string) *events.CanonicalEvent {
	t.Helper()
	env, err := events.ParseEnvelope([]byte(body), deliveryID)
	require.NoError(t, err)
	ev, err := events.Decode(env, events.Normalize(env.Kind), time.Now())
	require.NoError(t, err)
	return ev
}

func (h *harness) grantFor(t *testing.T, externalUserID, resourceID string) bool {
	t.Helper()
	u, err := h.store.GetUserByExternalID(context.Background(), externalUserID)
	if types.CodeOf(err) == types.ErrCodeNotFoundUser {
		return false
	}
	require.NoError(t, err)
	ok, err := h.store.HasEntitlement(context.Background(), u.ID, resourceID)
	require.NoError(t, err)
	return ok
}
