package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medrag/internal/domain"
)

// countingAnswerer tracks invocations and how many run at once.
type countingAnswerer struct {
	mu         sync.Mutex
	calls      int
	inFlight   atomic.Int32
	maxInFlight int32
	delay      time.Duration
	err        error
}

func (a *countingAnswerer) Answer(ctx context.Context, query string, history []domain.Turn) (domain.Answer, []string, error) {
	cur := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	a.mu.Lock()
	a.calls++
	if cur > a.maxInFlight {
		a.maxInFlight = cur
	}
	a.mu.Unlock()
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return domain.Answer{}, nil, a.err
	}
	return domain.Answer{
		Text:     fmt.Sprintf("answer to %q (history %d)", query, len(history)),
		Grounded: true,
	}, []string{"d1:0"}, nil
}

func TestQuery_CreatesSessionAndRecordsTurns(t *testing.T) {
	m := NewManager(&countingAnswerer{}, Config{})
	defer m.Close()

	id := NewID()
	_, err := m.Query(context.Background(), id, "first")
	require.NoError(t, err)
	_, err = m.Query(context.Background(), id, "second")
	require.NoError(t, err)

	turns := m.History(id)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Query)
	assert.Equal(t, "second", turns[1].Query)
	assert.Equal(t, []string{"d1:0"}, turns[0].ChunkIDs)
	assert.False(t, turns[0].At.IsZero())
}

func TestQuery_HistoryGrowsAcrossTurns(t *testing.T) {
	a := &countingAnswerer{}
	m := NewManager(a, Config{})
	defer m.Close()

	id := NewID()
	ans1, err := m.Query(context.Background(), id, "q1")
	require.NoError(t, err)
	assert.Contains(t, ans1.Text, "history 0")
	ans2, err := m.Query(context.Background(), id, "q2")
	require.NoError(t, err)
	assert.Contains(t, ans2.Text, "history 1")
}

func TestQuery_FailedTurnNotRecorded(t *testing.T) {
	a := &countingAnswerer{err: fmt.Errorf("%w: llm down", domain.ErrGenerationService)}
	m := NewManager(a, Config{})
	defer m.Close()

	id := NewID()
	_, err := m.Query(context.Background(), id, "q")
	assert.ErrorIs(t, err, domain.ErrGenerationService)
	assert.Empty(t, m.History(id))
}

func TestQuery_SerializedWithinSession(t *testing.T) {
	a := &countingAnswerer{delay: 5 * time.Millisecond}
	m := NewManager(a, Config{})
	defer m.Close()

	id := NewID()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Query(context.Background(), id, fmt.Sprintf("q%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), a.maxInFlight, "same-session queries must not overlap")
	assert.Len(t, m.History(id), 8)
}

func TestQuery_ParallelAcrossSessions(t *testing.T) {
	a := &countingAnswerer{delay: 20 * time.Millisecond}
	m := NewManager(a, Config{})
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Query(context.Background(), fmt.Sprintf("session-%d", i), "q")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Greater(t, a.maxInFlight, int32(1), "distinct sessions should run concurrently")
}

func TestExpiry_RolloverStartsFreshHistory(t *testing.T) {
	m := NewManager(&countingAnswerer{}, Config{IdleTimeout: time.Minute, Policy: PolicyRollover})
	defer m.Close()

	now := time.Now()
	m.now = func() time.Time { return now }

	id := NewID()
	_, err := m.Query(context.Background(), id, "before idle")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Query(context.Background(), id, "after idle")
	require.NoError(t, err)

	turns := m.History(id)
	require.Len(t, turns, 1, "rollover must discard pre-expiry history")
	assert.Equal(t, "after idle", turns[0].Query)
}

func TestExpiry_ErrorPolicyRejectsQuery(t *testing.T) {
	m := NewManager(&countingAnswerer{}, Config{IdleTimeout: time.Minute, Policy: PolicyError})
	defer m.Close()

	now := time.Now()
	m.now = func() time.Time { return now }

	id := NewID()
	_, err := m.Query(context.Background(), id, "first")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = m.Query(context.Background(), id, "too late")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestSweep_EvictsIdleSessions(t *testing.T) {
	m := NewManager(&countingAnswerer{}, Config{IdleTimeout: time.Minute})
	defer m.Close()

	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.Query(context.Background(), "stale", "q")
	require.NoError(t, err)
	now = now.Add(30 * time.Second)
	_, err = m.Query(context.Background(), "fresh", "q")
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	m.sweep()
	assert.Equal(t, 1, m.ActiveSessions())
	assert.Empty(t, m.History("stale"))
	assert.Len(t, m.History("fresh"), 1)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyRollover, p)

	p, err = ParsePolicy("error")
	require.NoError(t, err)
	assert.Equal(t, PolicyError, p)

	_, err = ParsePolicy("bogus")
	assert.ErrorIs(t, err, domain.ErrConfig)
}
