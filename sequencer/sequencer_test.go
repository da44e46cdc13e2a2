package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bartossh/Rollupis/telemetry"
	"github.com/bartossh/Rollupis/transaction"
	"github.com/bartossh/Rollupis/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type silentLogger struct{}

func (silentLogger) Debug(string) {}
func (silentLogger) Info(string)  {}
func (silentLogger) Warn(string)  {}
func (silentLogger) Error(string) {}
func (silentLogger) Fatal(string) {}

var errTransport = errors.New("connection reset by peer")

// fakeSink persists transactions only when they carry the next sequence.
type fakeSink struct {
	mux         sync.Mutex
	stored      []transaction.Transaction
	rejectNext  int
	loseReplies int
	dropped     int
	failQuery   bool
	querySeq    *int64
	queries     int
}

func (f *fakeSink) last() int64 {
	return int64(len(f.stored)) - 1
}

func (f *fakeSink) SendTransaction(_ context.Context, trx *transaction.Transaction) (int, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.dropped > 0 {
		f.dropped--
		return 0, errTransport
	}
	if f.rejectNext > 0 {
		f.rejectNext--
		return 500, nil
	}
	if trx.Sequence != f.last()+1 {
		return 400, nil
	}
	f.stored = append(f.stored, *trx)
	if f.loseReplies > 0 {
		f.loseReplies--
		return 0, errTransport
	}
	return 200, nil
}

func (f *fakeSink) Sequence(context.Context) (int64, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.queries++
	if f.failQuery {
		return -2, errTransport
	}
	if f.querySeq != nil {
		return *f.querySeq, nil
	}
	return f.last(), nil
}

func newTestCoordinator(t *testing.T, sink Sink) (*Coordinator, *telemetry.Measurements) {
	t.Helper()
	w, err := wallet.New()
	require.Nil(t, err)
	m := telemetry.NewMeasurements()
	c, err := New(Config{}, sink, &w, m, silentLogger{})
	require.Nil(t, err)
	return c, m
}

func assertContiguous(t *testing.T, trxs []transaction.Transaction) {
	t.Helper()
	for i, trx := range trxs {
		assert.Equal(t, int64(i), trx.Sequence)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.Nil(t, Config{}.Validate())
	assert.Nil(t, Config{Users: []string{"a@example.com"}}.Validate())
	assert.ErrorIs(t, Config{Users: []string{"a@example.com", ""}}.Validate(), ErrEmptyUser)
}

func TestStartAdoptsSinkSequence(t *testing.T) {
	seq := int64(4)
	c, _ := newTestCoordinator(t, &fakeSink{querySeq: &seq})
	assert.Equal(t, int64(-1), c.LastSequence())
	c.Start(context.Background())
	assert.Equal(t, int64(4), c.LastSequence())
}

func TestStartKeepsCounterWhenSinkUnknown(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeSink{failQuery: true})
	c.Start(context.Background())
	assert.Equal(t, int64(-1), c.LastSequence())

	seq := int64(-2)
	c, _ = newTestCoordinator(t, &fakeSink{querySeq: &seq})
	c.Start(context.Background())
	assert.Equal(t, int64(-1), c.LastSequence())
}

func TestTickAcceptedAdvancesWithoutQuery(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	c, _ := newTestCoordinator(t, sink)

	for i := 0; i < 10; i++ {
		c.Tick(ctx)
	}

	assert.Equal(t, int64(9), c.LastSequence())
	assert.Equal(t, 0, sink.queries)
	require.Len(t, sink.stored, 10)
	assertContiguous(t, sink.stored)
}

func TestTickGeneratesValidTransactions(t *testing.T) {
	sink := &fakeSink{}
	c, _ := newTestCoordinator(t, sink)
	for i := 0; i < 50; i++ {
		c.Tick(context.Background())
	}

	v := wallet.NewVerifier()
	purchases := make(map[string]struct{})
	for _, trx := range sink.stored {
		assert.Nil(t, trx.Verify(v))
		assert.Equal(t, defaultFranchiseeID, trx.FranchiseeID)
		assert.Contains(t, defaultUsers, trx.UserEmail)
		assert.Contains(t, []transaction.Method{transaction.MethodMileage, transaction.MethodToken}, trx.Method)
		assert.True(t, trx.Amount.IsPositive() || trx.Amount.IsZero())
		assert.True(t, trx.Amount.Exponent() == amountExponent || trx.Amount.IsZero())
		assert.Less(t, trx.Amount.Coefficient().Int64(), int64(maxAmountUnits))
		assert.NotEmpty(t, trx.PurchaseID)
		purchases[trx.PurchaseID] = struct{}{}
	}
	assert.Len(t, purchases, 50)
}

func TestTickRejectedResyncs(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{rejectNext: 1}
	c, _ := newTestCoordinator(t, sink)

	c.Tick(ctx)
	assert.Equal(t, int64(-1), c.LastSequence())
	assert.Equal(t, 1, sink.queries)

	c.Tick(ctx)
	assert.Equal(t, int64(0), c.LastSequence())
}

func TestTickTransportErrorResyncs(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	c, _ := newTestCoordinator(t, sink)
	c.Tick(ctx)
	c.Tick(ctx)

	sink.dropped = 1
	c.Tick(ctx)
	assert.Equal(t, int64(1), c.LastSequence())
	assert.Equal(t, 1, sink.queries)

	c.Tick(ctx)
	assert.Equal(t, int64(2), c.LastSequence())
	assertContiguous(t, sink.stored)
}

func TestTickLostReplyAdoptsPersistedSequence(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{loseReplies: 1}
	c, _ := newTestCoordinator(t, sink)

	c.Tick(ctx)
	assert.Equal(t, int64(0), c.LastSequence())

	c.Tick(ctx)
	assert.Equal(t, int64(1), c.LastSequence())
	require.Len(t, sink.stored, 2)
	assertContiguous(t, sink.stored)
}

func TestTickResyncFailureKeepsCounter(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	c, _ := newTestCoordinator(t, sink)
	c.Tick(ctx)

	sink.rejectNext = 1
	sink.failQuery = true
	c.Tick(ctx)
	assert.Equal(t, int64(0), c.LastSequence())

	sink.failQuery = false
	c.Tick(ctx)
	assert.Equal(t, int64(1), c.LastSequence())
}

func TestTickResyncOverwritesDrift(t *testing.T) {
	ctx := context.Background()
	seq := int64(41)
	sink := &fakeSink{rejectNext: 1, querySeq: &seq}
	c, _ := newTestCoordinator(t, sink)

	c.Tick(ctx)
	assert.Equal(t, int64(41), c.LastSequence())

	lower := int64(3)
	sink.querySeq = &lower
	sink.rejectNext = 1
	c.Tick(ctx)
	assert.Equal(t, int64(3), c.LastSequence())
}

func TestTickSequenceStaysGapless(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	c, _ := newTestCoordinator(t, sink)

	for i := 0; i < 120; i++ {
		switch i % 7 {
		case 2:
			sink.rejectNext = 1
		case 4:
			sink.dropped = 1
		case 5:
			sink.loseReplies = 1
		}
		c.Tick(ctx)
	}

	assert.Equal(t, sink.last(), c.LastSequence())
	assertContiguous(t, sink.stored)
}

func TestTickConcurrentCallsSerialize(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	c, _ := newTestCoordinator(t, sink)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Tick(ctx)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(79), c.LastSequence())
	assertContiguous(t, sink.stored)
}
