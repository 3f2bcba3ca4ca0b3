package optimistic

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shopsync/internal/failure"
	"github.com/roach88/shopsync/internal/loop"
	"github.com/roach88/shopsync/internal/notify"
)

func startApplier(t *testing.T, opts ...Option) *Applier {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return New(l, opts...)
}

func wait(t *testing.T, p *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := p.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "mutation never reconciled")
	return err
}

type entity struct {
	ID    int64
	Value string
}

func TestSubmit_DoubleSubmitDispatchesOnce(t *testing.T) {
	a := startApplier(t)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	m := Mutation[entity]{
		Kind:     KindOrderStatus,
		Snapshot: entity{ID: 1},
		Call: func(ctx context.Context, e entity) (entity, error) {
			calls.Add(1)
			<-release
			return e, nil
		},
	}

	first, err := Submit(ctx, a, m)
	require.NoError(t, err)

	second, err := Submit(ctx, a, m)
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Nil(t, second)
	assert.True(t, a.InFlight(KindOrderStatus))

	close(release)
	require.NoError(t, wait(t, first))
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, a.InFlight(KindOrderStatus))

	// Guard cleared: the same kind is accepted again.
	third, err := Submit(ctx, a, m)
	require.NoError(t, err)
	require.NoError(t, wait(t, third))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSubmit_KindsAreIndependent(t *testing.T) {
	a := startApplier(t)
	ctx := context.Background()

	release := make(chan struct{})
	blocking := func(ctx context.Context, e entity) (entity, error) {
		<-release
		return e, nil
	}

	status, err := Submit(ctx, a, Mutation[entity]{Kind: KindOrderStatus, Call: blocking})
	require.NoError(t, err)
	payment, err := Submit(ctx, a, Mutation[entity]{Kind: KindOrderPayment, Call: blocking})
	require.NoError(t, err, "a status update in flight must not block a payment update")

	close(release)
	require.NoError(t, wait(t, status))
	require.NoError(t, wait(t, payment))
}

func TestSubmit_SuccessOrdering(t *testing.T) {
	a := startApplier(t)

	var mu sync.Mutex
	var steps []string
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		steps = append(steps, s)
	}

	reloaded := make(chan struct{})
	p, err := Submit(context.Background(), a, Mutation[entity]{
		Kind:     KindProductEdit,
		Snapshot: entity{ID: 7, Value: "old"},
		Call: func(ctx context.Context, e entity) (entity, error) {
			e.Value = "new"
			return e, nil
		},
		Apply: func(e entity) {
			assert.True(t, a.InFlight(KindProductEdit), "apply runs before the guard is released")
			assert.Equal(t, "new", e.Value)
			record("apply")
		},
		Confirm: func(entity) {
			assert.False(t, a.InFlight(KindProductEdit), "guard released before confirmation")
			record("confirm")
		},
		Reload: func(ctx context.Context) error {
			record("reload")
			close(reloaded)
			return nil
		},
		Reject: func(error) { t.Error("reject called on success") },
	})
	require.NoError(t, err)
	require.NoError(t, wait(t, p))

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("background reload never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"apply", "confirm", "reload"}, steps)
}

func TestSubmit_ReloadDoesNotBlockGuard(t *testing.T) {
	a := startApplier(t)
	ctx := context.Background()

	hold := make(chan struct{})
	m := Mutation[entity]{
		Kind:   KindProductAdd,
		Call:   func(ctx context.Context, e entity) (entity, error) { return e, nil },
		Reload: func(ctx context.Context) error { <-hold; return nil },
	}

	p, err := Submit(ctx, a, m)
	require.NoError(t, err)
	require.NoError(t, wait(t, p))
	assert.False(t, a.InFlight(KindProductAdd))

	p2, err := Submit(ctx, a, m)
	require.NoError(t, err, "a pending reload must not hold the guard")
	require.NoError(t, wait(t, p2))

	drainCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Drain(drainCtx), context.DeadlineExceeded)

	close(hold)
	require.NoError(t, a.Drain(ctx))
}

func TestSubmit_FailureLeavesStateAndDescribes(t *testing.T) {
	rec := &notify.Recorder{}
	bus := notify.NewBus()
	bus.Subscribe(rec.Record)
	a := startApplier(t, WithBus(bus))

	var applied, reloaded atomic.Bool
	var rejected error
	p, err := Submit(context.Background(), a, Mutation[entity]{
		Kind: KindProductDelete,
		Call: func(ctx context.Context, e entity) (entity, error) {
			return e, failure.Rejected(400, []byte(`"Product is referenced by an order"`))
		},
		Apply:  func(entity) { applied.Store(true) },
		Reload: func(context.Context) error { reloaded.Store(true); return nil },
		Reject: func(err error) { rejected = err },
	})
	require.NoError(t, err)

	err = wait(t, p)
	require.Error(t, err)
	assert.True(t, failure.Is(err, failure.KindRemoteRejection))
	assert.Equal(t, err, rejected)
	assert.False(t, applied.Load())
	assert.False(t, reloaded.Load())
	assert.False(t, a.InFlight(KindProductDelete))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.TopicMutationFailed, events[0].Topic)
	assert.Equal(t, "Product is referenced by an order", events[0].Message)
}

func TestSubmit_TransportFailureMessage(t *testing.T) {
	rec := &notify.Recorder{}
	bus := notify.NewBus()
	bus.Subscribe(rec.Record)
	a := startApplier(t, WithBus(bus))

	p, err := Submit(context.Background(), a, Mutation[entity]{
		Kind: KindOrderPlace,
		Call: func(ctx context.Context, e entity) (entity, error) {
			return e, failure.Transport("place order", errors.New("connection refused"))
		},
	})
	require.NoError(t, err)
	require.Error(t, wait(t, p))

	assert.Equal(t, "Server did not respond. Please check your connection.", rec.Events()[0].Message)
}

func TestSubmit_DroppedIsPublished(t *testing.T) {
	rec := &notify.Recorder{}
	bus := notify.NewBus()
	bus.Subscribe(rec.Record)
	a := startApplier(t, WithBus(bus))

	release := make(chan struct{})
	m := Mutation[entity]{
		Kind: KindOrderPayment,
		Call: func(ctx context.Context, e entity) (entity, error) { <-release; return e, nil },
	}
	p, err := Submit(context.Background(), a, m)
	require.NoError(t, err)
	_, err = Submit(context.Background(), a, m)
	require.ErrorIs(t, err, ErrInFlight)

	close(release)
	require.NoError(t, wait(t, p))
	assert.Equal(t, []notify.Topic{notify.TopicMutationDropped, notify.TopicMutationApplied}, rec.Topics())
}

func TestSubmit_SnapshotCapturedAtSubmit(t *testing.T) {
	a := startApplier(t)

	local := entity{ID: 3, Value: "before"}
	start := make(chan struct{})
	var seen entity
	p, err := Submit(context.Background(), a, Mutation[entity]{
		Kind:     KindProductEdit,
		Snapshot: local,
		Call: func(ctx context.Context, e entity) (entity, error) {
			<-start
			seen = e
			return e, nil
		},
	})
	require.NoError(t, err)

	local.Value = "after"
	close(start)
	require.NoError(t, wait(t, p))
	assert.Equal(t, "before", seen.Value)
}

func TestSubmit_CallNotCancelledByCallerContext(t *testing.T) {
	a := startApplier(t)
	ctx, cancel := context.WithCancel(context.Background())

	start := make(chan struct{})
	p, err := Submit(ctx, a, Mutation[entity]{
		Kind: KindOrderPlace,
		Call: func(ctx context.Context, e entity) (entity, error) {
			<-start
			return e, ctx.Err()
		},
	})
	require.NoError(t, err)
	cancel()
	close(start)

	assert.NoError(t, wait(t, p))
}

func TestSubmit_StoppedLoopStillReleasesGuard(t *testing.T) {
	l := loop.New()
	l.Stop()
	a := New(l)

	p, err := Submit(context.Background(), a, Mutation[entity]{
		Kind: KindProductAdd,
		Call: func(ctx context.Context, e entity) (entity, error) { return e, nil },
	})
	require.NoError(t, err)
	require.NoError(t, wait(t, p))
	assert.False(t, a.InFlight(KindProductAdd))
}

func TestSubmit_PanickingApplyReleasesGuard(t *testing.T) {
	rec := &notify.Recorder{}
	bus := notify.NewBus()
	bus.Subscribe(rec.Record)
	a := startApplier(t, WithBus(bus))
	ctx := context.Background()

	var rejected atomic.Bool
	p, err := Submit(ctx, a, Mutation[entity]{
		Kind:   KindProductEdit,
		Call:   func(ctx context.Context, e entity) (entity, error) { return e, nil },
		Apply:  func(entity) { panic("index out of range") },
		Reject: func(error) { rejected.Store(true) },
	})
	require.NoError(t, err)

	err = wait(t, p)
	assert.ErrorContains(t, err, "apply panicked")
	assert.False(t, a.InFlight(KindProductEdit))
	assert.True(t, rejected.Load())
	assert.Equal(t, 1, rec.Count(notify.TopicMutationFailed))
	assert.Equal(t, 0, rec.Count(notify.TopicMutationApplied))

	next, err := Submit(ctx, a, Mutation[entity]{
		Kind: KindProductEdit,
		Call: func(ctx context.Context, e entity) (entity, error) { return e, nil },
	})
	require.NoError(t, err, "the kind must be accepted again")
	require.NoError(t, wait(t, next))
}

func TestSubmit_RequiresCall(t *testing.T) {
	a := startApplier(t)
	_, err := Submit(context.Background(), a, Mutation[entity]{Kind: KindProductAdd})
	assert.Error(t, err)
	assert.False(t, a.InFlight(KindProductAdd))
}

func TestPending_ErrBeforeDone(t *testing.T) {
	p := newPending(KindOrderPlace)
	assert.NoError(t, p.Err())
	assert.Equal(t, KindOrderPlace, p.Kind())

	boom := errors.New("boom")
	p.resolve(boom)
	<-p.Done()
	assert.Equal(t, boom, p.Err())
}
