package decorator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/clock"
	"github.com/shaiso/Taskflow/internal/task"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// flaky падает failures раз, затем возвращает "ok".
func flaky(failures int) (*task.Func, *int) {
	calls := 0
	f := task.NewFunc("flaky", func() (any, error) {
		calls++
		if calls <= failures {
			return calls, errors.New("flaky failure")
		}
		return "ok", nil
	})
	return f, &calls
}

func TestRetry_SynchronousExhaustion(t *testing.T) {
	inner := task.NewManual("inner")
	r := NewRetry(inner, 3, -1)

	require.NoError(t, r.Run())
	for i := 1; i <= 3; i++ {
		inner.Fail(i, "boom")
		assert.Equal(t, task.StateRunning, r.State())
		assert.Equal(t, i, r.Retries())
		assert.Equal(t, task.StateRunning, inner.State())
	}

	inner.Fail(4, "boom")

	assert.Equal(t, task.StateErrored, r.State())
	assert.Equal(t, 3, r.Retries())
	assert.Equal(t, 4, r.Data())
	assert.Equal(t, "boom", r.ErrorMessage())
}

func TestRetry_InterruptResetsCounter(t *testing.T) {
	inner := task.NewManual("inner")
	r := NewRetry(inner, 3, -1)

	require.NoError(t, r.Run())
	inner.Fail(nil, "boom")
	inner.Fail(nil, "boom")
	require.Equal(t, 2, r.Retries())

	require.NoError(t, r.Interrupt())
	assert.Equal(t, 0, r.Retries())
	assert.Equal(t, task.StateInterrupted, inner.State())

	// После продолжения бюджет снова полный.
	require.NoError(t, r.Run())
	for i := 0; i < 3; i++ {
		inner.Fail(nil, "boom")
	}
	assert.Equal(t, task.StateRunning, r.State())
	inner.Complete("done")
	assert.Equal(t, task.StateCompleted, r.State())
	assert.Equal(t, "done", r.Data())
}

func TestRetry_SucceedsSynchronously(t *testing.T) {
	f, calls := flaky(2)
	r := NewRetry(f, 5, -1)

	require.NoError(t, r.Run())

	assert.Equal(t, task.StateCompleted, r.State())
	assert.Equal(t, "ok", r.Data())
	assert.Equal(t, 2, r.Retries())
	assert.Equal(t, 3, *calls)
}

func TestRetry_DelayedUsesClock(t *testing.T) {
	fake := clock.NewFake(epoch)
	f, calls := flaky(1)
	r := NewRetry(f, 2, 100*time.Millisecond, WithClock(fake))

	require.NoError(t, r.Run())
	assert.Equal(t, task.StateRunning, r.State())
	assert.Equal(t, 1, *calls)

	fake.Advance(99 * time.Millisecond)
	assert.Equal(t, 1, *calls)

	fake.Advance(time.Millisecond)
	assert.Equal(t, 2, *calls)
	assert.Equal(t, task.StateCompleted, r.State())
}

func TestRetry_InterruptStopsPendingTimer(t *testing.T) {
	fake := clock.NewFake(epoch)
	f, calls := flaky(1)
	r := NewRetry(f, 2, 100*time.Millisecond, WithClock(fake))

	require.NoError(t, r.Run())
	require.NoError(t, r.Interrupt())
	assert.Equal(t, 0, fake.Pending())

	fake.Advance(time.Second)
	assert.Equal(t, 1, *calls)

	// Продолжение перезапускает упавшую задачу.
	require.NoError(t, r.Run())
	assert.Equal(t, 2, *calls)
	assert.Equal(t, task.StateCompleted, r.State())
}

func TestRetry_ExponentialBackoff(t *testing.T) {
	r := NewRetry(task.NewManual("m"), 5, 100*time.Millisecond,
		WithClock(clock.NewFake(epoch)),
		WithExponentialBackoff(300*time.Millisecond),
	)

	want := []time.Duration{100, 200, 300, 300}
	for i, w := range want {
		r.retries = i + 1
		assert.Equal(t, w*time.Millisecond, r.nextDelay(), "retry %d", i+1)
	}
}

func TestRetry_MissingClock(t *testing.T) {
	r := NewRetry(task.NewManual("m"), 1, time.Second)
	require.NoError(t, r.Run())

	assert.Equal(t, task.StateErrored, r.State())
	assert.ErrorIs(t, r.Err(), ErrNoClock)
}

func TestRetry_ExternalInnerInterrupt(t *testing.T) {
	inner := task.NewManual("inner")
	r := NewRetry(inner, 1, -1)

	require.NoError(t, r.Run())
	require.NoError(t, inner.Interrupt())

	assert.Equal(t, task.StateInterrupted, r.State())
}

func TestTimeout_Fires(t *testing.T) {
	fake := clock.NewFake(epoch)
	inner := task.NewManual("inner")
	to := NewTimeout(inner, time.Second, WithClock(fake))

	require.NoError(t, to.Run())
	fake.Advance(999 * time.Millisecond)
	assert.Equal(t, task.StateRunning, to.State())

	fake.Advance(time.Millisecond)
	assert.Equal(t, task.StateErrored, to.State())
	assert.Equal(t, task.StateInterrupted, inner.State())

	var timeoutErr *task.TimeoutError
	require.ErrorAs(t, to.Err(), &timeoutErr)
	assert.Equal(t, time.Second, timeoutErr.After)
}

func TestTimeout_CompletesBeforeDeadline(t *testing.T) {
	fake := clock.NewFake(epoch)
	inner := task.NewManual("inner")
	to := NewTimeout(inner, time.Second, WithClock(fake))

	require.NoError(t, to.Run())
	fake.Advance(500 * time.Millisecond)
	inner.Complete("fast")

	assert.Equal(t, task.StateCompleted, to.State())
	assert.Equal(t, "fast", to.Data())
	assert.Equal(t, 0, fake.Pending())
}

func TestTimeout_ForwardsInnerError(t *testing.T) {
	sentinel := errors.New("inner failed")
	inner := task.NewFunc("inner", func() (any, error) { return nil, sentinel })
	to := NewTimeout(inner, time.Second, WithClock(clock.NewFake(epoch)))

	require.NoError(t, to.Run())

	assert.Equal(t, task.StateErrored, to.State())
	assert.Same(t, sentinel, to.Err())
}

func TestTimeout_PreservesRemainingAcrossInterrupt(t *testing.T) {
	fake := clock.NewFake(epoch)
	inner := task.NewManual("inner")
	to := NewTimeout(inner, time.Second, WithClock(fake))

	require.NoError(t, to.Run())
	fake.Advance(600 * time.Millisecond)
	require.NoError(t, to.Interrupt())
	assert.Equal(t, 400*time.Millisecond, to.Remaining())

	fake.Advance(10 * time.Second)
	assert.Equal(t, task.StateInterrupted, to.State())

	require.NoError(t, to.Run())
	fake.Advance(399 * time.Millisecond)
	assert.Equal(t, task.StateRunning, to.State())
	fake.Advance(time.Millisecond)
	assert.Equal(t, task.StateErrored, to.State())
}

func TestTimeout_RestartOnResume(t *testing.T) {
	fake := clock.NewFake(epoch)
	inner := task.NewManual("inner")
	to := NewTimeout(inner, time.Second, WithClock(fake), RestartOnResume())

	require.NoError(t, to.Run())
	fake.Advance(600 * time.Millisecond)
	require.NoError(t, to.Interrupt())

	require.NoError(t, to.Run())
	fake.Advance(900 * time.Millisecond)
	assert.Equal(t, task.StateRunning, to.State())
	fake.Advance(100 * time.Millisecond)
	assert.Equal(t, task.StateErrored, to.State())
}

func TestFailsafe(t *testing.T) {
	tests := []struct {
		name     string
		fn       func() (any, error)
		wantData any
	}{
		{"success keeps data", func() (any, error) { return "data", nil }, "data"},
		{"error drops data", func() (any, error) { return "partial", errors.New("boom") }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFailsafe(task.NewFunc("inner", tt.fn))
			require.NoError(t, f.Run())

			assert.Equal(t, task.StateCompleted, f.State())
			assert.Equal(t, tt.wantData, f.Data())
			assert.NoError(t, f.Err())
		})
	}
}

func TestFailsafe_MissingInner(t *testing.T) {
	f := NewFailsafe(nil)
	require.NoError(t, f.Run())

	assert.Equal(t, task.StateErrored, f.State())
	assert.ErrorIs(t, f.Err(), task.ErrMissingTask)
}

func TestFailsafe_ResetResetsInner(t *testing.T) {
	inner := task.NewManual("inner")
	f := NewFailsafe(inner)

	require.NoError(t, f.Run())
	inner.Fail(nil, "boom")
	require.NoError(t, f.Reset())

	assert.Equal(t, task.StateInitialized, inner.State())
	assert.Equal(t, task.StateInitialized, f.State())
}

func TestFactory_BuildsOnFirstRun(t *testing.T) {
	var gotArgs []any
	f := NewFactory(func(args ...any) (task.Task, error) {
		gotArgs = args
		return task.NewManual("built"), nil
	}, "a", 1)

	assert.Nil(t, f.Inner())
	require.NoError(t, f.Run())

	require.NotNil(t, f.Inner())
	assert.Equal(t, []any{"a", 1}, gotArgs)
	assert.Equal(t, task.StateRunning, f.Inner().State())

	f.Inner().(*task.Manual).Complete("v")
	assert.Equal(t, task.StateCompleted, f.State())
	assert.Equal(t, "v", f.Data())
}

func TestFactory_AlreadyCompletedInner(t *testing.T) {
	done := task.NewManual("done")
	require.NoError(t, done.Run())
	done.Complete("early")

	f := NewDeferredFactory(func() (task.Task, error) { return done, nil })
	require.NoError(t, f.Run())

	assert.Equal(t, task.StateCompleted, f.State())
	assert.Equal(t, "early", f.Data())
}

func TestFactory_ReusesFailedInstance(t *testing.T) {
	var built []*task.Manual
	f := NewDeferredFactory(func() (task.Task, error) {
		m := task.NewManual("m")
		built = append(built, m)
		return m, nil
	})

	require.NoError(t, f.Run())
	built[0].Fail(nil, "boom")
	require.Equal(t, task.StateErrored, f.State())

	require.NoError(t, f.Reset())
	require.NoError(t, f.Run())

	assert.Len(t, built, 1)
	assert.Equal(t, 2, built[0].Runs())
}

func TestFactory_RecreateAfterError(t *testing.T) {
	var built []*task.Manual
	f := NewDeferredFactory(func() (task.Task, error) {
		m := task.NewManual("m")
		built = append(built, m)
		return m, nil
	}).RecreateAfterError()

	require.NoError(t, f.Run())
	built[0].Fail(nil, "boom")

	require.NoError(t, f.Reset())
	require.NoError(t, f.Run())

	require.Len(t, built, 2)
	assert.Same(t, built[1], f.Inner())
	assert.Equal(t, 0, built[0].ListenerCount(task.EventFinal))

	// Старый экземпляр больше не влияет на фабрику.
	built[1].Complete("second")
	assert.Equal(t, task.StateCompleted, f.State())
	assert.Equal(t, 2, f.Built())
}

func TestFactory_RecreateOnReset(t *testing.T) {
	var built []*task.Manual
	f := NewDeferredFactory(func() (task.Task, error) {
		m := task.NewManual("m")
		built = append(built, m)
		return m, nil
	}).RecreateOnReset()

	require.NoError(t, f.Run())
	built[0].Complete("first")
	require.Equal(t, task.StateCompleted, f.State())

	require.NoError(t, f.Reset())
	assert.Nil(t, f.Inner())
	require.NoError(t, f.Run())

	require.Len(t, built, 2)
	built[1].Complete("second")
	assert.Equal(t, "second", f.Data())
}

func TestFactory_NilTask(t *testing.T) {
	f := NewDeferredFactory(func() (task.Task, error) { return nil, nil })
	require.NoError(t, f.Run())

	assert.Equal(t, task.StateErrored, f.State())
	var structural *task.StructuralError
	require.ErrorAs(t, f.Err(), &structural)
	assert.ErrorIs(t, f.Err(), task.ErrMissingTask)
}

func TestFactory_InnerInterruptedExternally(t *testing.T) {
	m := task.NewManual("m")
	f := NewDeferredFactory(func() (task.Task, error) { return m, nil })

	require.NoError(t, f.Run())
	require.NoError(t, m.Interrupt())
	assert.Equal(t, task.StateInterrupted, f.State())

	require.NoError(t, f.Run())
	assert.Equal(t, task.StateRunning, m.State())
}
