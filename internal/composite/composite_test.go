package composite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Taskflow/internal/task"
)

func manuals(names ...string) []*task.Manual {
	out := make([]*task.Manual, len(names))
	for i, n := range names {
		out[i] = task.NewManual(n)
	}
	return out
}

func TestComposite_ParallelStartsAll(t *testing.T) {
	m := manuals("a", "b")
	c := NewComposite(true, m[0], m[1])

	require.NoError(t, c.Run())
	assert.Equal(t, task.StateRunning, m[0].State())
	assert.Equal(t, task.StateRunning, m[1].State())

	m[1].Complete("b")
	assert.Equal(t, task.StateRunning, c.State())
	m[0].Complete("a")

	assert.Equal(t, task.StateCompleted, c.State())
	assert.Equal(t, []any{"a", "b"}, c.Data())
}

func TestComposite_FailFastInterruptsSiblings(t *testing.T) {
	m := manuals("a", "b")
	c := NewComposite(true, m[0], m[1])

	require.NoError(t, c.Run())
	m[0].Fail("bad", "a failed")

	assert.Equal(t, task.StateErrored, c.State())
	assert.Equal(t, task.StateInterrupted, m[1].State())
	assert.Equal(t, "a failed", c.ErrorMessage())
	assert.Equal(t, "bad", c.Data())
}

func TestComposite_ForwardsChildError(t *testing.T) {
	sentinel := errors.New("sentinel")
	c := NewComposite(false, task.NewFunc("f", func() (any, error) { return nil, sentinel }))

	require.NoError(t, c.Run())
	assert.Same(t, sentinel, c.Err())
}

func TestComposite_SerialOrder(t *testing.T) {
	m := manuals("a", "b", "c")
	c := NewComposite(false, m[0], m[1], m[2])

	require.NoError(t, c.Run())
	assert.Equal(t, task.StateRunning, m[0].State())
	assert.Equal(t, task.StateInitialized, m[1].State())

	m[0].Complete(nil)
	assert.Equal(t, task.StateRunning, m[1].State())
	assert.Equal(t, task.StateInitialized, m[2].State())

	m[1].Complete(nil)
	m[2].Complete(nil)
	assert.Equal(t, task.StateCompleted, c.State())
}

func TestComposite_SerialSynchronousChildren(t *testing.T) {
	var order []string
	step := func(name string) task.Task {
		return task.NewFunc(name, func() (any, error) {
			order = append(order, name)
			return name, nil
		})
	}
	c := NewComposite(false, step("1"), step("2"), step("3"))

	require.NoError(t, c.Run())

	assert.Equal(t, task.StateCompleted, c.State())
	assert.Equal(t, []string{"1", "2", "3"}, order)
}

func TestComposite_Empty(t *testing.T) {
	c := NewComposite(true)
	require.NoError(t, c.Run())
	assert.Equal(t, task.StateCompleted, c.State())
}

func TestComposite_InterruptAndResume(t *testing.T) {
	m := manuals("a", "b")
	c := NewComposite(true, m[0], m[1])

	require.NoError(t, c.Run())
	m[0].Complete(nil)
	require.NoError(t, c.Interrupt())

	assert.Equal(t, task.StateInterrupted, c.State())
	assert.Equal(t, task.StateCompleted, m[0].State())
	assert.Equal(t, task.StateInterrupted, m[1].State())

	require.NoError(t, c.Run())
	assert.Equal(t, 1, m[0].Runs())
	assert.Equal(t, 2, m[1].Runs())

	m[1].Complete(nil)
	assert.Equal(t, task.StateCompleted, c.State())
}

func TestComposite_ChildInterruptedExternally(t *testing.T) {
	m := manuals("a", "b")
	c := NewComposite(true, m[0], m[1])

	require.NoError(t, c.Run())
	require.NoError(t, m[0].Interrupt())

	assert.Equal(t, task.StateInterrupted, c.State())
	assert.Equal(t, task.StateInterrupted, m[1].State())
}

func TestComposite_ResetClearsChildren(t *testing.T) {
	m := manuals("a", "b")
	c := NewComposite(true, m[0], m[1])

	require.NoError(t, c.Run())
	m[0].Fail(nil, "boom")
	require.NoError(t, c.Reset())

	assert.Equal(t, task.StateInitialized, c.State())
	assert.Empty(t, c.Completed())
	assert.Empty(t, c.Errored())
	assert.Equal(t, task.StateInitialized, m[0].State())
	assert.Equal(t, task.StateInitialized, m[1].State())
}

func TestComposite_AddWhileRunning(t *testing.T) {
	m := manuals("a", "b", "c")

	parallel := NewComposite(true, m[0])
	require.NoError(t, parallel.Run())
	parallel.Add(m[1])
	assert.Equal(t, task.StateRunning, m[1].State())

	serial := NewComposite(false, task.NewManual("x"))
	require.NoError(t, serial.Run())
	serial.Add(m[2])
	assert.Equal(t, task.StateInitialized, m[2].State())
}

func TestComposite_RemoveReevaluates(t *testing.T) {
	m := manuals("a", "b")
	c := NewComposite(true, m[0], m[1])

	require.NoError(t, c.Run())
	m[0].Complete(nil)
	c.Remove(m[1])

	assert.Equal(t, task.StateInterrupted, m[1].State())
	assert.Equal(t, task.StateCompleted, c.State())
	assert.Equal(t, 1, c.Len())
}

func TestComposite_Progress(t *testing.T) {
	m := manuals("a", "b", "c")
	inner := NewComposite(true, m[1], m[2])
	c := NewComposite(false, m[0], inner)

	assert.Equal(t, 3, c.OperationsCount())
	require.NoError(t, c.Run())
	m[0].Complete(nil)
	m[1].Complete(nil)

	assert.Equal(t, 2, c.CompletedOperationsCount())
}

func TestStopOnSuccess_FirstSuccessWins(t *testing.T) {
	m := manuals("a", "b")
	s := NewStopOnSuccess(true, m[0], m[1])

	require.NoError(t, s.Run())
	m[0].Complete("winner")

	assert.Equal(t, task.StateCompleted, s.State())
	assert.Equal(t, "winner", s.Data())
	// Остальные не трогаются.
	assert.Equal(t, task.StateRunning, m[1].State())
	assert.Equal(t, 0, m[1].Interrupts())
}

func TestStopOnSuccess_ErrorsAfterAll(t *testing.T) {
	m := manuals("a", "b")
	s := NewStopOnSuccess(true, m[0], m[1])

	require.NoError(t, s.Run())
	m[0].Fail(nil, "a failed")
	assert.Equal(t, task.StateRunning, s.State())

	m[1].Fail("b-data", "b failed")
	assert.Equal(t, task.StateErrored, s.State())
	assert.Equal(t, "b failed", s.ErrorMessage())
	assert.Equal(t, "b-data", s.Data())
}

func TestStopOnSuccess_SerialFallback(t *testing.T) {
	m := manuals("primary", "fallback")
	s := NewStopOnSuccess(false, m[0], m[1])

	require.NoError(t, s.Run())
	assert.Equal(t, task.StateInitialized, m[1].State())

	m[0].Fail(nil, "primary failed")
	assert.Equal(t, task.StateRunning, m[1].State())

	m[1].Complete("ok")
	assert.Equal(t, task.StateCompleted, s.State())
	assert.Equal(t, "ok", s.Data())
}

func TestStopOnSuccess_ResetInterruptsLeftovers(t *testing.T) {
	m := manuals("a", "b")
	s := NewStopOnSuccess(true, m[0], m[1])

	require.NoError(t, s.Run())
	m[0].Complete(nil)
	require.NoError(t, s.Reset())

	assert.Equal(t, 1, m[1].Interrupts())
	assert.Equal(t, task.StateInitialized, m[1].State())
}

func TestObserver_CompletesWhenAllComplete(t *testing.T) {
	m := manuals("a", "b")
	o := NewObserver(false, m[0], m[1])

	require.NoError(t, o.Run())
	assert.Equal(t, 0, m[0].Runs())

	require.NoError(t, m[0].Run())
	require.NoError(t, m[1].Run())
	m[0].Complete(1)
	assert.Equal(t, task.StateRunning, o.State())
	m[1].Complete(2)

	assert.Equal(t, task.StateCompleted, o.State())
	assert.Equal(t, []any{1, 2}, o.Data())
}

func TestObserver_Immediate(t *testing.T) {
	empty := NewObserver(true)
	require.NoError(t, empty.Run())
	assert.Equal(t, task.StateCompleted, empty.State())

	done := task.NewManual("done")
	require.NoError(t, done.Run())
	done.Fail("x", "boom")

	o := NewObserver(false, done)
	require.NoError(t, o.Run())
	assert.Equal(t, task.StateErrored, o.State())
	assert.Equal(t, "x", o.Data())
}

func TestObserver_FailFast(t *testing.T) {
	m := manuals("a", "b")
	for _, x := range m {
		require.NoError(t, x.Run())
	}

	o := NewObserver(true, m[0], m[1])
	require.NoError(t, o.Run())
	m[1].Fail(nil, "b failed")

	assert.Equal(t, task.StateErrored, o.State())
	assert.Equal(t, task.StateRunning, m[0].State())
}

func TestObserver_WaitsForAllWithoutFailFast(t *testing.T) {
	m := manuals("a", "b")
	for _, x := range m {
		require.NoError(t, x.Run())
	}

	o := NewObserver(false, m[0], m[1])
	require.NoError(t, o.Run())
	m[0].Fail("first", "a failed")
	assert.Equal(t, task.StateRunning, o.State())

	m[1].Complete(nil)
	assert.Equal(t, task.StateErrored, o.State())
	assert.Equal(t, "first", o.Data())
}

func TestObserver_RemoveReevaluates(t *testing.T) {
	m := manuals("a", "b")
	for _, x := range m {
		require.NoError(t, x.Run())
	}

	o := NewObserver(false, m[0], m[1])
	require.NoError(t, o.Run())
	m[0].Complete(nil)
	o.Remove(m[1])

	assert.Equal(t, task.StateCompleted, o.State())
	assert.Equal(t, 0, m[1].ListenerCount(task.EventFinal))
}
