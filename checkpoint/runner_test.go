package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sicko7947/idemflow"
	"github.com/sicko7947/idemflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRunner(strategy idemflow.CheckpointStrategy, opts ...Option) (*Runner, *store.MemoryCheckpointStorage) {
	storage := store.NewMemoryCheckpointStorage()
	opts = append([]Option{quiet()}, opts...)
	return NewRunner(NewManager(storage, strategy, opts...)), storage
}

func TestRunner_RunAllSteps(t *testing.T) {
	runner, storage := newTestRunner(idemflow.AfterEachNode())

	fetch := NewStep("fetch", func(ctx *StepContext) (int, error) {
		return 2, nil
	})
	double := NewStep("double", func(ctx *StepContext) (int, error) {
		n, err := GetOutput[int](ctx, "fetch")
		return n * 2, err
	})
	save := NewStep("save", func(ctx *StepContext) (string, error) {
		n, err := GetOutput[int](ctx, "double")
		if err != nil {
			return "", err
		}
		return "ok", ctx.SetVar("total", n)
	})

	result, err := runner.Run(context.Background(), "wf-1", fetch, double, save)
	require.NoError(t, err)

	assert.Equal(t, idemflow.WorkflowStateCompleted, result.State)
	assert.False(t, result.Resumed)
	assert.Equal(t, []string{"fetch", "double", "save"}, result.Executed)
	assert.Empty(t, result.Skipped)

	doubled, err := Output[int](result, "double")
	require.NoError(t, err)
	assert.Equal(t, 4, doubled)

	total, err := idemflow.DecodeRaw[int](result.Variables["total"])
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	saved := storage.List("wf-1")
	require.Len(t, saved, 4)
	assert.Equal(t, []string{"fetch"}, saved[0].CompletedNodes)
	assert.Equal(t, idemflow.WorkflowStateRunning, saved[2].State)
	assert.Equal(t, idemflow.WorkflowStateCompleted, saved[3].State)
	assert.Equal(t, []string{"double", "fetch", "save"}, saved[3].CompletedNodes)
	assert.Equal(t, saved[3].CheckpointID, result.CheckpointID)
}

func TestRunner_ResumeAfterFailure(t *testing.T) {
	runner, storage := newTestRunner(idemflow.AfterEachNode())

	var fetchCalls, chargeCalls int32
	failCharge := atomic.Bool{}
	failCharge.Store(true)

	fetch := NewStep("fetch", func(ctx *StepContext) (int, error) {
		atomic.AddInt32(&fetchCalls, 1)
		return 10, ctx.SetVar("attempted", true)
	})
	charge := NewStep("charge", func(ctx *StepContext) (int, error) {
		atomic.AddInt32(&chargeCalls, 1)
		if failCharge.Load() {
			return 0, errors.New("gateway unavailable")
		}
		attempted, err := GetVar[bool](ctx, "attempted")
		if err != nil || !attempted {
			return 0, fmt.Errorf("variable not restored: %v", err)
		}
		amount, err := GetOutput[int](ctx, "fetch")
		return amount + 1, err
	})

	result, err := runner.Run(context.Background(), "wf", fetch, charge)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway unavailable")
	assert.Equal(t, idemflow.WorkflowStateFailed, result.State)

	latest := storage.List("wf")[len(storage.List("wf"))-1]
	assert.Equal(t, idemflow.WorkflowStateFailed, latest.State)
	assert.Equal(t, []string{"fetch"}, latest.CompletedNodes)

	failCharge.Store(false)
	result, err = runner.Run(context.Background(), "wf", fetch, charge)
	require.NoError(t, err)

	assert.True(t, result.Resumed)
	assert.Equal(t, []string{"fetch"}, result.Skipped)
	assert.Equal(t, []string{"charge"}, result.Executed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetchCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&chargeCalls))

	charged, err := Output[int](result, "charge")
	require.NoError(t, err)
	assert.Equal(t, 11, charged)
}

func TestRunner_CompletedWorkflowReturnsImmediately(t *testing.T) {
	runner, storage := newTestRunner(idemflow.AfterEachNode())

	var calls int32
	step := NewStep("only", func(ctx *StepContext) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "done", nil
	})

	_, err := runner.Run(context.Background(), "wf", step)
	require.NoError(t, err)
	before := len(storage.List("wf"))

	result, err := runner.Run(context.Background(), "wf", step)
	require.NoError(t, err)

	assert.Equal(t, idemflow.WorkflowStateCompleted, result.State)
	assert.True(t, result.Resumed)
	assert.Empty(t, result.Executed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Len(t, storage.List("wf"), before)

	out, err := Output[string](result, "only")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestRunner_Retries(t *testing.T) {
	runner, _ := newTestRunner(idemflow.AfterEachNode())

	var attempts []int
	flaky := NewStep("flaky", func(ctx *StepContext) (int, error) {
		attempts = append(attempts, ctx.Attempt)
		if ctx.Attempt < 2 {
			return 0, errors.New("transient")
		}
		return 7, nil
	}, WithRetries(2), WithBackoff(idemflow.BackoffNone))

	result, err := runner.Run(context.Background(), "wf", flaky)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, attempts)

	out, err := Output[int](result, "flaky")
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}

func TestRunner_RetriesExhausted(t *testing.T) {
	runner, storage := newTestRunner(idemflow.AfterEachNode())
	boom := errors.New("boom")

	ok := NewStep("ok", func(ctx *StepContext) (int, error) { return 1, nil })
	broken := NewStep("broken", func(ctx *StepContext) (int, error) {
		return 0, boom
	}, WithRetries(1), WithRetryDelay(time.Millisecond))

	result, err := runner.Run(context.Background(), "wf", ok, broken)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Equal(t, idemflow.WorkflowStateFailed, result.State)
	assert.Equal(t, []string{"ok"}, result.Executed)

	saved := storage.List("wf")
	require.Len(t, saved, 2)
	assert.Equal(t, idemflow.WorkflowStateFailed, saved[1].State)
	assert.Equal(t, []string{"ok"}, saved[1].CompletedNodes)
}

func TestRunner_Panic(t *testing.T) {
	runner, _ := newTestRunner(idemflow.AfterEachNode())

	step := NewStep("explode", func(ctx *StepContext) (int, error) {
		panic("nil map")
	})

	_, err := runner.Run(context.Background(), "wf", step)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step panicked: nil map")
}

func TestRunner_StepTimeout(t *testing.T) {
	runner, _ := newTestRunner(idemflow.AfterEachNode())

	slow := NewStep("slow", func(ctx *StepContext) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}, WithTimeout(10*time.Millisecond))

	_, err := runner.Run(context.Background(), "wf", slow)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunner_CriticalPointsOnly(t *testing.T) {
	runner, storage := newTestRunner(idemflow.CriticalPointsOnly("b"))

	steps := make([]StepExecutor, 0, 4)
	for _, id := range []string{"a", "b", "c", "d"} {
		steps = append(steps, NewStep(id, func(ctx *StepContext) (string, error) {
			return ctx.StepID, nil
		}))
	}

	_, err := runner.Run(context.Background(), "wf", steps...)
	require.NoError(t, err)

	saved := storage.List("wf")
	require.Len(t, saved, 2)
	assert.Equal(t, []string{"a", "b"}, saved[0].CompletedNodes)
	assert.Equal(t, idemflow.WorkflowStateCompleted, saved[1].State)
}

func TestRunner_TimeBased(t *testing.T) {
	clock := newFakeClock()
	runner, storage := newTestRunner(idemflow.TimeBased(30*time.Second), WithClock(clock.Now))

	steps := make([]StepExecutor, 0, 6)
	for i := 1; i <= 6; i++ {
		steps = append(steps, NewStep(fmt.Sprintf("s%d", i), func(ctx *StepContext) (int, error) {
			clock.Advance(10 * time.Second)
			return i, nil
		}))
	}

	_, err := runner.Run(context.Background(), "wf", steps...)
	require.NoError(t, err)

	// s1 has no previous checkpoint, s4 is the first 30s after it
	saved := storage.List("wf")
	require.Len(t, saved, 3)
	assert.Equal(t, []string{"s1"}, saved[0].CompletedNodes)
	assert.Equal(t, []string{"s1", "s2", "s3", "s4"}, saved[1].CompletedNodes)
	assert.Equal(t, 30*time.Second, saved[1].CreatedAt.Sub(saved[0].CreatedAt))
	assert.Equal(t, idemflow.WorkflowStateCompleted, saved[2].State)
}

func TestRunner_Cancellation(t *testing.T) {
	runner, storage := newTestRunner(idemflow.CriticalPointsOnly("never"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var secondCalls int32
	first := NewStep("first", func(ctx *StepContext) (int, error) {
		cancel()
		return 1, nil
	})
	second := NewStep("second", func(ctx *StepContext) (int, error) {
		atomic.AddInt32(&secondCalls, 1)
		return 2, nil
	})

	result, err := runner.Run(ctx, "wf", first, second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, idemflow.WorkflowStateFailed, result.State)
	assert.Equal(t, int32(0), atomic.LoadInt32(&secondCalls))

	saved := storage.List("wf")
	require.Len(t, saved, 1)
	assert.Equal(t, idemflow.WorkflowStateFailed, saved[0].State)
	assert.Equal(t, []string{"first"}, saved[0].CompletedNodes)
}

func TestRunner_MissingValues(t *testing.T) {
	runner, _ := newTestRunner(idemflow.AfterEachNode())

	step := NewStep("probe", func(ctx *StepContext) (bool, error) {
		if ctx.HasOutput("absent") {
			return false, errors.New("unexpected output")
		}
		_, err := GetOutput[int](ctx, "absent")
		if !errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("expected not found, got %v", err)
		}
		_, err = GetVar[string](ctx, "absent")
		if !errors.Is(err, ErrNotFound) {
			return false, fmt.Errorf("expected not found, got %v", err)
		}
		if err := ctx.SetVar("tmp", 1); err != nil {
			return false, err
		}
		ctx.DeleteVar("tmp")
		return true, nil
	})

	result, err := runner.Run(context.Background(), "wf", step)
	require.NoError(t, err)
	assert.NotContains(t, result.Variables, "tmp")
}

func TestRunner_Validation(t *testing.T) {
	runner, _ := newTestRunner(idemflow.AfterEachNode())
	step := NewStep("a", func(ctx *StepContext) (int, error) { return 0, nil })

	_, err := runner.Run(context.Background(), "", step)
	assert.True(t, idemflow.IsValidationError(err))

	_, err = runner.Run(context.Background(), "wf", step, step)
	assert.True(t, idemflow.IsValidationError(err))

	bad, _ := newTestRunner(idemflow.TimeBased(0))
	_, err = bad.Run(context.Background(), "wf", step)
	assert.True(t, idemflow.IsValidationError(err))
}
