package orchestrator

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRunCompletesChain(t *testing.T) {
	orch := New(nil)

	var applied []string
	chain := &Chain{
		Name:        "test-chain",
		AggregateID: "emp-1:2026-03-02",
		Steps: []Step{
			{Name: "one", Apply: func(ctx context.Context) error { applied = append(applied, "one"); return nil }},
			{Name: "two", Apply: func(ctx context.Context) error { applied = append(applied, "two"); return nil }},
		},
	}

	require.NoError(t, orch.Run(context.Background(), chain))
	require.Equal(t, Completed, chain.State())
	require.Equal(t, []string{"one", "two"}, applied)
}

func TestRunCompensatesInReverseOrder(t *testing.T) {
	failures := make(chan *ChainFailure, 1)
	orch := New(failures)

	var compensated []string
	boom := errors.New("queue unavailable")
	chain := &Chain{
		Name:        "test-chain",
		AggregateID: "emp-1:2026-03-02",
		Steps: []Step{
			{
				Name:       "one",
				Apply:      func(ctx context.Context) error { return nil },
				Compensate: func(ctx context.Context) error { compensated = append(compensated, "one"); return nil },
			},
			{
				Name:       "two",
				Apply:      func(ctx context.Context) error { return nil },
				Compensate: func(ctx context.Context) error { compensated = append(compensated, "two"); return nil },
			},
			{
				Name:  "three",
				Apply: func(ctx context.Context) error { return boom },
			},
		},
	}

	err := orch.Run(context.Background(), chain)
	require.Error(t, err)
	require.Equal(t, RolledBack, chain.State())
	require.Equal(t, []string{"two", "one"}, compensated)

	var failure *ChainFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, "three", failure.Step)
	require.ErrorIs(t, err, boom)

	select {
	case reported := <-failures:
		require.Equal(t, failure, reported)
	default:
		t.Fatal("expected a chain failure report")
	}
}

func TestRunSkipsNilCompensations(t *testing.T) {
	orch := New(nil)

	var compensated []string
	chain := &Chain{
		Name:        "test-chain",
		AggregateID: "emp-1:2026-03-02",
		Steps: []Step{
			{
				Name:  "no-undo",
				Apply: func(ctx context.Context) error { return nil },
			},
			{
				Name:       "with-undo",
				Apply:      func(ctx context.Context) error { return nil },
				Compensate: func(ctx context.Context) error { compensated = append(compensated, "with-undo"); return nil },
			},
			{
				Name:  "broken",
				Apply: func(ctx context.Context) error { return errors.New("boom") },
			},
		},
	}

	require.Error(t, orch.Run(context.Background(), chain))
	require.Equal(t, []string{"with-undo"}, compensated)
}

func TestRunRecordsFailedCompensations(t *testing.T) {
	orch := New(nil)

	undoErr := errors.New("undo failed")
	chain := &Chain{
		Name:        "test-chain",
		AggregateID: "emp-1:2026-03-02",
		Steps: []Step{
			{
				Name:       "fragile",
				Apply:      func(ctx context.Context) error { return nil },
				Compensate: func(ctx context.Context) error { return undoErr },
			},
			{
				Name:  "broken",
				Apply: func(ctx context.Context) error { return errors.New("boom") },
			},
		},
	}

	err := orch.Run(context.Background(), chain)
	require.Error(t, err)

	var failure *ChainFailure
	require.ErrorAs(t, err, &failure)
	require.Empty(t, failure.Compensated)
	require.Len(t, failure.CompensationErrs, 1)
	require.ErrorIs(t, failure.CompensationErrs[0], undoErr)
}

func TestChainStateLifecycle(t *testing.T) {
	chain := &Chain{Name: "test-chain"}
	require.Equal(t, Pending, chain.State())
	require.Equal(t, "pending", chain.State().String())

	orch := New(nil)
	require.NoError(t, orch.Run(context.Background(), chain))
	require.Equal(t, "completed", chain.State().String())
}
