// Package orchestrator coordinates the multi-step side-effect chains that
// events trigger. A chain either applies every step or compensates the ones
// that already ran, in reverse order.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the lifecycle of one chain instance.
type State int

const (
	Pending State = iota
	Running
	Completed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Step is one unit of a chain. Apply performs the side effect; Compensate
// semantically undoes it when a later step fails. A nil Compensate marks the
// step as requiring no undo.
type Step struct {
	Name       string
	Apply      func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Chain is an ordered list of steps tied to one aggregate.
type Chain struct {
	Name        string
	AggregateID string
	Steps       []Step

	state State
}

// State reports the chain instance's current lifecycle state.
func (c *Chain) State() State { return c.state }

// ChainFailure reports which step broke a chain and how the rollback went.
// The primary write that triggered the chain is not rolled back; only the
// chain's own side effects are compensated.
type ChainFailure struct {
	Chain       string
	Step        string
	Err         error
	Compensated []string
	// CompensationErrs holds errors from compensating actions that
	// themselves failed; those side effects need operator attention.
	CompensationErrs []error
	At               time.Time
}

func (f *ChainFailure) Error() string {
	return fmt.Sprintf("chain %s failed at step %s: %v", f.Chain, f.Step, f.Err)
}

func (f *ChainFailure) Unwrap() error { return f.Err }

// Orchestrator runs chains and reports failures for operator visibility.
// Steps are never retried here; retry happens only through the outbox
// worker re-dispatching the triggering event.
type Orchestrator struct {
	failures chan<- *ChainFailure
}

// New creates an orchestrator. failures may be nil when no reporting sink is
// wired (tests).
func New(failures chan<- *ChainFailure) *Orchestrator {
	return &Orchestrator{failures: failures}
}

// Run drives a chain to Completed or RolledBack. On step k failing, the
// compensating actions for steps 1..k-1 run in reverse order and the
// returned error is the *ChainFailure naming the failed step.
func (o *Orchestrator) Run(ctx context.Context, chain *Chain) error {
	chain.state = Running
	log.Info().Str("chain", chain.Name).Str("aggregate_id", chain.AggregateID).Msg("Running chain")

	applied := make([]Step, 0, len(chain.Steps))
	for _, step := range chain.Steps {
		if err := step.Apply(ctx); err != nil {
			failure := o.rollback(ctx, chain, step.Name, err, applied)
			chain.state = RolledBack
			return failure
		}
		applied = append(applied, step)
	}

	chain.state = Completed
	log.Info().Str("chain", chain.Name).Str("aggregate_id", chain.AggregateID).Msg("Chain completed")
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, chain *Chain, failedStep string, cause error, applied []Step) *ChainFailure {
	failure := &ChainFailure{
		Chain: chain.Name,
		Step:  failedStep,
		Err:   cause,
		At:    time.Now().UTC(),
	}

	for i := len(applied) - 1; i >= 0; i-- {
		step := applied[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			failure.CompensationErrs = append(failure.CompensationErrs, err)
			log.Error().
				Err(err).
				Str("chain", chain.Name).
				Str("step", step.Name).
				Msg("Compensating action failed")
			continue
		}
		failure.Compensated = append(failure.Compensated, step.Name)
	}

	log.Error().
		Err(cause).
		Str("chain", chain.Name).
		Str("failed_step", failedStep).
		Strs("compensated", failure.Compensated).
		Msg("Chain rolled back")

	if o.failures != nil {
		select {
		case o.failures <- failure:
		default:
			log.Warn().Str("chain", chain.Name).Msg("Chain failure channel full, dropping report")
		}
	}
	return failure
}
