package round

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/integrity"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
)

var logger = log.New("round")

// DefaultRounds is the number of rounds a participant runs.
const DefaultRounds = 10

// Opt configures a Runner.
type Opt func(*Runner)

// WithRounds sets how many rounds to run. Zero runs until the coordinator stops.
func WithRounds(n int) Opt {
	return func(r *Runner) {
		if n >= 0 {
			r.rounds = n
		}
	}
}

// WithFirstRound sets the number of the first round.
func WithFirstRound(n int) Opt {
	return func(r *Runner) {
		r.first = n
	}
}

// WithCollectTimeout bounds the wait for the other participants of a round.
func WithCollectTimeout(d time.Duration) Opt {
	return func(r *Runner) {
		r.collectTimeout = d
	}
}

// Runner runs the participant side of each round: wait for the barrier, publish the
// local model, collect and verify the cohort's contributions, hand them to the sink
// and signal completion.
type Runner struct {
	coordinator  Coordinator
	publisher    *integrity.Publisher
	verifier     *integrity.Verifier
	source       ModelSource
	sink         ModelSink
	participants int

	rounds         int
	first          int
	collectTimeout time.Duration
}

// NewRunner creates a Runner expecting participants contributions per round.
func NewRunner(coordinator Coordinator, publisher *integrity.Publisher, verifier *integrity.Verifier,
	source ModelSource, sink ModelSink, participants int, opts ...Opt,
) *Runner {
	r := &Runner{
		coordinator:  coordinator,
		publisher:    publisher,
		verifier:     verifier,
		source:       source,
		sink:         sink,
		participants: participants,
		rounds:       DefaultRounds,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes rounds until the configured count is reached or the coordinator stops.
// A round that collects fewer contributions than expected still delivers what it got.
func (r *Runner) Run(ctx context.Context) error {
	for i := 0; r.rounds == 0 || i < r.rounds; i++ {
		round := r.first + i

		if err := r.coordinator.WaitForStart(ctx); err != nil {
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return fmt.Errorf("wait for round %d: %w", round, err)
		}

		start := time.Now()
		logger.Infoc(ctx, "Round begins", logfields.WithRound(round))

		if err := r.runRound(ctx, round); err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}

		if err := r.coordinator.SignalRoundComplete(ctx); err != nil {
			return fmt.Errorf("signal round %d complete: %w", round, err)
		}

		logger.Infoc(ctx, "Round complete", logfields.WithRound(round), log.WithDuration(time.Since(start)))
	}

	return nil
}

func (r *Runner) runRound(ctx context.Context, round int) error {
	model, err := r.source.Model(ctx, round)
	if err != nil {
		return err
	}

	if _, err = r.publisher.Publish(ctx, round, model); err != nil {
		return err
	}

	collectCtx := ctx
	if r.collectTimeout > 0 {
		var cancel context.CancelFunc
		collectCtx, cancel = context.WithTimeout(ctx, r.collectTimeout)
		defer cancel()
	}

	result, err := r.verifier.Collect(collectCtx, round, r.participants)
	switch {
	case errors.Is(err, fedtrust.ErrPollIncomplete) && ctx.Err() == nil:
		logger.Warnc(ctx, "Round closed with missing contributions", logfields.WithRound(round),
			logfields.WithTarget(r.participants), logfields.WithCount(len(result.Accepted)))
	case err != nil:
		return err
	}

	return r.sink.Deliver(ctx, round, result.Accepted)
}
