package synthetic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/telhawk-systems/flowhawk/common/logging"
	"github.com/telhawk-systems/flowhawk/internal/metrics"
	"github.com/telhawk-systems/flowhawk/internal/models"
)

// Alert sources recorded in alert metadata.
const (
	SourceSeed = "synthetic_seed"
	SourceLive = "synthetic_live"
)

const (
	DefaultSeedCount  = 750
	DefaultRatePerMin = 30
)

// ErrInvalidRate is returned when live emission is asked for a
// non-positive rate.
var ErrInvalidRate = errors.New("rate_per_min must be greater than zero")

// Sink receives generated alerts.
type Sink interface {
	CreateAlert(ctx context.Context, a models.Alert, source string) (*models.Alert, error)
}

// Status reports whether live emission runs and at which rate.
type Status struct {
	Enabled    bool `json:"enabled" yaml:"enabled"`
	RatePerMin int  `json:"rate_per_min" yaml:"rate_per_min"`
}

// Runner drives a Generator into a Sink, either as a one-off seed or as a
// background emitter at a fixed rate.
type Runner struct {
	gen    *Generator
	sink   Sink
	logger *logging.Logger

	mu     sync.Mutex
	rate   int
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner returns a stopped Runner. defaultRate is reported by Status
// until Start is called.
func NewRunner(gen *Generator, sink Sink, defaultRate int, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{gen: gen, sink: sink, rate: defaultRate, logger: logger}
}

// SeedInitial creates n alerts tagged SourceSeed and returns how many were
// stored.
func (r *Runner) SeedInitial(ctx context.Context, n int) (int, error) {
	created := 0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if _, err := r.sink.CreateAlert(ctx, r.gen.Next(), SourceSeed); err != nil {
			return created, fmt.Errorf("failed to seed synthetic alert: %w", err)
		}
		created++
	}
	r.logger.InfoContext(ctx, "seeded synthetic alerts",
		logging.Rows(created),
		logging.Source(SourceSeed),
	)
	return created, nil
}

// Start launches live emission at ratePerMin. It returns false when an
// emitter is already running at that rate; a running emitter with another
// rate is restarted. The emitter outlives ctx cancellation; use Stop.
func (r *Runner) Start(ctx context.Context, ratePerMin int) (bool, error) {
	if ratePerMin <= 0 {
		return false, ErrInvalidRate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running() {
		if r.rate == ratePerMin {
			return false, nil
		}
		r.stopLocked()
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.rate = ratePerMin

	go r.emit(loopCtx, ratePerMin, done)
	metrics.SyntheticEnabled.Set(1)

	r.logger.InfoContext(ctx, "synthetic emitter started", "rate_per_min", ratePerMin)
	return true, nil
}

// Stop halts live emission and waits for the emitter to exit. It reports
// whether an emitter was running.
func (r *Runner) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return false
	}
	r.stopLocked()
	r.logger.Info("synthetic emitter stopped")
	return true
}

// SetEnabled starts or stops emission. A non-positive rate reuses the
// current one.
func (r *Runner) SetEnabled(ctx context.Context, enabled bool, ratePerMin int) (Status, error) {
	if !enabled {
		r.Stop()
		return r.Status(), nil
	}
	if ratePerMin <= 0 {
		r.mu.Lock()
		ratePerMin = r.rate
		r.mu.Unlock()
	}
	if _, err := r.Start(ctx, ratePerMin); err != nil {
		return r.Status(), err
	}
	return r.Status(), nil
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Enabled: r.running(), RatePerMin: r.rate}
}

func (r *Runner) running() bool {
	if r.done == nil {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Runner) stopLocked() {
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
	metrics.SyntheticEnabled.Set(0)
}

func (r *Runner) emit(ctx context.Context, ratePerMin int, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Minute / time.Duration(ratePerMin))
	defer ticker.Stop()

	for {
		if _, err := r.sink.CreateAlert(ctx, r.gen.Next(), SourceLive); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "synthetic alert not stored", logging.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
