// Package shutdown runs registered cleanup steps in priority order when the
// process is asked to stop.
package shutdown

import (
	"cmp"
	"context"
	"errors"
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Shutdownable is a component that can be closed during shutdown.
type Shutdownable interface {
	Close() error
}

// ShutdownFunc is a cleanup step that honors the shutdown deadline.
type ShutdownFunc func(ctx context.Context) error

// Priorities for segment components. Lower runs first.
const (
	PriorityCollector = 10 // Stop producing samples
	PriorityConvert   = 20 // Stop reading payloads
	PriorityStats     = 30 // Emit the final self stats line
	PrioritySink      = 40 // Flush and close output
)

// Coordinator runs registered steps once, lowest priority first. Steps with
// equal priority run in registration order.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu    sync.Mutex
	steps []step

	shutdownOnce sync.Once
	triggerOnce  sync.Once
	shutdownCh   chan struct{}
	err          error
}

type step struct {
	name     string
	priority int
	run      ShutdownFunc
}

// New creates a coordinator. timeout bounds the whole shutdown.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:    timeout,
		logger:     logger.With().Str("component", "shutdown").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a component whose Close runs at the given priority.
func (c *Coordinator) Register(name string, component Shutdownable, priority int) {
	c.add(name, priority, func(context.Context) error { return component.Close() })
}

// RegisterHook adds a cleanup function that runs at the given priority.
func (c *Coordinator) RegisterHook(name string, hook ShutdownFunc, priority int) {
	c.add(name, priority, hook)
}

func (c *Coordinator) add(name string, priority int, run ShutdownFunc) {
	c.mu.Lock()
	c.steps = append(c.steps, step{name: name, priority: priority, run: run})
	c.mu.Unlock()

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown step")
}

// Done is closed once shutdown has been triggered.
func (c *Coordinator) Done() <-chan struct{} {
	return c.shutdownCh
}

// WaitForSignal blocks until SIGINT, SIGTERM or SIGQUIT arrives, ctx is done,
// or TriggerShutdown is called. It returns the signal, or nil otherwise.
func (c *Coordinator) WaitForSignal(ctx context.Context) os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		c.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return sig
	case <-ctx.Done():
		return nil
	case <-c.shutdownCh:
		return nil
	}
}

// TriggerShutdown releases WaitForSignal. Safe for concurrent use.
func (c *Coordinator) TriggerShutdown() {
	c.triggerOnce.Do(func() {
		c.logger.Info().Msg("Programmatic shutdown triggered")
		close(c.shutdownCh)
	})
}

// Shutdown runs every step. Failing steps do not stop later ones; the
// returned error joins all failures. Once the deadline passes the remaining
// steps are skipped. Later calls return the first call's result.
func (c *Coordinator) Shutdown() error {
	c.shutdownOnce.Do(func() {
		c.triggerOnce.Do(func() { close(c.shutdownCh) })

		c.mu.Lock()
		steps := slices.Clone(c.steps)
		c.mu.Unlock()

		slices.SortStableFunc(steps, func(a, b step) int {
			return cmp.Compare(a.priority, b.priority)
		})

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("steps", len(steps)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		start := time.Now()
		var errs []error
		for i, s := range steps {
			if ctx.Err() != nil {
				c.logger.Warn().
					Str("step", s.name).
					Int("skipped", len(steps)-i).
					Msg("Shutdown timeout reached, skipping remaining steps")
				errs = append(errs, ctx.Err())
				break
			}

			if err := s.run(ctx); err != nil {
				c.logger.Error().Err(err).Str("step", s.name).Msg("Shutdown step failed")
				errs = append(errs, err)
				continue
			}
			c.logger.Debug().Str("step", s.name).Msg("Shutdown step complete")
		}

		c.err = errors.Join(errs...)
		c.logger.Info().
			Dur("duration", time.Since(start)).
			Msg("Graceful shutdown complete")
	})

	return c.err
}
