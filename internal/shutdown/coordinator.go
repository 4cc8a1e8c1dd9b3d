// Package shutdown coordinates tearing down the worker's background
// pipelines. It follows the teacher's own internal/avatar.Controller.Stop
// idiom — cancel a context, stop a ticker, let the goroutine observe it —
// generalized from "one animation loop" to "every pipeline, with a bounded
// wait for them to notice," and the two-level immediate/graceful split
// from original_source/worker/src/queue.rs's stop_queues.
package shutdown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/ghostspeaker/internal/state"
)

// ImmediateTimeout bounds how long Stop waits for background loops to
// notice the shutdown flag before giving up and returning anyway.
const ImmediateTimeout = 8 * time.Second

// GracefulDrainTimeout bounds how long GracefulStop waits for the play
// queue to empty out on its own before falling back to Stop.
const GracefulDrainTimeout = 60 * time.Second

const drainPollInterval = 200 * time.Millisecond

// forceStopper is the single method Stop needs from the audio player: an
// immediate abort of whatever clip is currently playing.
type forceStopper interface {
	ForceStop()
}

// cancelablePlayback is the subset of *syncplayback.Coordinator Stop
// needs, narrowed to an interface to avoid a direct package dependency.
type cancelablePlayback interface {
	CancelSyncPlayback()
}

// drainer reports whether a pipeline's queues are empty and nothing is
// currently playing. *pipeline.Pipeline implements this.
type drainer interface {
	Drained() bool
}

// waiter blocks until a background loop has fully exited.
type waiter interface {
	Wait()
}

// component is one background loop the coordinator tracks: its own
// cancel function plus something to wait on for it to finish.
type component struct {
	name   string
	cancel context.CancelFunc
	wait   waiter
}

// Coordinator tears down every registered background component on
// request, either immediately or after giving the play queue a chance to
// drain on its own.
type Coordinator struct {
	store    *state.Store
	player   forceStopper
	sync     cancelablePlayback
	pipeline drainer
	logger   zerolog.Logger

	mu         sync.Mutex
	components []component
}

// New builds a Coordinator. player and sync may be nil if the worker has
// none configured yet (tests); pipeline may be nil if graceful draining
// is not needed.
func New(store *state.Store, player forceStopper, sync cancelablePlayback, pipeline drainer, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		player:   player,
		sync:     sync,
		pipeline: pipeline,
		logger:   logger.With().Str("component", "shutdown").Logger(),
	}
}

// Register adds a background component to be canceled and waited on at
// shutdown. cancel stops its context; wait blocks until it has returned.
func (c *Coordinator) Register(name string, cancel context.CancelFunc, wait waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components = append(c.components, component{name: name, cancel: cancel, wait: wait})
}

// Stop performs the immediate-stop sequence: mark shutdown, force-stop
// playback, cancel every registered component, wait up to
// ImmediateTimeout for them to exit, then return regardless. Go
// goroutines cannot be forcibly aborted the way the teacher's original
// tokio tasks are; letting the bounded wait expire and returning anyway
// is this worker's equivalent of that abort — the caller proceeds with
// process exit either way, so a goroutine that outlives the wait is
// harmless.
func (c *Coordinator) Stop() {
	c.logger.Debug().Msg("stopping")
	c.store.SetShuttingDown(true)

	if c.sync != nil {
		c.sync.CancelSyncPlayback()
	}
	if c.player != nil {
		c.player.ForceStop()
	}

	c.mu.Lock()
	components := append([]component(nil), c.components...)
	c.mu.Unlock()

	for _, comp := range components {
		if comp.cancel != nil {
			comp.cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		for _, comp := range components {
			comp.wait.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		c.logger.Debug().Msg("all components stopped gracefully")
	case <-time.After(ImmediateTimeout):
		c.logger.Warn().Msg("immediate-stop timeout elapsed, proceeding anyway")
	}
}

// GracefulStop waits up to GracefulDrainTimeout for the pipeline's play
// queue to empty on its own, then runs the immediate-stop sequence.
// Matches the host detaching its side of the pipe without waiting after
// a GracefulShutdown command: the worker keeps speaking whatever was
// already queued, then tears down.
func (c *Coordinator) GracefulStop() {
	if c.pipeline != nil {
		deadline := time.Now().Add(GracefulDrainTimeout)
		for time.Now().Before(deadline) {
			if c.pipeline.Drained() {
				break
			}
			time.Sleep(drainPollInterval)
		}
	}
	c.Stop()
}
