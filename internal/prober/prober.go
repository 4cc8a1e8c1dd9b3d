// Package prober periodically checks whether each local TTS engine is
// reachable, so the worker knows which engines' voices are safe to
// assign. Its shape — a ticking background loop, one probe per target,
// mutex-guarded result state, a notification on every transition —
// generalizes the teacher's internal/discovery.Service.Start/Scan from
// "poll an HTTP agent card every 30s" to "poll a speaker list every
// second, backing off engines that keep failing."
package prober

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/ghostspeaker/internal/bus"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/tts"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// pollInterval is how often the prober sweeps every engine.
const pollInterval = time.Second

// probeTimeout bounds a single engine's ListSpeakers call, so one wedged
// engine cannot stall the whole sweep.
const probeTimeout = 3 * time.Second

// backoffFailureThreshold is the number of consecutive failures an engine
// must accrue before the prober starts slowing down checks against it.
const backoffFailureThreshold = 10

// engineSet is the slice of *tts.EngineSet the prober needs, narrowed to
// an interface so tests can supply a fake set of engines.
type engineSet interface {
	For(e voice.Engine) tts.Engine
}

// portOwner resolves the process listening on a TCP port, narrowed from
// *discovery.Service so tests can supply a fake.
type portOwner interface {
	OwnerPath(ctx context.Context, port int) (string, error)
}

// Prober sweeps every engine in voice.List on a fixed interval, updating
// store with each engine's reachability and current speaker catalog, and
// publishing a bus event plus a host-facing dialog message on every
// connected/disconnected transition.
type Prober struct {
	store     *state.Store
	engines   engineSet
	discovery portOwner
	eventBus  *bus.EventBus
	logger    zerolog.Logger

	mu       sync.Mutex
	failures map[voice.Engine]int

	wg sync.WaitGroup
}

// New builds a Prober. Run it with Start; it stops when ctx is canceled
// or store.ShuttingDown() is observed true.
func New(store *state.Store, engines engineSet, discovery portOwner, eventBus *bus.EventBus, logger zerolog.Logger) *Prober {
	return &Prober{
		store:     store,
		engines:   engines,
		discovery: discovery,
		eventBus:  eventBus,
		logger:    logger.With().Str("component", "prober").Logger(),
		failures:  make(map[voice.Engine]int),
	}
}

// Start launches the background sweep loop.
func (p *Prober) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Wait blocks until the sweep loop has exited.
func (p *Prober) Wait() {
	p.wg.Wait()
}

func (p *Prober) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		if p.store.ShuttingDown() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		p.sweep(ctx)

		if !p.sleepResponsively(ctx, pollInterval) {
			return
		}
	}
}

// sleepResponsively sleeps in 100ms increments so a cancellation or
// shutdown request lands within 100ms instead of waiting out the full
// interval. Returns false if it was interrupted.
func (p *Prober) sleepResponsively(ctx context.Context, d time.Duration) bool {
	const step = 100 * time.Millisecond
	elapsed := time.Duration(0)
	for elapsed < d {
		if p.store.ShuttingDown() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(step):
			elapsed += step
		}
	}
	return true
}

func (p *Prober) sweep(ctx context.Context) {
	for _, e := range voice.List {
		if p.store.ShuttingDown() {
			return
		}
		p.probeOne(ctx, e)
	}
}

func (p *Prober) probeOne(ctx context.Context, e voice.Engine) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	path, err := p.discovery.OwnerPath(probeCtx, e.Port())
	if err != nil || path == "" {
		// Nothing is listening on the engine's port; skip the catalog
		// call entirely rather than counting this as a failed probe.
		return
	}

	speakers, err := p.engines.For(e).ListSpeakers(probeCtx)
	wasUp := p.store.ConnectionUp(e)

	if err != nil {
		p.recordFailure(e)
		if wasUp {
			p.store.SetConnectionUp(e, false, nil)
			msg := fmt.Sprintf("%s が切断されました", e.Name())
			p.store.PushDialog(msg)
			p.eventBus.Publish(bus.Event{
				Type: bus.EventTypeEngineDisconnected,
				Data: map[string]any{"engine": e.String()},
			})
			p.logger.Info().Str("engine", e.String()).Msg("engine disconnected")
		}
		p.backoffIfNeeded(ctx, e)
		return
	}

	p.clearFailures(e)
	p.store.SetConnectionUp(e, true, speakers)
	if !wasUp {
		p.store.SetEnginePath(e, path)
		p.store.EngineAutoStartDefaultIfUnset(e, false)
		msg := fmt.Sprintf("%s が接続されました", e.Name())
		p.store.PushDialog(msg)
		p.eventBus.Publish(bus.Event{
			Type: bus.EventTypeEngineConnected,
			Data: map[string]any{"engine": e.String()},
		})
		p.logger.Info().Str("engine", e.String()).Msg("engine connected")
	}
}

func (p *Prober) recordFailure(e voice.Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[e]++
}

func (p *Prober) clearFailures(e voice.Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failures, e)
}

func (p *Prober) failureCount(e voice.Engine) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failures[e]
}

// backoffIfNeeded sleeps before returning to the caller if e has failed
// enough consecutive times, widening the gap between checks for an engine
// that is clearly not coming back soon: min(2^(failures/5), 60) seconds.
func (p *Prober) backoffIfNeeded(ctx context.Context, e voice.Engine) {
	failures := p.failureCount(e)
	if failures < backoffFailureThreshold {
		return
	}
	backoff := backoffDuration(failures)
	select {
	case <-ctx.Done():
	case <-time.After(backoff):
	}
}

func backoffDuration(failures int) time.Duration {
	exp := failures / 5
	if exp >= 6 {
		return 60 * time.Second
	}
	seconds := 1 << exp
	if seconds > 60 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}
