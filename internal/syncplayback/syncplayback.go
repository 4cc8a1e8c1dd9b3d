// Package syncplayback runs the worker's balloon-paced speech path: the
// host pulls one synthesized segment at a time instead of the worker
// playing audio on its own schedule, so a ghost's balloon can display
// text in lockstep with what's being spoken. Prediction for the whole
// line runs ahead in the background, filling a ready queue the host
// drains with PopReadySegment; playback of a clip the host selects runs
// as its own cancelable background task tracked by a generation counter,
// the Go equivalent of the fetch_max-based completion signal queue.rs
// uses since Go's sync/atomic has no fetch_max.
//
// The cancelable-background-task shape (mutex-guarded state, a stored
// CancelFunc, a Cancel method that clears both) follows the teacher's
// own internal/avatar.Controller.Stop and internal/bridge's
// cancelable streaming session.
package syncplayback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/ghostspeaker/internal/audio"
	"github.com/normanking/ghostspeaker/internal/segment"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// predictTimeout bounds a single segment's synthesis call in the sync
// prediction loop, so one wedged engine cannot stall the whole line.
const predictTimeout = 30 * time.Second

// ReadySegment is one segment whose audio (if any) has finished
// synthesizing and is ready for the host to display and play.
type ReadySegment struct {
	Text    string
	RawText string
	Scope   int
	Wav     []byte
}

type playbackState struct {
	readyQueue   []ReadySegment
	ghostName    string
	allPredicted bool
}

// engineSynth is the slice of *tts.EngineSet the coordinator calls
// through; narrowed to an interface so tests can substitute a fake.
type engineSynth interface {
	Synthesize(ctx context.Context, e voice.Engine, text, speakerUUID string, styleID int, quality voice.VoiceQuality, volumePercent int) ([]byte, error)
}

// Coordinator runs one ghost's synchronous predict-then-play cycle at a
// time. Predicting a new line implicitly cancels whatever line was being
// predicted before it; only one playback clip is ever in flight.
type Coordinator struct {
	store   *state.Store
	engines engineSynth
	player  *audio.Player
	logger  zerolog.Logger

	mu            sync.Mutex
	state         *playbackState
	predictCancel context.CancelFunc
	playbackWG    sync.WaitGroup

	generation uint64
	doneGen    uint64
	genMu      sync.Mutex
}

// New builds a Coordinator.
func New(store *state.Store, engines engineSynth, player *audio.Player, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:   store,
		engines: engines,
		player:  player,
		logger:  logger.With().Str("component", "syncplayback").Logger(),
	}
}

// SpawnSyncPrediction builds text's segments for ghostName and starts
// synthesizing them one at a time in the background, pushing each onto
// the ready queue as it finishes. Any prediction already in flight is
// canceled first, matching cancel_sync_playback's "a new line replaces
// whatever was being prepared" semantics.
func (c *Coordinator) SpawnSyncPrediction(ctx context.Context, text, ghostName string) error {
	if c.store.ShuttingDown() {
		return nil
	}

	segments, err := segment.Build(c.store, text, ghostName, true)
	if err != nil {
		return err
	}

	c.CancelSyncPlayback()

	predictCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.state = &playbackState{ghostName: ghostName}
	c.predictCancel = cancel
	c.mu.Unlock()

	go c.runPrediction(predictCtx, segments)
	return nil
}

func (c *Coordinator) runPrediction(ctx context.Context, segments []segment.Segment) {
	for _, seg := range segments {
		if c.store.ShuttingDown() {
			return
		}
		if !c.stateStillLive() {
			return
		}

		var wav []byte
		if !seg.Ellipsis {
			synthCtx, cancel := context.WithTimeout(ctx, predictTimeout)
			result, err := c.engines.Synthesize(synthCtx, seg.Engine, seg.Text, seg.SpeakerUUID, seg.StyleID, voice.DefaultVoiceQuality(), int(c.store.Volume()*100))
			cancel()
			if err != nil {
				c.logger.Debug().Err(err).Msg("sync predict failed")
				wav = nil
			} else {
				wav = result
			}
		}

		// A canceled ctx means a newer line has replaced this one; its
		// state must not receive this line's segments.
		c.mu.Lock()
		if c.state == nil || ctx.Err() != nil {
			c.mu.Unlock()
			return
		}
		c.state.readyQueue = append(c.state.readyQueue, ReadySegment{
			Text:    seg.Text,
			RawText: seg.RawText,
			Scope:   seg.Scope,
			Wav:     wav,
		})
		c.mu.Unlock()
	}

	c.mu.Lock()
	if c.state != nil && ctx.Err() == nil {
		c.state.allPredicted = true
	}
	c.mu.Unlock()
}

func (c *Coordinator) stateStillLive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != nil
}

// PopReadySegment removes and returns the oldest segment ready for
// ghostName, along with whether more segments are still coming (either
// queued already or still being predicted). If ghostName does not match
// the line currently in flight, it returns (nil, false).
func (c *Coordinator) PopReadySegment(ghostName string) (*ReadySegment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil || c.state.ghostName != ghostName {
		return nil, false
	}
	if len(c.state.readyQueue) == 0 {
		return nil, !c.state.allPredicted
	}
	seg := c.state.readyQueue[0]
	c.state.readyQueue = c.state.readyQueue[1:]
	hasMore := len(c.state.readyQueue) > 0 || !c.state.allPredicted
	return &seg, hasMore
}

// CancelSyncPlayback discards whatever line is being predicted or
// queued, aborts the in-flight prediction goroutine, and force-stops any
// clip currently playing.
func (c *Coordinator) CancelSyncPlayback() {
	c.mu.Lock()
	c.state = nil
	cancel := c.predictCancel
	c.predictCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.player.ForceStop()
}

// SpawnSyncPlayback plays wav in the background and records its
// completion against a fresh generation, so IsSyncAudioDone can report
// when the most recently requested clip has finished without blocking on
// it. A no-op (but still bumps the generation, so IsSyncAudioDone does
// not report stale completion) when wav is empty.
func (c *Coordinator) SpawnSyncPlayback(ctx context.Context, wav []byte) {
	if c.store.ShuttingDown() {
		return
	}

	gen := c.nextGeneration()
	c.player.ResetForceStop()
	volume := c.store.Volume()

	c.playbackWG.Add(1)
	go func() {
		defer c.playbackWG.Done()
		if len(wav) > 0 {
			if err := c.player.PlayWAV(ctx, wav, volume); err != nil {
				c.logger.Warn().Err(err).Msg("sync play_wav failed")
			}
		}
		c.markGenerationDone(gen)
	}()
}

// IsSyncAudioDone reports whether every SpawnSyncPlayback call issued so
// far has finished.
func (c *Coordinator) IsSyncAudioDone() bool {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.doneGen >= c.generation
}

// Wait blocks until every spawned playback goroutine has returned. For
// tests and orderly shutdown only; normal operation polls
// IsSyncAudioDone instead of blocking.
func (c *Coordinator) Wait() {
	c.playbackWG.Wait()
}

func (c *Coordinator) nextGeneration() uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.generation++
	return c.generation
}

// markGenerationDone raises doneGen to gen if gen is newer — a
// mutex-guarded stand-in for Rust's AtomicU64::fetch_max, which Go's
// sync/atomic has no equivalent of. Playback tasks can finish out of
// order, and doneGen must only ever move forward.
func (c *Coordinator) markGenerationDone(gen uint64) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if gen > c.doneGen {
		c.doneGen = gen
	}
}
