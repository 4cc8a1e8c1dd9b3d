// Package pipeline runs the worker's default, asynchronous speech path:
// text pushed in is split into segments, each segment is synthesized on
// a background predict loop, and finished audio is handed to a separate
// play loop so synthesis for the next line can continue while the
// current one is still being spoken. Two independent FIFOs connected by
// one in-process handoff, the shape the teacher's internal/bridge uses
// for its buffer-then-speak streaming consumer, generalized here from
// one queue to the predict/play pair the pipeline actually needs.
package pipeline

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/ghostspeaker/internal/audio"
	"github.com/normanking/ghostspeaker/internal/segment"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// pollInterval is how often an empty queue is rechecked.
const pollInterval = 100 * time.Millisecond

// idleLogThreshold is how long a queue can sit empty before the pipeline
// logs that it is still alive, mirroring the teacher's own long-idle
// heartbeat logging in streaming consumers.
const idleLogThreshold = 300 * time.Second

// predictRequest is one line of host dialogue queued for synthesis.
type predictRequest struct {
	text      string
	ghostName string
}

// playItem is one synthesized clip waiting to be played.
type playItem struct {
	wav []byte
}

// engineSynth is the slice of *tts.EngineSet the pipeline calls through;
// narrowed to an interface so tests can substitute a fake.
type engineSynth interface {
	Synthesize(ctx context.Context, e voice.Engine, text, speakerUUID string, styleID int, quality voice.VoiceQuality, volumePercent int) ([]byte, error)
}

// Pipeline owns the predict queue, the play queue, and the two
// background loops that drain them.
type Pipeline struct {
	store   *state.Store
	engines engineSynth
	player  *audio.Player
	logger  zerolog.Logger

	predictMu sync.Mutex
	predictQ  *list.List

	playMu  sync.Mutex
	playQ   *list.List
	playing atomic.Bool

	wg sync.WaitGroup
}

// New builds a Pipeline. Start launches its background loops; they run
// until ctx is canceled or store.ShuttingDown() is observed true.
func New(store *state.Store, engines engineSynth, player *audio.Player, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:    store,
		engines:  engines,
		player:   player,
		logger:   logger.With().Str("component", "pipeline").Logger(),
		predictQ: list.New(),
		playQ:    list.New(),
	}
}

// Start launches the predict and play loops.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(2)
	go p.runPredictLoop(ctx)
	go p.runPlayLoop(ctx)
}

// Wait blocks until both background loops have exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// PushText queues a line of host dialogue for asynchronous synthesis and
// playback. It is a no-op once shutdown has been requested, matching
// push_to_prediction's own early return.
func (p *Pipeline) PushText(text, ghostName string) {
	if p.store.ShuttingDown() {
		return
	}
	p.predictMu.Lock()
	p.predictQ.PushBack(predictRequest{text: text, ghostName: ghostName})
	p.predictMu.Unlock()
}

func (p *Pipeline) runPredictLoop(ctx context.Context) {
	defer p.wg.Done()
	lastActivity := time.Now()
	for {
		if p.store.ShuttingDown() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, ok := p.popPredict()
		if !ok {
			if time.Since(lastActivity) > idleLogThreshold {
				p.logger.Debug().Msg("predict queue idle for too long, continuing")
				lastActivity = time.Now()
			}
			if !sleepResponsively(ctx, p.store, pollInterval) {
				return
			}
			continue
		}
		lastActivity = time.Now()
		p.predictOne(ctx, req)
	}
}

func (p *Pipeline) popPredict() (predictRequest, bool) {
	p.predictMu.Lock()
	defer p.predictMu.Unlock()
	front := p.predictQ.Front()
	if front == nil {
		return predictRequest{}, false
	}
	p.predictQ.Remove(front)
	return front.Value.(predictRequest), true
}

func (p *Pipeline) predictOne(ctx context.Context, req predictRequest) {
	segments, err := segment.Build(p.store, req.text, req.ghostName, false)
	if err != nil {
		p.logger.Debug().Err(err).Str("ghost", req.ghostName).Msg("skipping line")
		return
	}

	volumePercent := int(p.store.Volume() * 100)
	for _, seg := range segments {
		if seg.Ellipsis {
			// Nothing downstream is pacing on this pause in the async
			// pipeline, so there is no reason to synthesize it.
			continue
		}
		quality := voice.DefaultVoiceQuality()
		wav, err := p.engines.Synthesize(ctx, seg.Engine, seg.Text, seg.SpeakerUUID, seg.StyleID, quality, volumePercent)
		if err != nil {
			p.logger.Debug().Err(err).Msg("predict failed")
			continue
		}
		p.playMu.Lock()
		p.playQ.PushBack(playItem{wav: wav})
		p.playMu.Unlock()
	}
}

func (p *Pipeline) runPlayLoop(ctx context.Context) {
	defer p.wg.Done()
	lastActivity := time.Now()
	for {
		if p.store.ShuttingDown() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, ok := p.popPlay()
		if !ok {
			if time.Since(lastActivity) > idleLogThreshold {
				p.logger.Debug().Msg("play queue idle for too long, continuing")
				lastActivity = time.Now()
			}
			if !sleepResponsively(ctx, p.store, pollInterval) {
				return
			}
			continue
		}
		lastActivity = time.Now()
		if len(item.wav) == 0 {
			continue
		}
		p.playing.Store(true)
		if err := p.player.PlayWAV(ctx, item.wav, p.store.Volume()); err != nil {
			p.logger.Warn().Err(err).Msg("play_wav failed")
		}
		p.playing.Store(false)
	}
}

// Drained reports whether the play queue is empty and nothing is
// currently being played — the signal a graceful shutdown polls for
// before it falls back to an immediate stop.
func (p *Pipeline) Drained() bool {
	p.playMu.Lock()
	empty := p.playQ.Len() == 0
	p.playMu.Unlock()
	return empty && !p.playing.Load()
}

func (p *Pipeline) popPlay() (playItem, bool) {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	front := p.playQ.Front()
	if front == nil {
		return playItem{}, false
	}
	p.playQ.Remove(front)
	return front.Value.(playItem), true
}

// sleepResponsively sleeps in small steps so shutdown lands promptly
// instead of waiting out the full interval.
func sleepResponsively(ctx context.Context, store *state.Store, d time.Duration) bool {
	const step = 20 * time.Millisecond
	elapsed := time.Duration(0)
	for elapsed < d {
		if store.ShuttingDown() {
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
