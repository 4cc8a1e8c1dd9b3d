// Package audio drives local WAV playback for the synthesized speech the
// tts engines return. Device handling follows the same malgo lifecycle
// askidmobile-AIWisper's capture.go uses for the opposite direction
// (InitContext once, InitDevice/Start per clip, Uninit when done).
package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"
)

// pollInterval is how often PlayWAV checks for a force-stop or shutdown
// signal while a clip is playing.
const pollInterval = 50 * time.Millisecond

// MaxPlayTime bounds how long a single clip may play before PlayWAV gives
// up on it, guarding against a corrupt or absurdly long WAV wedging the
// play queue open.
const MaxPlayTime = 60 * time.Second

// Player streams decoded WAV clips to the default output device one at a
// time. It is not safe for concurrent PlayWAV calls; the pipeline package
// serializes playback through a single play queue.
type Player struct {
	ctx       *malgo.AllocatedContext
	logger    zerolog.Logger
	forceStop atomic.Bool
}

// NewPlayer initializes the shared malgo context used by every clip this
// Player plays. Callers must call Close when the worker shuts down.
func NewPlayer(logger zerolog.Logger) (*Player, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: init malgo context: %w", err)
	}
	return &Player{
		ctx:    mctx,
		logger: logger.With().Str("component", "audio").Logger(),
	}, nil
}

// Close releases the malgo context. Call once, after the last PlayWAV
// returns.
func (p *Player) Close() {
	if p.ctx != nil {
		p.ctx.Uninit()
		p.ctx.Free()
	}
}

// ForceStop aborts whatever clip is currently in PlayWAV. The flag stays
// set until a poll tick consumes it or ResetForceStop clears it, so a
// ForceStop called between clips aborts the next clip on its first tick
// unless ResetForceStop runs first.
func (p *Player) ForceStop() {
	p.forceStop.Store(true)
}

// ResetForceStop clears a pending ForceStop that was never consumed by a
// PlayWAV call — needed before starting a fresh clip after a cancellation
// landed between clips rather than during one, so the next PlayWAV does
// not abort immediately on its first poll tick.
func (p *Player) ResetForceStop() {
	p.forceStop.Store(false)
}

// PlayWAV decodes wavBytes and streams it to the output device at volume
// (0.0-1.0), blocking until the clip finishes, ctx is canceled, ForceStop
// is observed, or MaxPlayTime elapses. An empty wavBytes is a deliberate
// no-op: BouyomiChan's adapter always returns one, since BouyomiChan plays
// audio itself once it receives the speak command over TCP.
func (p *Player) PlayWAV(ctx context.Context, wavBytes []byte, volume float64) error {
	if len(wavBytes) == 0 {
		return nil
	}

	decoder := wav.NewDecoder(bytes.NewReader(wavBytes))
	if !decoder.IsValidFile() {
		return fmt.Errorf("audio: not a valid wav file")
	}
	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("audio: decode wav: %w", err)
	}
	floatBuf := pcm.AsFloatBuffer()
	samples := make([]float32, len(floatBuf.Data))
	for i, v := range floatBuf.Data {
		samples[i] = float32(v) * float32(volume)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(floatBuf.Format.NumChannels)
	deviceConfig.SampleRate = uint32(floatBuf.Format.SampleRate)

	var cursor int
	done := make(chan struct{})
	var closeOnce sync.Once
	finish := func() { closeOnce.Do(func() { close(done) }) }

	onSendFrames := func(pOutputSample, _ []byte, frameCount uint32) {
		channels := int(deviceConfig.Playback.Channels)
		want := int(frameCount) * channels
		remaining := len(samples) - cursor
		if remaining <= 0 {
			finish()
			return
		}
		n := want
		if n > remaining {
			n = remaining
		}
		for i := 0; i < n; i++ {
			bits := math.Float32bits(samples[cursor+i])
			o := i * 4
			pOutputSample[o] = byte(bits)
			pOutputSample[o+1] = byte(bits >> 8)
			pOutputSample[o+2] = byte(bits >> 16)
			pOutputSample[o+3] = byte(bits >> 24)
		}
		cursor += n
		if cursor >= len(samples) {
			finish()
		}
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSendFrames})
	if err != nil {
		return fmt.Errorf("audio: init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("audio: start playback device: %w", err)
	}
	defer device.Stop()

	deadline := time.NewTimer(MaxPlayTime)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			p.logger.Warn().Msg("playback exceeded maximum duration, stopping")
			return nil
		case <-ticker.C:
			if p.forceStop.CompareAndSwap(true, false) {
				return nil
			}
		}
	}
}
