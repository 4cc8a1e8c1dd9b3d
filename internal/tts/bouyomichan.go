package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/normanking/ghostspeaker/internal/voice"
)

// bouyomiChanAddr is fixed to the BouyomiChan port; unlike the HTTP engines
// there is no request/response body, just a binary command header. It is a
// var, not a const, so tests can redirect it at a local listener.
var bouyomiChanAddr = "127.0.0.1:50001"

const bouyomiChanExecutableName = "BouyomiChan.exe"

// BouyomiChan speaks through a running 棒読みちゃん instance over its raw
// TCP control protocol. BouyomiChan plays audio itself once it receives a
// speak command; the worker never gets WAV bytes back, so Synthesize
// always returns an empty slice on success.
type BouyomiChan struct {
	dialTimeout time.Duration
}

// NewBouyomiChan builds a BouyomiChan adapter.
func NewBouyomiChan() *BouyomiChan {
	return &BouyomiChan{dialTimeout: ConnectTimeout}
}

// The wire header is six little-endian int16 fields (command, speed, tone,
// volume, voice, char code) followed by the message length. BouyomiChan
// runs only on 64-bit Windows, where the length field's native width is 8
// bytes, so it is written as a uint64.

// Synthesize speaks text immediately at full volume. Callers that need to
// honor the worker's global volume setting should use SpeakWithVolume
// instead; the pipeline does, since volume is worker-global state that
// does not travel through voice.VoiceQuality.
func (b *BouyomiChan) Synthesize(ctx context.Context, text string, speakerUUID string, styleID int, quality voice.VoiceQuality) ([]byte, error) {
	return nil, b.SpeakWithVolume(ctx, text, styleID, 100)
}

// SpeakWithVolume sends a BouyomiChan speak command carrying an explicit
// playback volume (0-100), as computed from the worker's global volume
// setting by the caller.
func (b *BouyomiChan) SpeakWithVolume(ctx context.Context, text string, styleID int, volumePercent int16) error {
	dialer := &net.Dialer{Timeout: b.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", bouyomiChanAddr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer conn.Close()

	msg := []byte(text)
	var buf bytes.Buffer
	fields := []int16{1, -1, -1, volumePercent, int16(styleID), 0}
	for _, field := range fields {
		if err := binary.Write(&buf, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("tts: encode bouyomichan header: %w", err)
		}
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(msg))); err != nil {
		return fmt.Errorf("tts: encode bouyomichan message length: %w", err)
	}
	buf.Write(msg)

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: writing to bouyomichan: %v", ErrSynthesisFailed, err)
	}
	return nil
}

// bouyomiChanStyle is one of BouyomiChan's eight hardcoded voice presets;
// it has no speaker-discovery API, so the catalog is a fixed table gated
// on whether the process is actually running.
type bouyomiChanStyle struct {
	id   int
	name string
}

var bouyomiChanStyles = []bouyomiChanStyle{
	{1, "女性1"},
	{2, "女性2"},
	{3, "男性1"},
	{4, "男性2"},
	{5, "中性"},
	{6, "ロボット"},
	{7, "機械1"},
	{8, "機械2"},
}

const bouyomiChanUUID = "bouyomichan"

func (b *BouyomiChan) ListSpeakers(ctx context.Context) ([]voice.SpeakerInfo, error) {
	running, err := isProcessRunning(bouyomiChanExecutableName)
	if err != nil {
		return nil, fmt.Errorf("tts: checking bouyomichan process: %w", err)
	}
	if !running {
		return nil, fmt.Errorf("%w: %s is not running", ErrEngineUnavailable, bouyomiChanExecutableName)
	}

	styles := make([]voice.Style, 0, len(bouyomiChanStyles))
	for _, s := range bouyomiChanStyles {
		name, id := s.name, s.id
		styles = append(styles, voice.Style{StyleName: &name, StyleID: &id})
	}
	return []voice.SpeakerInfo{{
		SpeakerName: "棒読みちゃん",
		SpeakerUUID: bouyomiChanUUID,
		Styles:      styles,
	}}, nil
}

func isProcessRunning(name string) (bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, err
	}
	for _, p := range procs {
		n, err := p.Name()
		if err != nil {
			continue
		}
		if n == name {
			return true, nil
		}
	}
	return false, nil
}
