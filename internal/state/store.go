// Package state holds the worker's process-wide mutable state: per-engine
// connectivity and speaker catalogs, per-ghost voice assignments, and the
// handful of global settings every pipeline reads. One Store, one
// sync.RWMutex — the same single-struct-single-lock discipline the
// teacher's internal/audio.Manager and internal/discovery.Service use,
// scaled up to the worker's wider (but still flat) set of global tables.
package state

import (
	"sync"
	"sync/atomic"

	"github.com/normanking/ghostspeaker/internal/voice"
)

// Store holds every piece of state more than one component reads or
// writes. Callers snapshot what they need under the lock and release it
// before doing any blocking work (an HTTP call, a wav decode, a playback
// wait) — never hold the lock across an await, the one discipline that
// matters most here since Go's mutex (unlike Rust's) offers no poisoning
// safety net if a holder panics.
type Store struct {
	mu sync.RWMutex

	volume             float64
	speakByPunctuation bool
	ghostsVoices       map[string]voice.GhostVoiceInfo
	initialVoice       voice.CharacterVoice

	enginePath      map[voice.Engine]string
	engineAutoStart map[voice.Engine]bool
	speakersInfo    map[voice.Engine][]voice.SpeakerInfo
	connectionUp    map[voice.Engine]bool

	connectionDialogs []string

	shuttingDown atomic.Bool
}

// New builds a Store with the teacher-domain defaults: full volume,
// punctuation-based splitting enabled, no engines yet known to be up.
func New() *Store {
	return &Store{
		volume:             1.0,
		speakByPunctuation: true,
		ghostsVoices:       make(map[string]voice.GhostVoiceInfo),
		initialVoice:       voice.NoVoice(),
		enginePath:         make(map[voice.Engine]string),
		engineAutoStart:    make(map[voice.Engine]bool),
		speakersInfo:       make(map[voice.Engine][]voice.SpeakerInfo),
		connectionUp:       make(map[voice.Engine]bool),
	}
}

// Volume returns the current global playback volume (0.0-1.0).
func (s *Store) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// SetVolume updates the global playback volume.
func (s *Store) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

// SpeakByPunctuation reports whether dialogue is split at sentence
// punctuation before being queued.
func (s *Store) SpeakByPunctuation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speakByPunctuation
}

// SetSpeakByPunctuation updates the punctuation-splitting setting.
func (s *Store) SetSpeakByPunctuation(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakByPunctuation = v
}

// GhostVoice returns the voice configuration for ghostName, if any.
func (s *Store) GhostVoice(ghostName string) (voice.GhostVoiceInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.ghostsVoices[ghostName]
	return v, ok
}

// SetGhostVoice assigns ghostName's voice configuration.
func (s *Store) SetGhostVoice(ghostName string, v voice.GhostVoiceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ghostsVoices[ghostName] = v
}

// InitialVoice returns the fallback voice used when a scope has no
// assigned speaker.
func (s *Store) InitialVoice() voice.CharacterVoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialVoice
}

// SetInitialVoice updates the fallback voice.
func (s *Store) SetInitialVoice(v voice.CharacterVoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialVoice = v
}

// EnginePath returns the configured executable path for e, if known.
func (s *Store) EnginePath(e voice.Engine) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.enginePath[e]
	return p, ok
}

// SetEnginePath records where e's executable lives, for BootEngine.
func (s *Store) SetEnginePath(e voice.Engine, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enginePath[e] = path
}

// EngineAutoStart reports whether e should be launched automatically when
// not found running.
func (s *Store) EngineAutoStart(e voice.Engine) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engineAutoStart[e]
}

// SetEngineAutoStart updates e's auto-start setting.
func (s *Store) SetEngineAutoStart(e voice.Engine, auto bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engineAutoStart[e] = auto
}

// EngineAutoStartDefaultIfUnset sets e's auto-start to def only if no
// value has been recorded yet, matching the prober's "first successful
// connection picks a default" behavior.
func (s *Store) EngineAutoStartDefaultIfUnset(e voice.Engine, def bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.engineAutoStart[e]; !ok {
		s.engineAutoStart[e] = def
	}
}

// ConnectionUp reports whether e's speaker list was reachable as of the
// most recent probe.
func (s *Store) ConnectionUp(e voice.Engine) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionUp[e]
}

// ConnectedEngines returns every engine currently marked reachable.
func (s *Store) ConnectedEngines() []voice.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []voice.Engine
	for e, up := range s.connectionUp {
		if up {
			result = append(result, e)
		}
	}
	return result
}

// SetConnectionUp records e's reachability, and the speaker catalog
// fetched alongside it. Passing up=false clears the stored catalog, since
// a disconnected engine's catalog is no longer trustworthy.
func (s *Store) SetConnectionUp(e voice.Engine, up bool, speakers []voice.SpeakerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionUp[e] = up
	if up {
		s.speakersInfo[e] = speakers
	} else {
		delete(s.speakersInfo, e)
	}
}

// HasSpeaker reports whether speakerUUID appears in e's last-known
// catalog — used to skip a dialogue segment assigned to a voice the
// engine no longer (or never did) recognize.
func (s *Store) HasSpeaker(e voice.Engine, speakerUUID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sp := range s.speakersInfo[e] {
		if sp.SpeakerUUID == speakerUUID {
			return true
		}
	}
	return false
}

// SpeakersInfo returns a snapshot of every engine's current speaker
// catalog, for reporting to the host via GetEngineStatus.
func (s *Store) SpeakersInfo() map[voice.Engine][]voice.SpeakerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[voice.Engine][]voice.SpeakerInfo, len(s.speakersInfo))
	for e, sp := range s.speakersInfo {
		snapshot[e] = sp
	}
	return snapshot
}

// PushDialog appends a message to the connection-dialog queue (for
// example, "COEIROINKv2 が接続されました").
func (s *Store) PushDialog(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionDialogs = append(s.connectionDialogs, message)
}

// PopDialog removes and returns the oldest pending dialog message, or ""
// and false if the queue is empty.
func (s *Store) PopDialog() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connectionDialogs) == 0 {
		return "", false
	}
	msg := s.connectionDialogs[0]
	s.connectionDialogs = s.connectionDialogs[1:]
	return msg, true
}

// ShuttingDown reports whether shutdown has been initiated.
func (s *Store) ShuttingDown() bool {
	return s.shuttingDown.Load()
}

// SetShuttingDown marks shutdown as initiated (or, for init_queues-style
// resets, clears it). It is an atomic.Bool, not lock-guarded state,
// because every hot loop in internal/pipeline and internal/prober checks
// it on every iteration and a read lock there would contend with every
// other Store access.
func (s *Store) SetShuttingDown(v bool) {
	s.shuttingDown.Store(v)
}

// Reset clears every table back to its New() defaults — the worker-domain
// equivalent of queue.rs's init_queues resetting all global state before
// starting a fresh set of background loops.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = 1.0
	s.speakByPunctuation = true
	s.ghostsVoices = make(map[string]voice.GhostVoiceInfo)
	s.initialVoice = voice.NoVoice()
	s.enginePath = make(map[voice.Engine]string)
	s.engineAutoStart = make(map[voice.Engine]bool)
	s.speakersInfo = make(map[voice.Engine][]voice.SpeakerInfo)
	s.connectionUp = make(map[voice.Engine]bool)
	s.connectionDialogs = nil
	s.shuttingDown.Store(false)
}
