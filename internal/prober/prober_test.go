package prober

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/ghostspeaker/internal/bus"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/tts"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// fakeEngine returns a canned ListSpeakers result, toggleable mid-test.
type fakeEngine struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeEngine) Synthesize(context.Context, string, string, int, voice.VoiceQuality) ([]byte, error) {
	return nil, nil
}

func (f *fakeEngine) ListSpeakers(context.Context) ([]voice.SpeakerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("engine down")
	}
	return []voice.SpeakerInfo{{SpeakerUUID: "s1"}}, nil
}

func (f *fakeEngine) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

// fakeEngineSet implements engineSet, handing every voice.Engine the same
// fakeEngine so a test can flip connectivity for all of them at once.
type fakeEngineSet struct {
	engine *fakeEngine
}

func (s *fakeEngineSet) For(voice.Engine) tts.Engine { return s.engine }

// fakePortOwner reports every engine's port as owned by a fixed path,
// unless told to report nothing is listening.
type fakePortOwner struct {
	mu      sync.Mutex
	path    string
	nothing bool
}

func (f *fakePortOwner) OwnerPath(context.Context, int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nothing {
		return "", nil
	}
	return f.path, nil
}

func (f *fakePortOwner) setNothingListening(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nothing = v
}

func newFakePortOwner() *fakePortOwner {
	return &fakePortOwner{path: "/opt/engines/fake.exe"}
}

func TestProber_ProbeOne_TransitionsToConnected(t *testing.T) {
	st := state.New()
	eb := bus.NewEventBus()
	fe := &fakeEngine{}
	p := New(st, &fakeEngineSet{engine: fe}, newFakePortOwner(), eb, zerolog.Nop())

	var got bus.Event
	eb.Subscribe(bus.EventTypeEngineConnected, func(e bus.Event) { got = e })

	p.probeOne(context.Background(), voice.CoeiroInkV2)

	assert.True(t, st.ConnectionUp(voice.CoeiroInkV2))
	assert.True(t, st.HasSpeaker(voice.CoeiroInkV2, "s1"))
	msg, ok := st.PopDialog()
	require.True(t, ok)
	assert.Contains(t, msg, "接続")

	// handler ran in a goroutine; give it a moment
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, bus.EventTypeEngineConnected, got.Type)
}

func TestProber_ProbeOne_TransitionsToDisconnected(t *testing.T) {
	st := state.New()
	eb := bus.NewEventBus()
	fe := &fakeEngine{}
	p := New(st, &fakeEngineSet{engine: fe}, newFakePortOwner(), eb, zerolog.Nop())

	p.probeOne(context.Background(), voice.VoiceVox)
	_, _ = st.PopDialog()

	fe.setFail(true)
	p.probeOne(context.Background(), voice.VoiceVox)

	assert.False(t, st.ConnectionUp(voice.VoiceVox))
	assert.False(t, st.HasSpeaker(voice.VoiceVox, "s1"))
	msg, ok := st.PopDialog()
	require.True(t, ok)
	assert.Contains(t, msg, "切断")
}

func TestProber_ProbeOne_NoDuplicateTransitionWhileStillUp(t *testing.T) {
	st := state.New()
	eb := bus.NewEventBus()
	fe := &fakeEngine{}
	p := New(st, &fakeEngineSet{engine: fe}, newFakePortOwner(), eb, zerolog.Nop())

	p.probeOne(context.Background(), voice.ShareVox)
	_, _ = st.PopDialog()

	p.probeOne(context.Background(), voice.ShareVox)
	_, ok := st.PopDialog()
	assert.False(t, ok, "a still-up engine must not push a second connected dialog")
}

func TestProber_ProbeOne_SkipsCatalogWhenNothingListening(t *testing.T) {
	st := state.New()
	eb := bus.NewEventBus()
	fe := &fakeEngine{}
	po := newFakePortOwner()
	po.setNothingListening(true)
	p := New(st, &fakeEngineSet{engine: fe}, po, eb, zerolog.Nop())

	p.probeOne(context.Background(), voice.CoeiroInkV2)

	assert.False(t, st.ConnectionUp(voice.CoeiroInkV2))
	_, ok := st.PopDialog()
	assert.False(t, ok, "no port owner means no catalog probe and no transition")
	assert.Equal(t, 0, p.failureCount(voice.CoeiroInkV2), "an unowned port is not a failed probe")
}

func TestProber_ProbeOne_RecordsEnginePathOnConnect(t *testing.T) {
	st := state.New()
	eb := bus.NewEventBus()
	fe := &fakeEngine{}
	po := newFakePortOwner()
	p := New(st, &fakeEngineSet{engine: fe}, po, eb, zerolog.Nop())

	p.probeOne(context.Background(), voice.CoeiroInkV2)

	path, ok := st.EnginePath(voice.CoeiroInkV2)
	require.True(t, ok)
	assert.Equal(t, po.path, path)
}

func TestBackoffDuration_CapsAtSixty(t *testing.T) {
	assert.Equal(t, 4*time.Second, backoffDuration(10))
	assert.Equal(t, 8*time.Second, backoffDuration(15))
	assert.Equal(t, 60*time.Second, backoffDuration(1000))
}

func TestProber_RecordAndClearFailures(t *testing.T) {
	st := state.New()
	eb := bus.NewEventBus()
	fe := &fakeEngine{fail: true}
	p := New(st, &fakeEngineSet{engine: fe}, newFakePortOwner(), eb, zerolog.Nop())

	for i := 0; i < 3; i++ {
		p.probeOne(context.Background(), voice.Lmroid)
	}
	assert.Equal(t, 3, p.failureCount(voice.Lmroid))

	fe.setFail(false)
	p.probeOne(context.Background(), voice.Lmroid)
	assert.Equal(t, 0, p.failureCount(voice.Lmroid))
}

func TestProber_Start_StopsOnShutdown(t *testing.T) {
	st := state.New()
	eb := bus.NewEventBus()
	fe := &fakeEngine{}
	p := New(st, &fakeEngineSet{engine: fe}, newFakePortOwner(), eb, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	st.SetShuttingDown(true)

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("prober did not stop after shutdown was requested")
	}
}
