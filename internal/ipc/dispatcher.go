package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/ghostspeaker/internal/config"
	"github.com/normanking/ghostspeaker/internal/dialog"
	"github.com/normanking/ghostspeaker/internal/discovery"
	"github.com/normanking/ghostspeaker/internal/pipeline"
	"github.com/normanking/ghostspeaker/internal/segment"
	"github.com/normanking/ghostspeaker/internal/shutdown"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/syncplayback"
	"github.com/normanking/ghostspeaker/internal/voice"
)

// firstSegmentTimeout bounds how long SyncStart blocks waiting for the
// first segment of a line to finish synthesizing before it responds,
// mirroring handle_sync_start's own tokio::time::timeout(30s) around the
// inline first-segment predict call.
const firstSegmentTimeout = 30 * time.Second

const readyPollInterval = 20 * time.Millisecond

// Dispatcher owns the worker side of the stdio protocol: it reads one
// Command at a time, routes it to the relevant pipeline, and writes back
// exactly one Response. It also tracks the single ghost name currently
// driving sync mode, the Go stand-in for WorkerState.sync_ghost_name.
type Dispatcher struct {
	store     *state.Store
	discovery *discovery.Service
	pipeline  *pipeline.Pipeline
	sync      *syncplayback.Coordinator
	shutdown  *shutdown.Coordinator
	logger    zerolog.Logger

	mu            sync.Mutex
	syncGhostName string
}

// New builds a Dispatcher. Every dependency must already be constructed;
// New does not start any background loop itself — the caller (cmd/ghostspeakerd)
// starts them before calling Run.
func New(store *state.Store, discoverySvc *discovery.Service, pl *pipeline.Pipeline, sp *syncplayback.Coordinator, sd *shutdown.Coordinator, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		discovery: discoverySvc,
		pipeline:  pl,
		sync:      sp,
		shutdown:  sd,
		logger:    logger.With().Str("component", "ipc").Logger(),
	}
}

// Run reads the mandatory Init frame, then loops reading and dispatching
// commands until Shutdown/GracefulShutdown is received or stdin is
// closed. After answering GracefulShutdown it runs the shutdown
// coordinator's graceful drain before returning. It returns nil on a
// clean Shutdown/GracefulShutdown/EOF and a non-nil error if
// the first frame was not Init or could not be parsed, matching the
// worker's exit-code-1 contract; the caller is responsible for turning
// that into os.Exit(1).
func (d *Dispatcher) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReaderSize(in, 64*1024)
	writer := bufio.NewWriter(out)

	writeResp := func(resp Response) error {
		b, err := json.Marshal(resp)
		if err != nil {
			return fmt.Errorf("ipc: marshal response: %w", err)
		}
		if _, err := writer.Write(b); err != nil {
			return err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return err
		}
		return writer.Flush()
	}

	line, err := readLine(reader)
	if err != nil {
		return fmt.Errorf("ipc: reading init command: %w", err)
	}

	var initCmd Command
	if err := json.Unmarshal(line, &initCmd); err != nil {
		_ = writeResp(errorResponse(fmt.Sprintf("failed to parse init command: %v", err)))
		return fmt.Errorf("ipc: unparseable init command: %w", err)
	}
	if initCmd.Type != CmdInit {
		_ = writeResp(errorResponse(fmt.Sprintf("expected Init command, got: %s", initCmd.Type)))
		return fmt.Errorf("ipc: first frame was not Init, got %s", initCmd.Type)
	}

	if err := writeResp(d.handleInit(ctx, initCmd)); err != nil {
		return err
	}

	for {
		line, err := readLine(reader)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			if werr := writeResp(errorResponse(fmt.Sprintf("failed to parse command: %v", err))); werr != nil {
				return werr
			}
			continue
		}

		resp := d.handle(ctx, cmd)
		if err := writeResp(resp); err != nil {
			return err
		}
		if cmd.Type == CmdGracefulShutdown {
			d.shutdown.GracefulStop()
			return nil
		}
		if d.store.ShuttingDown() {
			return nil
		}
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if len(line) == 0 {
		return nil, err
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	return trimNewline(line), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// handleInit applies an Init command's config to the store and boots
// every engine marked for auto-start, the same two steps the worker
// takes between receiving Init and answering it. It handles only the
// first frame; an Init arriving later is answered by handle with an
// "already initialized" error and leaves the config unchanged.
func (d *Dispatcher) handleInit(ctx context.Context, cmd Command) Response {
	if cmd.Config == nil {
		return errorResponse("init command missing config")
	}
	applyConfig(d.store, *cmd.Config)
	d.autoStartEngines(ctx)
	d.logger.Debug().Str("dll_dir", cmd.DLLDir).Msg("initialized")
	return ok()
}

// autoStartEngines boots every engine the configuration marks auto-start,
// logging but not failing Init on a boot error.
func (d *Dispatcher) autoStartEngines(ctx context.Context) {
	for _, e := range voice.List {
		if !d.store.EngineAutoStart(e) {
			continue
		}
		path, found := d.store.EnginePath(e)
		if !found || path == "" {
			continue
		}
		if err := d.discovery.BootEngine(ctx, path); err != nil {
			d.logger.Warn().Str("engine", e.Name()).Err(err).Msg("failed to auto-start engine")
			continue
		}
		d.logger.Info().Str("engine", e.Name()).Msg("auto-started engine")
	}
}

func applyConfig(store *state.Store, cfg config.WorkerConfig) {
	store.SetVolume(cfg.Volume)
	store.SetSpeakByPunctuation(cfg.SpeakByPunctuation)
	for name, info := range cfg.GhostsVoices {
		store.SetGhostVoice(name, info)
	}
	store.SetInitialVoice(cfg.InitialVoice)
	for e, auto := range cfg.EngineAutoStart {
		store.SetEngineAutoStart(e, auto)
	}
	for e, path := range cfg.EnginePath {
		store.SetEnginePath(e, path)
	}
}

func (d *Dispatcher) handle(ctx context.Context, cmd Command) Response {
	switch cmd.Type {
	case CmdInit:
		return errorResponse("already initialized")

	case CmdShutdown:
		d.shutdown.Stop()
		return ok()

	case CmdGracefulShutdown:
		// Run performs the drain once this response has been flushed.
		d.logger.Debug().Msg("graceful shutdown requested")
		return ok()

	case CmdSpeakAsync:
		d.pipeline.PushText(cmd.Text, cmd.GhostName)
		return ok()

	case CmdSyncStart:
		return d.handleSyncStart(ctx, cmd.Text, cmd.GhostName)

	case CmdSyncPoll:
		return d.handleSyncPoll(ctx)

	case CmdSyncCancel:
		d.sync.CancelSyncPlayback()
		d.mu.Lock()
		d.syncGhostName = ""
		d.mu.Unlock()
		return ok()

	case CmdPopDialog:
		msg, ok2 := d.store.PopDialog()
		if !ok2 {
			return Response{Type: RespDialog}
		}
		m := msg
		return Response{Type: RespDialog, DialogMessage: &m}

	case CmdGetEngineStatus:
		return d.handleGetEngineStatus()

	case CmdUpdateVolume:
		if cmd.Volume != nil {
			d.store.SetVolume(*cmd.Volume)
		}
		return ok()

	case CmdUpdateSpeakByPunctuation:
		if cmd.Enabled != nil {
			d.store.SetSpeakByPunctuation(*cmd.Enabled)
		}
		return ok()

	case CmdUpdateGhostVoices:
		if cmd.Info != nil {
			d.store.SetGhostVoice(cmd.GhostName, *cmd.Info)
		}
		return ok()

	case CmdUpdateInitialVoice:
		if cmd.Voice != nil {
			d.store.SetInitialVoice(*cmd.Voice)
		}
		return ok()

	case CmdUpdateEngineAutoStart:
		if cmd.Engine != nil && cmd.AutoStart != nil {
			d.store.SetEngineAutoStart(*cmd.Engine, *cmd.AutoStart)
		}
		return ok()

	case CmdBootEngine:
		return d.handleBootEngine(ctx, cmd)

	case CmdForceStopPlayback:
		d.sync.CancelSyncPlayback()
		d.mu.Lock()
		d.syncGhostName = ""
		d.mu.Unlock()
		return ok()

	default:
		return errorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func (d *Dispatcher) handleBootEngine(ctx context.Context, cmd Command) Response {
	if cmd.Engine == nil {
		return errorResponse("boot engine command missing engine")
	}
	path, ok2 := d.store.EnginePath(*cmd.Engine)
	if !ok2 || path == "" {
		return errorResponse(fmt.Sprintf("no path found for engine: %s", cmd.Engine.Name()))
	}
	if err := d.discovery.BootEngine(ctx, path); err != nil {
		return errorResponse(fmt.Sprintf("failed to boot engine: %v", err))
	}
	return ok()
}

func (d *Dispatcher) handleGetEngineStatus() Response {
	connectionStatus := make(map[voice.Engine]bool, len(voice.List))
	for _, e := range voice.List {
		connectionStatus[e] = d.store.ConnectionUp(e)
	}
	enginePaths := make(map[voice.Engine]string)
	engineAutoStart := make(map[voice.Engine]bool)
	for _, e := range voice.List {
		if p, ok2 := d.store.EnginePath(e); ok2 {
			enginePaths[e] = p
		}
		engineAutoStart[e] = d.store.EngineAutoStart(e)
	}
	return Response{
		Type: RespEngineStatus,
		EngineStatus: &EngineStatus{
			SpeakersInfo:     d.store.SpeakersInfo(),
			ConnectionStatus: connectionStatus,
			EnginePaths:      enginePaths,
			EngineAutoStart:  engineAutoStart,
		},
	}
}

// handleSyncStart builds the line's segments; with fewer than two it
// falls back to the asynchronous pipeline entirely (there is nothing to
// stream), otherwise it starts background prediction for the whole line,
// blocks for up to firstSegmentTimeout for the first segment to come
// ready, and spawns its playback before responding — the same shape as
// handle_sync_start's inline first-segment predict.
func (d *Dispatcher) handleSyncStart(ctx context.Context, text, ghostName string) Response {
	segments, err := segment.Build(d.store, text, ghostName, true)
	if err != nil || len(segments) < 2 {
		d.pipeline.PushText(text, ghostName)
		d.mu.Lock()
		d.syncGhostName = ""
		d.mu.Unlock()
		return Response{Type: RespSyncStarted, FirstSegment: nil, HasMore: false}
	}

	firstInfo := segmentInfoFromSegment(segments[0])

	if err := d.sync.SpawnSyncPrediction(ctx, text, ghostName); err != nil {
		d.pipeline.PushText(text, ghostName)
		return Response{Type: RespSyncStarted, FirstSegment: &firstInfo, HasMore: false}
	}

	d.mu.Lock()
	d.syncGhostName = ghostName
	d.mu.Unlock()

	first, hasMore := d.waitForFirstSegment(ctx, ghostName)
	if first == nil {
		// Synthesis did not finish in time; the segment was already
		// built before prediction started, so it is still reported —
		// only the clip is substituted with an empty one so the
		// balloon is not stuck waiting forever.
		d.sync.SpawnSyncPlayback(ctx, nil)
		return Response{Type: RespSyncStarted, FirstSegment: &firstInfo, HasMore: hasMore}
	}

	info := segmentInfoFromReady(*first)
	if !info.IsEllipsis && first.Text != "" {
		d.sync.SpawnSyncPlayback(ctx, first.Wav)
	} else {
		d.sync.SpawnSyncPlayback(ctx, nil)
	}
	return Response{Type: RespSyncStarted, FirstSegment: &info, HasMore: hasMore}
}

// waitForFirstSegment polls PopReadySegment until a segment is ready, the
// line turns out to have nothing more coming, or firstSegmentTimeout
// elapses.
func (d *Dispatcher) waitForFirstSegment(ctx context.Context, ghostName string) (*syncplayback.ReadySegment, bool) {
	deadline := time.Now().Add(firstSegmentTimeout)
	for time.Now().Before(deadline) {
		seg, hasMore := d.sync.PopReadySegment(ghostName)
		if seg != nil {
			return seg, hasMore
		}
		if !hasMore {
			return nil, false
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(readyPollInterval):
		}
	}
	return nil, false
}

// handleSyncPoll advances the sync-mode state machine by one step: is
// the currently playing clip done, is the next segment ready, or is the
// whole line finished. Mirrors handle_sync_poll's three-stage check.
func (d *Dispatcher) handleSyncPoll(ctx context.Context) Response {
	d.mu.Lock()
	ghostName := d.syncGhostName
	d.mu.Unlock()

	if ghostName == "" {
		return Response{Type: RespSyncStatus, State: &SyncStatus{State: SyncStateComplete}}
	}

	if !d.sync.IsSyncAudioDone() {
		return Response{Type: RespSyncStatus, State: &SyncStatus{State: SyncStatePlaying}}
	}

	seg, hasMore := d.sync.PopReadySegment(ghostName)
	if seg != nil {
		info := segmentInfoFromReady(*seg)
		if !info.IsEllipsis && seg.Text != "" {
			d.sync.SpawnSyncPlayback(ctx, seg.Wav)
		}
		if !hasMore {
			d.mu.Lock()
			d.syncGhostName = ""
			d.mu.Unlock()
		}
		return Response{Type: RespSyncStatus, State: &SyncStatus{State: SyncStateReady, Segment: &info, HasMore: hasMore}}
	}

	if !hasMore {
		d.mu.Lock()
		d.syncGhostName = ""
		d.mu.Unlock()
		return Response{Type: RespSyncStatus, State: &SyncStatus{State: SyncStateComplete}}
	}
	return Response{Type: RespSyncStatus, State: &SyncStatus{State: SyncStateWaiting}}
}

func segmentInfoFromSegment(seg segment.Segment) SegmentInfo {
	return SegmentInfo{
		Text:       seg.Text,
		RawText:    seg.RawText,
		Scope:      seg.Scope,
		IsEllipsis: dialog.IsEllipsisSegment(seg.Text),
	}
}

func segmentInfoFromReady(seg syncplayback.ReadySegment) SegmentInfo {
	return SegmentInfo{
		Text:       seg.Text,
		RawText:    seg.RawText,
		Scope:      seg.Scope,
		IsEllipsis: dialog.IsEllipsisSegment(seg.Text),
	}
}
