// Command ghostspeakerd is the voice synthesis worker: a subprocess the
// front end spawns, feeds line-framed JSON commands on stdin, and reads
// line-framed JSON responses back on stdout. It never writes anything
// else to stdout; its log goes to a file, and only failures that happen
// before that log file is open are written to stderr.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/normanking/ghostspeaker/internal/audio"
	"github.com/normanking/ghostspeaker/internal/bus"
	"github.com/normanking/ghostspeaker/internal/discovery"
	"github.com/normanking/ghostspeaker/internal/ipc"
	"github.com/normanking/ghostspeaker/internal/logging"
	"github.com/normanking/ghostspeaker/internal/pipeline"
	"github.com/normanking/ghostspeaker/internal/prober"
	"github.com/normanking/ghostspeaker/internal/shutdown"
	"github.com/normanking/ghostspeaker/internal/state"
	"github.com/normanking/ghostspeaker/internal/syncplayback"
	"github.com/normanking/ghostspeaker/internal/tts"
)

func main() {
	os.Exit(run())
}

func run() int {
	stdin := bufio.NewReaderSize(os.Stdin, 64*1024)

	initLine, err := stdin.ReadBytes('\n')
	if len(initLine) == 0 && err != nil {
		fmt.Fprintf(os.Stderr, "failed to read init command: %v\n", err)
		return 1
	}

	var initCmd ipc.Command
	if jerr := json.Unmarshal(bytes.TrimSpace(initLine), &initCmd); jerr != nil {
		fmt.Fprintf(os.Stderr, "failed to parse init command: %v\n", jerr)
		writeErrorResponse(os.Stdout, fmt.Sprintf("failed to parse init command: %v", jerr))
		return 1
	}
	if initCmd.Type != ipc.CmdInit {
		writeErrorResponse(os.Stdout, fmt.Sprintf("expected Init command, got: %s", initCmd.Type))
		return 1
	}

	dllDir := initCmd.DLLDir
	if dllDir == "" {
		dllDir = "."
	}

	logger, err := logging.New(&logging.Config{LogDir: dllDir, Level: logging.LevelDebug})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Close()
	zlog := logger.Zerolog()
	zlog.Info().Str("dll_dir", dllDir).Msg("worker starting")

	store := state.New()
	engines := tts.NewEngineSet()
	eventBus := bus.NewEventBus()

	player, err := audio.NewPlayer(zlog)
	if err != nil {
		zlog.Error().Err(err).Msg("failed to initialize audio player")
		writeErrorResponse(os.Stdout, fmt.Sprintf("failed to initialize audio player: %v", err))
		return 1
	}
	defer player.Close()

	discoverySvc := discovery.NewService(zlog)
	probe := prober.New(store, engines, discoverySvc, eventBus, zlog)
	pl := pipeline.New(store, engines, player, zlog)
	sp := syncplayback.New(store, engines, player, zlog)
	sd := shutdown.New(store, player, sp, pl, zlog)
	dispatcher := ipc.New(store, discoverySvc, pl, sp, sd, zlog)

	ctx := context.Background()

	probeCtx, probeCancel := context.WithCancel(ctx)
	probe.Start(probeCtx)
	sd.Register("prober", probeCancel, probe)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	pl.Start(pipelineCtx)
	sd.Register("pipeline", pipelineCancel, pl)

	// Re-stitch the already-consumed Init line back onto the stream so
	// Run's own Init handshake sees it, applies the config, and answers
	// it exactly once.
	in := io.MultiReader(bytes.NewReader(initLine), stdin)

	if err := dispatcher.Run(ctx, in, os.Stdout); err != nil {
		zlog.Error().Err(err).Msg("command loop exited with error")
		return 1
	}

	zlog.Info().Msg("worker exited cleanly")
	return 0
}

func writeErrorResponse(w io.Writer, message string) {
	b, err := json.Marshal(ipc.Response{Type: ipc.RespError, Message: message})
	if err != nil {
		return
	}
	w.Write(b)
	w.Write([]byte("\n"))
}
