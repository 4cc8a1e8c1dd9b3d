// Command ghostspeakerctl is a smoke-test harness for the worker: it
// loads the same vars.yaml the front end would write, spawns
// ghostspeakerd as a subprocess, sends it an Init followed by one
// SpeakAsync, and prints every response line it reads back.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/normanking/ghostspeaker/internal/config"
	"github.com/normanking/ghostspeaker/internal/ipc"
)

type cliConfig struct {
	WorkerPath string
	DLLDir     string
	Text       string
	GhostName  string
	Timeout    time.Duration
}

func main() {
	cfg := parseFlags()

	workerCfg, err := config.Load(cfg.DLLDir)
	if err != nil {
		log.Fatalf("failed to load vars.yaml: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.WorkerPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Fatalf("failed to open worker stdin: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Fatalf("failed to open worker stdout: %v", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}

	writer := bufio.NewWriter(stdin)
	reader := bufio.NewScanner(stdout)

	send := func(c ipc.Command) error {
		b, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if _, err := writer.Write(b); err != nil {
			return err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return err
		}
		return writer.Flush()
	}

	if err := send(ipc.Command{Type: ipc.CmdInit, DLLDir: cfg.DLLDir, Config: workerCfg}); err != nil {
		log.Fatalf("failed to send init command: %v", err)
	}
	printResponse(reader)

	if err := send(ipc.Command{Type: ipc.CmdSpeakAsync, Text: cfg.Text, GhostName: cfg.GhostName}); err != nil {
		log.Fatalf("failed to send speak command: %v", err)
	}
	printResponse(reader)

	if err := send(ipc.Command{Type: ipc.CmdShutdown}); err != nil {
		log.Fatalf("failed to send shutdown command: %v", err)
	}
	printResponse(reader)

	if err := cmd.Wait(); err != nil {
		log.Fatalf("worker exited with error: %v", err)
	}
}

func printResponse(reader *bufio.Scanner) {
	if !reader.Scan() {
		return
	}
	var resp ipc.Response
	if err := json.Unmarshal(reader.Bytes(), &resp); err != nil {
		fmt.Printf("<unparseable response>: %s\n", reader.Text())
		return
	}
	fmt.Printf("-> %s\n", resp.Type)
}

func parseFlags() *cliConfig {
	cfg := &cliConfig{}

	flag.StringVar(&cfg.WorkerPath, "worker", "ghostspeakerd", "path to the ghostspeakerd binary")
	flag.StringVar(&cfg.DLLDir, "dll-dir", ".", "directory holding vars.yaml and the worker log")
	flag.StringVar(&cfg.Text, "text", "\\0\\s[0]こんにちは\\n", "sakura-script dialogue to speak")
	flag.StringVar(&cfg.GhostName, "ghost", "sakura", "ghost name to speak as")
	flag.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "overall timeout for the smoke test")

	flag.Parse()
	return cfg
}
