// Package discovery finds which process owns a listening TCP port, so the
// worker can locate or auto-start a local TTS engine. Lookups are
// serialized by a mutex and each one enumerates connections and processes
// afresh; no process table is kept between calls. A panic during a
// lookup is recovered and returned as an error.
package discovery

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// osLevelPrefixes and osLevelSuffixes identify executables that are never
// the real owner of a port — the OS networking stack or a shell wrapper
// sitting between the listener and the process a human would recognize.
var (
	osLevelPrefixes = []string{`C:\Windows\`}
	osLevelSuffixes = []string{"explorer.exe", "ssp.exe"}
)

func isOSLevelExecutable(path string) bool {
	for _, prefix := range osLevelPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	for _, suffix := range osLevelSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Service resolves a listening port to the executable path of the process
// that actually owns it, skipping OS-level wrappers in the parent chain.
// Its mutex serializes lookups; it holds no cached process table.
type Service struct {
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewService builds a discovery service.
func NewService(logger zerolog.Logger) *Service {
	return &Service{logger: logger.With().Str("component", "discovery").Logger()}
}

// OwnerPath returns the executable path of the process that owns port,
// walking up its parent chain past any OS-level wrapper, or "" if nothing
// is listening on port. It recovers from a panic inside gopsutil (seen in
// the wild on permission-denied process reads) by returning an error
// rather than taking the whole worker down with it.
func (s *Service) OwnerPath(ctx context.Context, port int) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("discovery: recovered from panic resolving port %d: %v", port, r)
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return "", fmt.Errorf("discovery: enumerate tcp connections: %w", err)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	var listenerPID int32
	found := false
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) {
			continue
		}
		listenerPID = c.Pid
		found = true
		break
	}
	if !found {
		return "", nil
	}

	return s.walkToNonOSLevelAncestor(ctx, listenerPID)
}

// walkToNonOSLevelAncestor walks up the parent chain from pid, returning
// the executable path of the last non-OS-level process seen before
// reaching an OS-level one (or the top of the tree).
func (s *Service) walkToNonOSLevelAncestor(ctx context.Context, pid int32) (string, error) {
	var lastNonOSLevel string
	current := pid

	for depth := 0; depth < 32 && current > 0; depth++ {
		proc, err := process.NewProcessWithContext(ctx, current)
		if err != nil {
			break
		}
		exePath, err := proc.ExeWithContext(ctx)
		if err != nil {
			break
		}
		if isOSLevelExecutable(exePath) {
			break
		}
		lastNonOSLevel = exePath

		ppid, err := proc.PpidWithContext(ctx)
		if err != nil || ppid == current {
			break
		}
		current = ppid
	}

	return lastNonOSLevel, nil
}

// BootEngine starts engine's executable at path if no running process
// already has that exe path, matching the teacher-domain "boot_engine"
// no-op-if-already-running contract.
func (s *Service) BootEngine(ctx context.Context, path string) error {
	running, err := s.isExecutableRunning(ctx, path)
	if err != nil {
		return err
	}
	if running {
		return nil
	}

	cmd := exec.CommandContext(ctx, path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("discovery: starting %s: %w", path, err)
	}
	return cmd.Process.Release()
}

func (s *Service) isExecutableRunning(ctx context.Context, path string) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("discovery: enumerate processes: %w", err)
	}
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil {
			continue
		}
		if exe == path {
			return true, nil
		}
	}
	return false, nil
}
