package claude

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"prettycode/internal/agent"
	"prettycode/pkg/logger"
)

// process wraps one CLI subprocess with line-oriented JSON pipes. Writes are
// serialized so concurrent goroutines cannot interleave partial frames.
type process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	writeMu sync.Mutex

	stopOnce sync.Once
	stopErr  error
}

// buildArgs assembles the CLI invocation for a streaming session.
func buildArgs(cfg Config) []string {
	args := []string{
		"--print",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", cfg.PermissionMode,
	}
	if cfg.Resume != "" {
		args = append(args, "--resume", cfg.Resume)
	}
	return append(args, cfg.ExtraArgs...)
}

// startProcess spawns the CLI. A missing binary maps to agent.ErrUnavailable
// so callers can surface it as a recoverable condition.
func startProcess(binary string, args []string, dir string) (*process, error) {
	cmd := exec.Command(binary, args...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, agent.ErrUnavailable
		}
		return nil, fmt.Errorf("start agent process: %w", err)
	}

	logger.Info().
		Str("binary", binary).
		Int("pid", cmd.Process.Pid).
		Str("dir", dir).
		Msg("Agent process started")

	go logStderr(stderr, cmd.Process.Pid)

	return &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

// logStderr forwards the CLI's stderr to the log, one line per entry.
func logStderr(r io.Reader, pid int) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		logger.Debug().Int("pid", pid).Str("line", line).Msg("Agent stderr")
	}
}

// writeJSON marshals v and writes it as a single newline-terminated frame.
func (p *process) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal agent frame: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write agent frame: %w", err)
	}
	return nil
}

// readLine reads the next stdout line with surrounding whitespace trimmed.
// An empty line is returned as an empty slice, never an error.
func (p *process) readLine() ([]byte, error) {
	line, err := p.stdout.ReadBytes('\n')
	if err != nil {
		if len(line) > 0 && errors.Is(err, io.EOF) {
			return bytes.TrimSpace(line), nil
		}
		return nil, err
	}
	return bytes.TrimSpace(line), nil
}

// stop shuts the subprocess down: close stdin, SIGTERM, and after the grace
// period SIGKILL. Safe to call more than once.
func (p *process) stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		done := make(chan error, 1)
		go func() {
			done <- p.cmd.Wait()
		}()

		p.writeMu.Lock()
		p.stdin.Close()
		p.writeMu.Unlock()

		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(syscall.SIGTERM)
		}

		select {
		case err := <-done:
			p.stopErr = exitError(err)
			return
		case <-time.After(grace):
		}

		logger.Warn().Int("pid", p.cmd.Process.Pid).Msg("Agent process did not exit, killing")
		_ = p.cmd.Process.Kill()

		select {
		case err := <-done:
			p.stopErr = exitError(err)
		case <-time.After(time.Second):
			p.stopErr = errors.New("agent process did not exit after kill")
		}
	})
	return p.stopErr
}

// exitError filters out the exit statuses a deliberate shutdown produces.
func exitError(err error) error {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return nil
	}
	return err
}
