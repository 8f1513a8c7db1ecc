package bridge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/creack/pty"

	"github.com/asheshgoplani/opsdeck/internal/protocol"
)

// ProcessKind distinguishes the connection's shell from its aux process.
type ProcessKind string

const (
	KindShell ProcessKind = "shell"
	KindAux   ProcessKind = "aux"
)

// ProcessSpec is everything needed to spawn one process.
type ProcessSpec struct {
	Kind    ProcessKind
	Name    string
	Command string
	Args    []string
	Env     []string
	Dir     string
	UsePTY  bool
}

// OutputFunc receives raw output chunks. Chunks are never split or merged.
type OutputFunc func(stream protocol.Stream, chunk []byte)

// ManagedProcess is a child process running in its own process group so
// signals reach whatever it spawned.
type ManagedProcess struct {
	spec ProcessSpec
	cmd  *exec.Cmd

	stdinMu sync.Mutex
	stdin   io.WriteCloser
	ptmx    *os.File

	done     chan struct{}
	exitCode int

	stopOnce sync.Once
}

// Spawn starts spec and streams its output to out. onExit runs once,
// after all output has been delivered, with the exit code.
func Spawn(spec ProcessSpec, out OutputFunc, onExit func(code int)) (*ManagedProcess, error) {
	if spec.Command == "" {
		return nil, errors.New("command is empty")
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Dir = spec.Dir

	p := &ManagedProcess{spec: spec, cmd: cmd, done: make(chan struct{})}

	if spec.UsePTY {
		// pty.Start makes the child a session leader, which also gives it
		// its own process group.
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("start %s pty: %w", spec.Name, err)
		}
		p.ptmx = ptmx
		p.stdin = ptmx
		go p.wait([]io.Reader{ptmx}, []protocol.Stream{p.stdoutStream()}, out, onExit)
		return p, nil
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdin: %w", spec.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout: %w", spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stderr: %w", spec.Name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	p.stdin = stdin

	go p.wait(
		[]io.Reader{stdout, stderr},
		[]protocol.Stream{p.stdoutStream(), p.stderrStream()},
		out, onExit,
	)
	return p, nil
}

func (p *ManagedProcess) stdoutStream() protocol.Stream {
	if p.spec.Kind == KindAux {
		return protocol.StreamAux
	}
	return protocol.StreamStdout
}

func (p *ManagedProcess) stderrStream() protocol.Stream {
	if p.spec.Kind == KindAux {
		return protocol.StreamAux
	}
	return protocol.StreamStderr
}

// wait drains every output reader before reaping, so exit is always
// reported after the last chunk.
func (p *ManagedProcess) wait(readers []io.Reader, streams []protocol.Stream, out OutputFunc, onExit func(int)) {
	var wg sync.WaitGroup
	for i, r := range readers {
		wg.Add(1)
		go func(r io.Reader, stream protocol.Stream) {
			defer wg.Done()
			buf := make([]byte, 4096)
			var carry []byte
			for {
				n, err := r.Read(buf)
				if n > 0 && out != nil {
					chunk := append(carry, buf[:n]...)
					cut := completeRunes(chunk)
					carry = append([]byte(nil), chunk[cut:]...)
					if cut > 0 {
						out(stream, chunk[:cut])
					}
				}
				if err != nil {
					if len(carry) > 0 && out != nil {
						out(stream, carry)
					}
					return
				}
			}
		}(r, streams[i])
	}
	wg.Wait()

	err := p.cmd.Wait()
	p.exitCode = exitCodeOf(err, p.cmd.ProcessState)
	if p.ptmx != nil {
		_ = p.ptmx.Close()
	}
	close(p.done)
	if onExit != nil {
		onExit(p.exitCode)
	}
}

// completeRunes returns the length of b without a trailing UTF-8 sequence
// that the next read may still complete. Chunks travel as JSON strings, so
// a rune split across two chunks would otherwise decode as two U+FFFD.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

// exitCodeOf maps a Wait result to a shell-style code: 128+N when killed
// by signal N.
func exitCodeOf(err error, state *os.ProcessState) int {
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return state.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// PID returns the child's pid.
func (p *ManagedProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ManagedProcess) Name() string { return p.spec.Name }

func (p *ManagedProcess) Kind() ProcessKind { return p.spec.Kind }

// Alive reports whether the process has not been reaped yet.
func (p *ManagedProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and its output is drained.
func (p *ManagedProcess) Done() <-chan struct{} { return p.done }

// ExitCode is valid after Done is closed.
func (p *ManagedProcess) ExitCode() int {
	<-p.done
	return p.exitCode
}

// Write sends data to the process's stdin.
func (p *ManagedProcess) Write(data []byte) error {
	if !p.Alive() {
		return errors.New("process is not running")
	}
	p.stdinMu.Lock()
	defer p.stdinMu.Unlock()
	_, err := p.stdin.Write(data)
	return err
}

// Signal delivers sig to the process group, falling back to the process
// itself when the group cannot be resolved.
func (p *ManagedProcess) Signal(sig syscall.Signal) error {
	if !p.Alive() {
		return errors.New("process is not running")
	}
	pid := p.PID()
	if pgid, err := syscall.Getpgid(pid); err == nil {
		return syscall.Kill(-pgid, sig)
	}
	return p.cmd.Process.Signal(sig)
}

// Stop closes stdin, sends SIGTERM to the group and escalates to SIGKILL
// after grace, without blocking. Interactive shells ignore SIGTERM but
// exit on end of input, or on SIGHUP when they own a pty.
func (p *ManagedProcess) Stop(grace time.Duration) {
	p.stopOnce.Do(func() {
		p.closeStdin()
		if p.ptmx != nil {
			_ = p.Signal(syscall.SIGHUP)
		}
		_ = p.Signal(syscall.SIGTERM)
		go p.escalate(grace)
	})
}

func (p *ManagedProcess) closeStdin() {
	if p.ptmx != nil {
		// Closing the pty master would cut off output still in flight.
		return
	}
	p.stdinMu.Lock()
	_ = p.stdin.Close()
	p.stdinMu.Unlock()
}

// Terminate is Stop that blocks until the process is gone.
func (p *ManagedProcess) Terminate(grace time.Duration) {
	p.Stop(grace)
	<-p.done
}

func (p *ManagedProcess) escalate(grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return
	case <-timer.C:
	}
	_ = p.Signal(syscall.SIGKILL)
}
