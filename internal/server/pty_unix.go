//go:build unix

package server

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// child is a live game-server process on a PTY. The reader goroutine drains
// the master side into sink until the child exits.
type child struct {
	cmd  *exec.Cmd
	ptmx *os.File

	mu       sync.Mutex
	exited   bool
	exitCode int
	done     chan struct{}
}

// spawnPTY starts args[0] on a new PTY in its own session, with dir as the
// working directory, and streams its combined output into sink.
func spawnPTY(dir string, args []string, extraEnv []string, sink io.Writer) (*child, error) {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), extraEnv...)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 200, Rows: 50})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	c := &child{cmd: cmd, ptmx: ptmx, done: make(chan struct{})}
	go func() {
		// EIO on the master side is the normal end-of-stream when the
		// child exits.
		io.Copy(sink, ptmx)
		err := cmd.Wait()
		code := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else if err != nil {
			code = -1
		}
		c.mu.Lock()
		c.exited = true
		c.exitCode = code
		c.mu.Unlock()
		ptmx.Close()
		close(c.done)
	}()
	return c, nil
}

// Alive reports whether the child has not yet exited.
func (c *child) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.exited
}

// ExitCode returns the exit code once Done is closed.
func (c *child) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// Done is closed when the child exits.
func (c *child) Done() <-chan struct{} { return c.done }

// PID returns the child's process id.
func (c *child) PID() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// WriteLine writes a console line to the child's stdin.
func (c *child) WriteLine(line string) error {
	_, err := c.ptmx.WriteString(line + "\n")
	return err
}

// Resize changes the PTY window size.
func (c *child) Resize(cols, rows uint16) error {
	return pty.Setsize(c.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Kill delivers SIGKILL to the child's whole process group.
func (c *child) Kill() error {
	pid := c.PID()
	if pid <= 0 {
		return nil
	}
	// pty.Start runs the child with setsid, so the group id is the pid.
	if err := unix.Kill(-pid, unix.SIGKILL); err == nil {
		return nil
	}
	return c.cmd.Process.Kill()
}
