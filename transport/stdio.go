package transport

import (
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// NewStdio returns a Channel that frames records as newline-delimited JSON
// over the process's own stdin/stdout, the transport a server uses when it
// is launched as a subprocess by its client.
func NewStdio() Channel {
	return Line(os.Stdin, os.Stdout)
}

// Subprocess wraps an external command as a client-side transport: its
// stdin/stdout become a newline-framed Channel, and its stderr is copied
// in read-sized chunks into logger at debug level so a misbehaving server's
// diagnostics are not silently dropped.
type Subprocess struct {
	Channel

	cmd    *exec.Cmd
	logger *zap.Logger
}

// NewSubprocess starts command with the given arguments and returns a
// Channel backed by its standard streams. The process is killed when the
// returned Channel is closed.
func NewSubprocess(logger *zap.Logger, command string, args ...string) (*Subprocess, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cmd := exec.Command(command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go copyStderrLines(logger, stderr)

	return &Subprocess{Channel: Line(stdout, stdin), cmd: cmd, logger: logger}, nil
}

func copyStderrLines(logger *zap.Logger, r interface{ Read([]byte) (int, error) }) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			logger.Debug("subprocess stderr", zap.ByteString("line", buf[:n]))
		}
		if err != nil {
			return
		}
	}
}

// Close terminates the underlying process after closing the stream channel.
func (s *Subprocess) Close() error {
	err := s.Channel.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return err
}
