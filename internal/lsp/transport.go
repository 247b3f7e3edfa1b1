package lsp

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.lsp.dev/jsonrpc2"

	"github.com/blockforge/blockforge/internal/config"
)

// serverProcess owns a spawned language-server process and exposes its
// stdio as the io.ReadWriteCloser a jsonrpc2 stream runs over.
type serverProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	exitCh chan error
}

// startServerProcess launches the configured server with the project root
// as its working directory.
func startServerProcess(ctx context.Context, cfg config.ServerConfig, workDir string) (*serverProcess, error) {
	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Env = os.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if workDir != "" {
		cmd.Dir = workDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("start %s: %w", cfg.Command, err)
	}

	p := &serverProcess{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		exitCh: make(chan error, 1),
	}
	go p.monitor()
	return p, nil
}

// monitor reaps the process and records its exit status.
func (p *serverProcess) monitor() {
	err := p.cmd.Wait()
	select {
	case p.exitCh <- err:
	default:
	}
}

// Stream returns the jsonrpc2 stream over the process stdio.
func (p *serverProcess) Stream() jsonrpc2.Stream {
	return jsonrpc2.NewStream(p)
}

// Exited returns a channel receiving the process exit status.
func (p *serverProcess) Exited() <-chan error {
	return p.exitCh
}

func (p *serverProcess) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

func (p *serverProcess) Write(b []byte) (int, error) {
	return p.stdin.Write(b)
}

func (p *serverProcess) Close() error {
	serr := p.stdin.Close()
	if err := p.stdout.Close(); err != nil && serr == nil {
		serr = err
	}
	return serr
}

// Kill force-stops the process after a failed or finished shutdown.
func (p *serverProcess) Kill() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}
