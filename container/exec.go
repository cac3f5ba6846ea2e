package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// ErrOutputConsumed is returned when an exec instance's output stream
// is requested a second time. The stream is single-consumption.
var ErrOutputConsumed = errors.New("exec output already consumed")

// ExecOptions tunes a one-shot command execution inside a running
// container.
type ExecOptions struct {
	Env        []string
	WorkingDir string
	User       string
}

// ExecInstance is a one-shot command run inside a running container,
// separate from the container's entrypoint process. It transitions
// Created → Started exactly once (Exec performs both steps) and its
// attached output may be consumed at most once.
type ExecInstance struct {
	id string

	mu       sync.Mutex
	output   io.ReadCloser
	consumed bool
}

// Exec creates and immediately starts a command execution in the
// container, attaching stdout and stderr. The container must be
// started.
func (h *Handle) Exec(ctx context.Context, cmd []string, opts ExecOptions) (*ExecInstance, error) {
	if err := h.require("exec in", StateStarted); err != nil {
		return nil, err
	}
	if len(cmd) == 0 {
		return nil, fmt.Errorf("exec: command is required")
	}

	createBody := containertypes.ExecOptions{
		Cmd:          cmd,
		Env:          opts.Env,
		WorkingDir:   opts.WorkingDir,
		User:         opts.User,
		AttachStdout: true,
		AttachStderr: true,
	}
	resp, err := h.eng.Do(ctx, http.MethodPost, "/containers/"+h.id+"/exec", nil, createBody)
	if err != nil {
		return nil, fmt.Errorf("creating exec in container %s: %w", h.id, err)
	}

	var created struct {
		ID string `json:"Id"`
	}
	if err := resp.DecodeJSON(&created); err != nil {
		return nil, err
	}

	startBody := struct {
		Detach bool
		Tty    bool
	}{}
	stream, err := h.eng.Stream(ctx, http.MethodPost, "/exec/"+created.ID+"/start", nil, startBody)
	if err != nil {
		return nil, fmt.Errorf("starting exec %s: %w", created.ID, err)
	}

	return &ExecInstance{id: created.ID, output: stream}, nil
}

// ID returns the engine-assigned exec identifier.
func (e *ExecInstance) ID() string {
	return e.id
}

// Output returns the attached output stream, still in the engine's
// stdout/stderr framing. It may be taken exactly once; later calls
// fail with ErrOutputConsumed. The caller owns closing the stream.
func (e *ExecInstance) Output() (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.consumed {
		return nil, ErrOutputConsumed
	}
	e.consumed = true
	out := e.output
	e.output = nil
	return out, nil
}

// CopyOutput demultiplexes the attached stream into stdout and stderr
// writers until the command exits. It consumes the output stream.
func (e *ExecInstance) CopyOutput(stdout, stderr io.Writer) error {
	out, err := e.Output()
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, out); err != nil {
		return fmt.Errorf("copying exec %s output: %w", e.id, err)
	}
	return nil
}
