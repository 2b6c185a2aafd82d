package runtime

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

// DockerRuntime runs the agent inside a single-use container. The site
// workspace is bind-mounted at a fixed path.
type DockerRuntime struct {
	client *client.Client
}

const containerWorkspace = "/workspace"

// NewDockerRuntime creates a Docker-based runtime. The client is
// initialized from standard environment variables (DOCKER_HOST, etc.).
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{client: cli}, nil
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// Start implements Runtime.Start using Docker containers.
func (d *DockerRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	// Pull only when the image is missing locally.
	if _, err := d.client.ImageInspect(ctx, opts.Image); err != nil {
		reader, err := d.client.ImagePull(ctx, opts.Image, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image %s: %w", opts.Image, err)
		}
		defer reader.Close()
		io.Copy(io.Discard, reader)
	}

	containerConfig := &container.Config{
		Image:      opts.Image,
		Cmd:        opts.Args,
		Env:        mapToEnvList(opts.Env),
		WorkingDir: containerWorkspace,
	}
	hostConfig := &container.HostConfig{
		Binds:      []string{opts.Workspace + ":" + containerWorkspace},
		AutoRemove: false,
	}

	created, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	return &dockerHandle{client: d.client, containerID: created.ID}, nil
}

type dockerHandle struct {
	client      *client.Client
	containerID string
}

func (h *dockerHandle) Events(ctx context.Context) (io.ReadCloser, error) {
	return h.client.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		Follow:     true,
	})
}

func (h *dockerHandle) Wait(ctx context.Context) (ExitResult, error) {
	statusCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		return ExitResult{ExitCode: -1, Error: err}, err
	case status := <-statusCh:
		if status.Error != nil {
			err := fmt.Errorf("%s", status.Error.Message)
			return ExitResult{ExitCode: int(status.StatusCode), Error: err}, err
		}
		return ExitResult{ExitCode: int(status.StatusCode)}, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *dockerHandle) Stop(ctx context.Context) error {
	timeout := 5
	return h.client.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &timeout})
}
