package proc

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"

	"loadharness/internal/workload"
)

// DockerRunner spawns each worker in its own container. The job's runtime
// directory is bind-mounted at the same path inside the container so the
// cancellation marker file crosses the boundary unchanged.
type DockerRunner struct {
	client *client.Client
	image  string
}

// NewDockerRunner connects to the Docker daemon and verifies it responds.
func NewDockerRunner(ctx context.Context, workerImage string) (*DockerRunner, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if _, err := dockerClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &DockerRunner{client: dockerClient, image: workerImage}, nil
}

// Start creates and starts one worker container.
func (r *DockerRunner) Start(ctx context.Context, spec Spec) (Handle, error) {
	// Detach the pull from the request context: an HTTP timeout must not
	// abort an image download midway.
	if err := r.pullImageIfNeeded(context.WithoutCancel(ctx), r.image); err != nil {
		return nil, fmt.Errorf("pulling worker image: %w", err)
	}

	containerConfig := &container.Config{
		Image: r.image,
		Env: []string{
			EnvWorkerID + "=" + spec.WorkerID,
			EnvWorkload + "=" + string(spec.Workload),
			EnvDuration + "=" + strconv.FormatFloat(spec.DurationSeconds, 'f', -1, 64),
			EnvIntensity + "=" + strconv.Itoa(spec.Intensity),
			EnvSizeMB + "=" + strconv.Itoa(spec.SizeMB),
			EnvCancelFile + "=" + spec.CancelPath,
		},
		Labels: map[string]string{
			"harness.job":    spec.JobID,
			"harness.worker": spec.WorkerID,
			"managed-by":     "harness-service",
		},
	}

	hostConfig := &container.HostConfig{
		AutoRemove: true,
	}
	if spec.RuntimeDir != "" {
		hostConfig.Mounts = []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: spec.RuntimeDir,
				Target: spec.RuntimeDir,
			},
		}
	}
	if spec.Workload == workload.TypeMemory {
		// Headroom above the requested allocation so the worker is not
		// OOM-killed by its own limit.
		hostConfig.Resources = container.Resources{
			Memory: int64(spec.SizeMB+64) * 1024 * 1024,
		}
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.WorkerID)
	if err != nil {
		return nil, fmt.Errorf("creating worker container: %w", err)
	}

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = r.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("starting worker container: %w", err)
	}

	return &dockerHandle{client: r.client, containerID: resp.ID}, nil
}

// Ready reports whether the Docker daemon is reachable.
func (r *DockerRunner) Ready(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (r *DockerRunner) Close() error {
	return r.client.Close()
}

func (r *DockerRunner) pullImageIfNeeded(ctx context.Context, imageName string) error {
	_, err := r.client.ImageInspect(ctx, imageName)
	if err == nil {
		return nil
	}

	reader, err := r.client.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// dockerHandle supervises one worker container.
type dockerHandle struct {
	client      *client.Client
	containerID string
}

func (h *dockerHandle) Alive() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inspect, err := h.client.ContainerInspect(ctx, h.containerID)
	if err != nil {
		// Auto-removed containers disappear on exit.
		return false
	}
	return inspect.State != nil && inspect.State.Running
}

func (h *dockerHandle) Terminate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := h.client.ContainerKill(ctx, h.containerID, "SIGTERM")
	if err != nil && !client.IsErrNotFound(err) {
		return err
	}
	return nil
}

func (h *dockerHandle) Join(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	waitCh, errCh := h.client.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)
	select {
	case <-waitCh:
		return nil
	case err := <-errCh:
		if client.IsErrNotFound(err) {
			return nil
		}
		if ctx.Err() != nil {
			return ErrJoinTimeout
		}
		return err
	}
}
