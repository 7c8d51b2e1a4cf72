package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "container",
		Name:      "job_duration_seconds",
		Help:      "Duration of one-shot container jobs",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"image"})

	jobTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "container",
		Name:      "job_timeouts_total",
		Help:      "Number of container jobs that hit their deadline",
	}, []string{"image"})
)

// ErrJobTimedOut indicates the container was killed at its deadline.
var ErrJobTimedOut = errors.New("container job timed out")

// Runner executes a one-shot command in a throwaway container.
type Runner interface {
	Run(ctx context.Context, job Job) (Outcome, error)
}

// Job describes a single container invocation. Workspace, when set, is
// bind-mounted at the runner's mount path and used as the working directory.
type Job struct {
	Image         string
	Cmd           []string
	Env           []string
	Workspace     string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	AllowNetwork  bool
}

// Outcome summarises a finished job.
type Outcome struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Config groups runner defaults.
type Config struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	MountPath     string
	Logger        zerolog.Logger
}

// ContainerRunner runs jobs against a Docker daemon.
type ContainerRunner struct {
	client *client.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewContainerRunner connects to the daemon at cfg.Host (or the environment default).
func NewContainerRunner(cfg Config) (*ContainerRunner, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.MountPath == "" {
		cfg.MountPath = "/workspace"
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &ContainerRunner{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-assess-api/pkg/docker"),
		logger: logger.With().Str("component", "container_runner").Logger(),
	}, nil
}

// Run creates, starts and waits for the container, then collects its logs.
// The container is force-removed on every exit path.
func (r *ContainerRunner) Run(parent context.Context, job Job) (Outcome, error) {
	if job.Image == "" {
		return Outcome{}, errors.New("image is required")
	}

	ctx, span := r.tracer.Start(parent, "docker.runner.run", trace.WithAttributes(
		attribute.String("docker.image", job.Image),
	))
	defer span.End()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    firstPositive(job.MemoryLimitMB, r.cfg.MemoryLimitMB) * 1024 * 1024,
			CPUShares: firstPositive(job.CPUShares, r.cfg.CPUShares),
		},
	}
	if job.AllowNetwork {
		hostCfg.NetworkMode = "bridge"
	}

	workingDir := ""
	if job.Workspace != "" {
		hostCfg.Mounts = append(hostCfg.Mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: job.Workspace,
			Target: r.cfg.MountPath,
		})
		workingDir = r.cfg.MountPath
	}

	containerCfg := &container.Config{
		Image:        job.Image,
		Cmd:          job.Cmd,
		Env:          job.Env,
		WorkingDir:   workingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	outcome := Outcome{}

	created, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "container create failed")
		return outcome, fmt.Errorf("container create: %w", err)
	}

	containerID := created.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "container start failed")
		return outcome, fmt.Errorf("container start: %w", err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		outcome.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	outcome.Duration = time.Since(start)
	jobDuration.WithLabelValues(job.Image).Observe(outcome.Duration.Seconds())

	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome.TimedOut = true
			jobTimeouts.WithLabelValues(job.Image).Inc()
			span.SetStatus(codes.Error, "container job timed out")
			return outcome, fmt.Errorf("%w after %s", ErrJobTimedOut, timeout)
		}
		span.RecordError(waitErr)
		span.SetStatus(codes.Error, waitErr.Error())
		return outcome, fmt.Errorf("container wait: %w", waitErr)
	}

	logs, err := r.client.ContainerLogs(parent, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		r.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
		return outcome, nil
	}
	defer logs.Close()

	stdout, stderr, err := splitLogs(logs)
	if err != nil {
		r.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to read container logs")
		return outcome, nil
	}
	outcome.Stdout = stdout
	outcome.Stderr = stderr

	return outcome, nil
}

// Close releases the daemon connection.
func (r *ContainerRunner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func splitLogs(reader io.Reader) (string, string, error) {
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, reader); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
