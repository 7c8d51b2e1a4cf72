package docker

import (
	"bytes"
	"context"
	"testing"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSplitLogsDemultiplexesStreams(t *testing.T) {
	var muxed bytes.Buffer
	_, err := stdcopy.NewStdWriter(&muxed, stdcopy.Stdout).Write([]byte("transcript written\n"))
	require.NoError(t, err)
	_, err = stdcopy.NewStdWriter(&muxed, stdcopy.Stderr).Write([]byte("model loaded\n"))
	require.NoError(t, err)

	stdout, stderr, err := splitLogs(&muxed)
	require.NoError(t, err)
	require.Equal(t, "transcript written\n", stdout)
	require.Equal(t, "model loaded\n", stderr)
}

func TestFirstPositive(t *testing.T) {
	require.Equal(t, int64(512), firstPositive(0, 512))
	require.Equal(t, int64(64), firstPositive(64, 512))
	require.Zero(t, firstPositive(0, -1))
}

func TestNewContainerRunnerDefaultsAndImageGuard(t *testing.T) {
	runner, err := NewContainerRunner(Config{Host: "tcp://127.0.0.1:2375", Logger: zerolog.Nop()})
	require.NoError(t, err)
	defer runner.Close()

	require.Equal(t, "/workspace", runner.cfg.MountPath)

	_, err = runner.Run(context.Background(), Job{})
	require.EqualError(t, err, "image is required")
}
