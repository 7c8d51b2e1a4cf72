package speech

import (
	"context"
	"encoding/binary"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTranscodeArgs(t *testing.T) {
	args := transcodeArgs("in.webm", "out.wav")

	require.Equal(t, []string{
		"-i", "in.webm",
		"-ac", "1",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-f", "wav",
		"out.wav",
		"-y",
	}, args)
}

func TestSniffAudio(t *testing.T) {
	raw := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01, 0x7f, 0x80}

	cases := []struct {
		name     string
		data     []byte
		declared string
		accepted bool
		mime     string
	}{
		{name: "wav content", data: wavBytes(), accepted: true, mime: "audio/wav"},
		{name: "wav content ignores declared", data: wavBytes(), declared: "audio/aac", accepted: true, mime: "audio/wav"},
		{name: "plain text", data: []byte("definitely not a recording"), declared: "audio/aac"},
		{name: "unknown bytes without declared type", data: raw},
		{name: "unknown bytes declared audio", data: raw, declared: "audio/aac; charset=binary", accepted: true, mime: "audio/aac"},
		{name: "unknown bytes declared text", data: raw, declared: "text/plain"},
		{name: "unknown bytes unknown declared type", data: raw, declared: "audio/x-made-up"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			detected, ok := sniffAudio(tc.data, tc.declared)
			require.Equal(t, tc.accepted, ok)
			if tc.accepted {
				require.True(t, detected.Is(tc.mime), detected.String())
			}
		})
	}
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
}

func TestFFmpegTranscoderRejectsCorruptRIFF(t *testing.T) {
	requireFFmpeg(t)

	corrupt := make([]byte, 12, 512)
	copy(corrupt[0:], "RIFF")
	binary.LittleEndian.PutUint32(corrupt[4:], 504)
	copy(corrupt[8:], "WAVE")
	for i := 0; i < 500; i++ {
		corrupt = append(corrupt, byte(i*37+11))
	}

	backend := &stubBackend{response: Response{Segments: []Segment{{Alternatives: []string{"unused"}}}}}
	pipeline, workDir := newTestPipeline(t, NewFFmpegTranscoder("", false, zerolog.Nop()), backend, 5*time.Second)

	_, err := pipeline.Transcribe(context.Background(), corrupt, "answer.wav", "audio/wav")
	require.ErrorIs(t, err, ErrTranscodeFailed)
	require.Empty(t, backend.seenPath)
	requireEmptyDir(t, workDir)
}

func TestFFmpegTranscoderWritesCanonicalWAV(t *testing.T) {
	requireFFmpeg(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "source.wav")
	dst := filepath.Join(dir, canonicalName)

	input := append(wavBytes()[:44], make([]byte, 4000)...)
	binary.LittleEndian.PutUint32(input[4:], 36+4000)
	binary.LittleEndian.PutUint32(input[40:], 4000)
	binary.LittleEndian.PutUint16(input[22:], 2)
	binary.LittleEndian.PutUint32(input[24:], 44100)
	binary.LittleEndian.PutUint32(input[28:], 44100*4)
	binary.LittleEndian.PutUint16(input[32:], 4)
	require.NoError(t, os.WriteFile(src, input, 0o600))

	transcoder := NewFFmpegTranscoder("", false, zerolog.Nop())
	require.NoError(t, transcoder.Transcode(context.Background(), src, dst))

	out, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out), 36)
	require.Equal(t, "RIFF", string(out[0:4]))
	require.Equal(t, "WAVE", string(out[8:12]))
	require.Equal(t, "fmt ", string(out[12:16]))
	require.Equal(t, uint16(1), binary.LittleEndian.Uint16(out[20:]))
	require.Equal(t, uint16(canonicalChannels), binary.LittleEndian.Uint16(out[22:]))
	require.Equal(t, uint32(canonicalSampleRate), binary.LittleEndian.Uint32(out[24:]))
	require.Equal(t, uint16(16), binary.LittleEndian.Uint16(out[34:]))
}

func TestFFmpegTranscoderMissingBinary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.wav")
	require.NoError(t, os.WriteFile(src, wavBytes(), 0o600))

	transcoder := NewFFmpegTranscoder(filepath.Join(dir, "no-such-ffmpeg"), false, zerolog.Nop())
	err := transcoder.Transcode(context.Background(), src, filepath.Join(dir, canonicalName))
	require.Error(t, err)
	require.ErrorContains(t, err, "ffmpeg")
}
