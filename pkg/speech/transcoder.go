package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	canonicalSampleRate = 16000
	canonicalChannels   = 1
	canonicalCodec      = "pcm_s16le"
)

// Transcoder converts an arbitrary audio file into the canonical WAV format.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// containerTypes lists non-audio/* MIME types that commonly wrap a voice recording.
var containerTypes = []string{
	"video/webm",
	"video/mp4",
	"video/3gpp",
	"video/3gpp2",
	"video/quicktime",
	"video/x-matroska",
	"application/ogg",
}

// sniffAudio reports whether the payload looks like a container/codec ffmpeg
// can decode into speech. declaredType, the client's Content-Type, is only
// consulted when the content itself is inconclusive.
func sniffAudio(data []byte, declaredType string) (*mimetype.MIME, bool) {
	detected := mimetype.Detect(data)
	if acceptedAudio(detected) {
		return detected, true
	}

	if detected.Is("application/octet-stream") {
		base, _, _ := strings.Cut(declaredType, ";")
		if declared := mimetype.Lookup(strings.ToLower(strings.TrimSpace(base))); declared != nil && acceptedAudio(declared) {
			return declared, true
		}
	}
	return detected, false
}

func acceptedAudio(detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "audio/") {
			return true
		}
		for _, allowed := range containerTypes {
			if m.Is(allowed) {
				return true
			}
		}
	}
	return false
}

// FFmpegTranscoder shells out to ffmpeg through ffmpeg-go.
type FFmpegTranscoder struct {
	binary      string
	verifyProbe bool
	logger      zerolog.Logger
}

// NewFFmpegTranscoder builds a transcoder. An empty binary uses "ffmpeg" from PATH.
// When verify is set the output is checked with ffprobe.
func NewFFmpegTranscoder(binary string, verify bool, logger zerolog.Logger) *FFmpegTranscoder {
	return &FFmpegTranscoder{
		binary:      strings.TrimSpace(binary),
		verifyProbe: verify,
		logger:      logger.With().Str("component", "ffmpeg_transcoder").Logger(),
	}
}

// Transcode writes dst as mono, 16 kHz, 16-bit PCM WAV.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, src, dst string) error {
	binary := t.binary
	if binary == "" {
		binary = "ffmpeg"
	}
	args := transcodeArgs(src, dst)
	t.logger.Debug().Str("binary", binary).Strs("args", args).Msg("running ffmpeg")

	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 512))
	}

	if t.verifyProbe {
		if err := verifyCanonical(dst); err != nil {
			return err
		}
	}

	t.logger.Debug().Str("output", dst).Msg("audio transcoded")
	return nil
}

// transcodeArgs builds the ffmpeg arguments, without the binary, that
// convert src into the canonical WAV at dst.
func transcodeArgs(src, dst string) []string {
	return ffmpeg.Input(src).
		Output(dst, ffmpeg.KwArgs{
			"ac":     canonicalChannels,
			"ar":     canonicalSampleRate,
			"acodec": canonicalCodec,
			"f":      "wav",
		}).
		OverWriteOutput().
		GetArgs()
}

func verifyCanonical(path string) error {
	output, err := ffmpeg.Probe(path)
	if err != nil {
		return fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(output), &probe); err != nil {
		return fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if stream.CodecName != canonicalCodec || stream.SampleRate != fmt.Sprint(canonicalSampleRate) || stream.Channels != canonicalChannels {
			return fmt.Errorf("unexpected output format %s/%sHz/%dch", stream.CodecName, stream.SampleRate, stream.Channels)
		}
		return nil
	}

	return errors.New("no audio stream in transcoded output")
}

func tail(value string, max int) string {
	value = strings.TrimSpace(value)
	if len(value) <= max {
		return value
	}
	return value[len(value)-max:]
}
