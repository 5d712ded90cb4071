package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/process/processtest"
)

const probeVideoWithAudio = `{
  "streams": [
    {"codec_type": "video", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "duration": "12.012"},
    {"codec_type": "audio", "sample_rate": "48000"}
  ],
  "format": {"duration": "12.050000"}
}`

const probeVideoOnly = `{
  "streams": [{"codec_type": "video", "width": 640, "height": 480, "avg_frame_rate": "25/1", "duration": "4.0"}],
  "format": {}
}`

func TestParseProbe(t *testing.T) {
	t.Run("video with audio", func(t *testing.T) {
		info, err := parseProbe([]byte(probeVideoWithAudio))
		require.NoError(t, err)

		assert.InDelta(t, 12.05, info.Duration, 0.0001)
		assert.True(t, info.HasVideo)
		assert.True(t, info.HasAudio)
		assert.Equal(t, 1920, info.Width)
		assert.Equal(t, 1080, info.Height)
		assert.InDelta(t, 29.97, info.FrameRate, 0.01)
		assert.Equal(t, 48000, info.SampleRate)
	})

	t.Run("stream duration fills missing format duration", func(t *testing.T) {
		info, err := parseProbe([]byte(probeVideoOnly))
		require.NoError(t, err)

		assert.InDelta(t, 4.0, info.Duration, 0.0001)
		assert.False(t, info.HasAudio)
		assert.InDelta(t, 25.0, info.FrameRate, 0.0001)
	})

	t.Run("no streams", func(t *testing.T) {
		_, err := parseProbe([]byte(`{"streams": [], "format": {"duration": "1.0"}}`))
		assert.ErrorIs(t, err, ErrProbeFailed)
	})

	t.Run("malformed output", func(t *testing.T) {
		_, err := parseProbe([]byte("N/A"))
		assert.ErrorIs(t, err, ErrProbeFailed)
	})
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 29.97},
		{"0/0", 0},
		{"24", 24},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseRate(tt.in), 0.01)
		})
	}
}

func TestProbe_Command(t *testing.T) {
	runner := &processtest.Runner{Handler: func(context.Context, process.Command) (process.Result, error) {
		return process.Result{Stdout: probeVideoWithAudio}, nil
	}}
	p := NewFFmpegProcessor(runner, WithFFprobePath("/usr/local/bin/ffprobe"))

	info, err := p.Probe(context.Background(), "/work/clip.mp4")
	require.NoError(t, err)
	assert.True(t, info.HasAudio)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/usr/local/bin/ffprobe", calls[0].Name)
	assert.Equal(t, defaultProbeTimeout, calls[0].Timeout)
	assert.Equal(t, "/work/clip.mp4", processtest.OutputPath(calls[0]))
	assert.Contains(t, calls[0].Args, "-show_streams")
}

func TestProbe_ToolFailure(t *testing.T) {
	runner := &processtest.Runner{Handler: func(_ context.Context, cmd process.Command) (process.Result, error) {
		return processtest.Fail(cmd, "clip.mp4: No such file or directory")
	}}
	p := NewFFmpegProcessor(runner)

	_, err := p.Probe(context.Background(), "clip.mp4")
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.ErrorIs(t, err, process.ErrExit)
}
