package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
	"github.com/vohoanvu/JRE-clipper-sub000/internal/process/processtest"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestVideo creates a solid color test video, optionally with silent audio.
func createTestVideo(t *testing.T, path string, duration float64, color, size string, withAudio bool) {
	t.Helper()

	args := []string{"-y", "-f", "lavfi", "-i", fmt.Sprintf("color=c=%s:s=%s:r=25:d=%.1f", color, size, duration)}
	if withAudio {
		args = append(args, "-f", "lavfi", "-i", fmt.Sprintf("anullsrc=r=48000:cl=mono:d=%.1f", duration), "-c:a", "aac", "-shortest")
	}
	args = append(args, "-c:v", "libx264", "-preset", "ultrafast", path)

	if output, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// scriptedRunner answers ffprobe with probeJSON(input) and makes ffmpeg
// write its output file. Concat lists are captured before they are removed.
type scriptedRunner struct {
	*processtest.Runner
	lists []string
}

func newScriptedRunner(probeJSON func(path string) string) *scriptedRunner {
	sr := &scriptedRunner{}
	sr.Runner = &processtest.Runner{Handler: func(_ context.Context, cmd process.Command) (process.Result, error) {
		if strings.HasSuffix(cmd.Name, "ffprobe") {
			return process.Result{Stdout: probeJSON(processtest.OutputPath(cmd))}, nil
		}
		if i := slices.Index(cmd.Args, "concat"); i >= 0 {
			data, err := os.ReadFile(cmd.Args[i+4])
			if err != nil {
				return process.Result{}, err
			}
			sr.lists = append(sr.lists, string(data))
		}
		return process.Result{}, os.WriteFile(processtest.OutputPath(cmd), []byte("media"), 0600)
	}}
	return sr
}

func TestNewFFmpegProcessor(t *testing.T) {
	p := NewFFmpegProcessor(&processtest.Runner{})
	assert.Equal(t, "ffmpeg", p.ffmpegPath)
	assert.Equal(t, "ffprobe", p.ffprobePath)
	assert.Equal(t, DefaultProfile(), p.Profile())

	p = NewFFmpegProcessor(&processtest.Runner{}, WithFFmpegPath("/opt/ffmpeg"), WithFFmpegPath(""))
	assert.Equal(t, "/opt/ffmpeg", p.ffmpegPath)
}

func TestProfile_Validate(t *testing.T) {
	assert.NoError(t, DefaultProfile().Validate())

	prof := DefaultProfile()
	prof.FrameRate = 0
	assert.ErrorIs(t, prof.Validate(), ErrInvalidProfile)
}

func TestCombine_NoClips(t *testing.T) {
	runner := &processtest.Runner{}
	p := NewFFmpegProcessor(runner)

	_, err := p.Combine(context.Background(), nil, filepath.Join(t.TempDir(), "out.mp4"))
	assert.ErrorIs(t, err, ErrNoClips)
	assert.Empty(t, runner.Calls())
}

func TestCombine_SingleClipIsCopied(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "segment_000_v1.mp4")
	writeFile(t, clip, "only clip")
	runner := &processtest.Runner{}
	p := NewFFmpegProcessor(runner)

	out, err := p.Combine(context.Background(), []string{clip}, filepath.Join(dir, "final_video.mp4"))
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "only clip", string(data))
	assert.Empty(t, runner.Calls(), "a single clip is not re-encoded")
}

func TestCombine_NormalizesThenConcatenates(t *testing.T) {
	dir := t.TempDir()
	clips := []string{
		filepath.Join(dir, "segment_000_v1.mp4"),
		filepath.Join(dir, "segment_001_v1.mp4"),
		filepath.Join(dir, "segment_002_it's.mp4"),
	}
	for _, c := range clips {
		writeFile(t, c, "clip")
	}
	output := filepath.Join(dir, "final_video.mp4")

	runner := newScriptedRunner(func(string) string { return probeVideoWithAudio })
	prof := DefaultProfile()
	prof.Width, prof.Height, prof.FrameRate = 854, 480, 25
	p := NewFFmpegProcessor(runner, WithProfile(prof))

	got, err := p.Combine(context.Background(), clips, output)
	require.NoError(t, err)
	assert.Equal(t, output, got)

	encodes := runner.CallsTo("ffmpeg")
	require.Len(t, encodes, 4, "three normalizations and one concat")

	for i, c := range encodes[:3] {
		assert.Equal(t, clips[i], c.Args[slices.Index(c.Args, "-i")+1])
		assert.Contains(t, c.Args, "scale=854:480:force_original_aspect_ratio=decrease,pad=854:480:(ow-iw)/2:(oh-ih)/2:black,setsar=1,fps=25,format=yuv420p")
		assert.Contains(t, c.Args, "libx264")
		assert.Contains(t, c.Args, "44100")
		assert.Contains(t, c.Args, "+faststart")
		assert.NotContains(t, c.Args, "anullsrc=channel_layout=stereo:sample_rate=44100")
		assert.Equal(t, fmt.Sprintf("norm_%03d.mp4", i), filepath.Base(processtest.OutputPath(c)))
	}

	concat := encodes[3]
	assert.Equal(t, output, processtest.OutputPath(concat))
	assert.Contains(t, concat.Args, "copy")

	require.Len(t, runner.lists, 1)
	lines := strings.Split(strings.TrimSpace(runner.lists[0]), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.True(t, strings.HasSuffix(line, fmt.Sprintf("norm_%03d.mp4'", i)), line)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "normalize_*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "scratch directory removed")
}

func TestCombine_SilentClipGetsGeneratedAudio(t *testing.T) {
	dir := t.TempDir()
	withAudio := filepath.Join(dir, "a.mp4")
	silent := filepath.Join(dir, "b.mp4")
	writeFile(t, withAudio, "clip")
	writeFile(t, silent, "clip")

	runner := newScriptedRunner(func(path string) string {
		if path == silent {
			return probeVideoOnly
		}
		return probeVideoWithAudio
	})
	p := NewFFmpegProcessor(runner)

	_, err := p.Combine(context.Background(), []string{withAudio, silent}, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)

	encodes := runner.CallsTo("ffmpeg")
	require.Len(t, encodes, 3)
	assert.NotContains(t, encodes[0].Args, "lavfi")
	assert.Contains(t, encodes[1].Args, "anullsrc=channel_layout=stereo:sample_rate=44100")
	assert.Contains(t, encodes[1].Args, "1:a:0")
	assert.Contains(t, encodes[1].Args, "-shortest")
}

func TestCombine_NormalizeFailure(t *testing.T) {
	dir := t.TempDir()
	clips := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}
	for _, c := range clips {
		writeFile(t, c, "clip")
	}
	output := filepath.Join(dir, "out.mp4")

	runner := &processtest.Runner{Handler: func(_ context.Context, cmd process.Command) (process.Result, error) {
		if cmd.Name == "ffprobe" {
			return process.Result{Stdout: probeVideoWithAudio}, nil
		}
		return processtest.Fail(cmd, "Error while decoding stream #0:0")
	}}
	p := NewFFmpegProcessor(runner)

	_, err := p.Combine(context.Background(), clips, output)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCombineFailed)
	assert.ErrorIs(t, err, process.ErrExit)
	assert.NoFileExists(t, output)
	assert.Len(t, runner.CallsTo("ffmpeg"), 1, "stops at the first failing clip")

	matches, err := filepath.Glob(filepath.Join(dir, "normalize_*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestCombine_ProbeFailureAssumesAudio(t *testing.T) {
	dir := t.TempDir()
	clips := []string{filepath.Join(dir, "a.mp4"), filepath.Join(dir, "b.mp4")}
	for _, c := range clips {
		writeFile(t, c, "clip")
	}

	runner := newScriptedRunner(func(string) string { return "garbage" })
	p := NewFFmpegProcessor(runner)

	_, err := p.Combine(context.Background(), clips, filepath.Join(dir, "out.mp4"))
	require.NoError(t, err)
	for _, c := range runner.CallsTo("ffmpeg")[:2] {
		assert.Contains(t, c.Args, "0:a:0")
	}
}

func TestWriteConcatList_EscapesQuotes(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")

	require.NoError(t, writeConcatList(list, []string{filepath.Join(dir, "it's.mp4")}))

	data, err := os.ReadFile(list)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("file '%s'\n", filepath.Join(dir, `it'\''s.mp4`)), string(data))
}

func TestCombine_WithFFmpeg(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	clips := []string{
		filepath.Join(dir, "wide.mp4"),
		filepath.Join(dir, "tall.mp4"),
	}
	createTestVideo(t, clips[0], 1.0, "red", "320x180", true)
	createTestVideo(t, clips[1], 1.0, "blue", "120x240", false)

	prof := DefaultProfile()
	prof.Width, prof.Height, prof.Preset = 320, 240, "ultrafast"
	p := NewFFmpegProcessor(process.NewExecRunner(), WithProfile(prof))

	ctx := context.Background()
	out, err := p.Combine(ctx, clips, filepath.Join(dir, "final_video.mp4"))
	require.NoError(t, err)

	info, err := p.Probe(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 240, info.Height)
	assert.True(t, info.HasAudio)
	assert.InDelta(t, 2.0, info.Duration, 0.3)
}
