package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vohoanvu/JRE-clipper-sub000/internal/process"
)

// Info describes a probed media file.
type Info struct {
	Duration   float64
	HasVideo   bool
	HasAudio   bool
	Width      int
	Height     int
	FrameRate  float64
	SampleRate int
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		SampleRate   string `json:"sample_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}

// Probe runs ffprobe and returns the file's duration and first video and
// audio stream properties.
func (p *FFmpegProcessor) Probe(ctx context.Context, path string) (Info, error) {
	res, err := p.runner.Run(ctx, process.Command{
		Name: p.ffprobePath,
		Args: []string{
			"-v", "error",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			path,
		},
		Timeout: p.probeTimeout,
	})
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	return parseProbe([]byte(res.Stdout))
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("%w: parse output: %w", ErrProbeFailed, err)
	}

	var info Info
	info.Duration = parseFloat(out.Format.Duration)

	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.FrameRate = parseRate(s.AvgFrameRate)
			if info.Duration == 0 {
				info.Duration = parseFloat(s.Duration)
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.SampleRate, _ = strconv.Atoi(s.SampleRate)
		}
	}

	if !info.HasVideo && !info.HasAudio {
		return Info{}, fmt.Errorf("%w: no media streams", ErrProbeFailed)
	}
	return info, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseRate converts an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}
