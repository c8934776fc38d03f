package media

import (
	"fmt"
	"strconv"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
	"github.com/xfrr/goffmpeg/transcoder"
)

// VideoProbe holds the technical properties of a video file
type VideoProbe struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// VideoProber defines the interface for probing video files
type VideoProber interface {
	// Probe extracts the technical properties of a video file
	Probe(path string) (*VideoProbe, error)
}

// NopProber is a VideoProber that never returns any data
var NopProber VideoProber = &nopProber{}

type nopProber struct{}

func (p *nopProber) Probe(path string) (*VideoProbe, error) {
	return nil, nil
}

// FFmpegProber implements VideoProber using FFmpeg
type FFmpegProber struct {
	logger logging.Logger
}

// NewFFmpegProber creates a new FFmpeg-based video prober
func NewFFmpegProber(logger logging.Logger) *FFmpegProber {
	if logger == nil {
		logger = logging.NopLogger
	}

	return &FFmpegProber{
		logger: logger,
	}
}

// Probe extracts the technical properties of a video file using goffmpeg
func (p *FFmpegProber) Probe(path string) (*VideoProbe, error) {
	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(path, ""); err != nil {
		return nil, fmt.Errorf("failed to initialize transcoder for probing: %w", err)
	}

	metadata := trans.MediaFile().Metadata()

	var width, height int
	for _, stream := range metadata.Streams {
		if stream.CodecType == "video" {
			width = stream.Width
			height = stream.Height
			break // Use first video stream
		}
	}

	if width == 0 || height == 0 {
		return nil, fmt.Errorf("could not extract video dimensions")
	}

	// A missing duration is tolerable, the dimensions alone are still useful
	duration, err := parseDuration(metadata.Format.Duration)
	if err != nil {
		p.logger.Warn("Failed to parse video duration", "path", path, "error", err)
		duration = 0
	}

	p.logger.Debug(fmt.Sprintf("Probed video: %dx%d, %.1fs", width, height, duration))

	return &VideoProbe{
		DurationSeconds: duration,
		Width:           width,
		Height:          height,
	}, nil
}

// parseDuration converts the duration string from video metadata to seconds
func parseDuration(durationStr string) (float64, error) {
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration in video metadata")
	}

	durationSeconds, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w", durationStr, err)
	}

	if durationSeconds <= 0 {
		return 0, fmt.Errorf("invalid duration: %f", durationSeconds)
	}

	return durationSeconds, nil
}
