package composition

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image sequences
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/videopipeline/geom"
	"github.com/opd-ai/videopipeline/media"
)

// Track describes one track of an asset.
type Track struct {
	ID                 int
	MediaType          media.MediaType
	NaturalSize        geom.Size
	PreferredTransform geom.Transform
	NominalFrameRate   float64
	TimeRange          media.TimeRange
}

// Asset is a source of decoded video frames.
type Asset interface {
	Duration() media.Time
	Tracks() []Track
	// Frame returns the frame of a track presented at t.
	Frame(trackID int, t media.Time) (image.Image, error)
}

// VideoTracks returns the video tracks of a.
func VideoTracks(a Asset) []Track {
	var tracks []Track
	for _, t := range a.Tracks() {
		if t.MediaType == media.MediaTypeVideo {
			tracks = append(tracks, t)
		}
	}
	return tracks
}

// ImageSequence is a single video track made of still images shown for
// equal durations.
type ImageSequence struct {
	trackID int
	fps     float64
	size    geom.Size
	count   int

	load func(i int) (image.Image, error)

	mu        sync.Mutex
	lastIndex int
	last      image.Image
}

// SequenceTrackID is the track ID of an image sequence's video track.
const SequenceTrackID = 1

// NewImageSequence creates a sequence from in-memory frames, all of which
// should share the first frame's size.
func NewImageSequence(frames []image.Image, fps float64) (*ImageSequence, error) {
	if len(frames) == 0 {
		return nil, ErrEmptySequence
	}
	return newImageSequence(len(frames), fps, geom.SizeOf(frames[0].Bounds()), func(i int) (image.Image, error) {
		return frames[i], nil
	})
}

// LoadImageSequence creates a sequence from the PNG and JPEG files in dir,
// in lexical file name order. Frames are decoded on demand.
func LoadImageSequence(dir string, fps float64) (*ImageSequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read image sequence: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images in %s", ErrEmptySequence, dir)
	}
	sort.Strings(paths)

	cfg, err := decodeConfig(paths[0])
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "LoadImageSequence",
		"dir":      dir,
		"frames":   len(paths),
		"width":    cfg.Width,
		"height":   cfg.Height,
	}).Info("Loaded image sequence")

	return newImageSequence(len(paths), fps, geom.Sz(float64(cfg.Width), float64(cfg.Height)), func(i int) (image.Image, error) {
		return decodeFile(paths[i])
	})
}

func newImageSequence(count int, fps float64, size geom.Size, load func(int) (image.Image, error)) (*ImageSequence, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %g", fps)
	}
	if size.IsEmpty() {
		return nil, fmt.Errorf("%w: %s", media.ErrInvalidDimensions, size)
	}
	return &ImageSequence{
		trackID:   SequenceTrackID,
		fps:       fps,
		size:      size,
		count:     count,
		load:      load,
		lastIndex: -1,
	}, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Config{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Len returns the number of frames.
func (s *ImageSequence) Len() int { return s.count }

// Duration returns the presentation length of the sequence.
func (s *ImageSequence) Duration() media.Time {
	return media.TimeFromSeconds(float64(s.count)/s.fps, media.DefaultTimescale)
}

// Tracks returns the single video track.
func (s *ImageSequence) Tracks() []Track {
	return []Track{{
		ID:                 s.trackID,
		MediaType:          media.MediaTypeVideo,
		NaturalSize:        s.size,
		PreferredTransform: geom.Identity,
		NominalFrameRate:   s.fps,
		TimeRange:          media.NewTimeRange(media.ZeroTime, s.Duration()),
	}}
}

// Frame returns the image shown at t. Times past the end hold the last
// frame.
func (s *ImageSequence) Frame(trackID int, t media.Time) (image.Image, error) {
	if trackID != s.trackID {
		return nil, fmt.Errorf("%w: unknown track %d", ErrMissingSourceFrame, trackID)
	}
	if !t.IsValid() || t.IsPositiveInfinity() {
		return nil, fmt.Errorf("%w: invalid time %s", ErrMissingSourceFrame, t)
	}

	index := int(math.Floor(t.Seconds()*s.fps + 1e-9))
	if index < 0 {
		index = 0
	}
	if index >= s.count {
		index = s.count - 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if index == s.lastIndex {
		return s.last, nil
	}
	img, err := s.load(index)
	if err != nil {
		return nil, err
	}
	s.lastIndex, s.last = index, img
	return img, nil
}
