package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opd-ai/videopipeline/composition"
	"github.com/opd-ai/videopipeline/events"
	"github.com/opd-ai/videopipeline/geom"
)

type exportOptions struct {
	out     string
	fps     float64
	crop    string
	overlay string
	quality int
}

func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export <image-dir>",
		Short: "Export an image sequence as a cropped, filtered movie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.out, "out", "o", "", "Output movie path (default: a new file in the output directory)")
	flags.Float64Var(&opts.fps, "fps", 0, "Frame rate of the sequence (default: render.frame_rate)")
	flags.StringVar(&opts.crop, "crop", "", "Crop rectangle x,y,w,h in presentation coordinates")
	flags.StringVar(&opts.overlay, "overlay", "", "Image composited over every frame")
	flags.IntVar(&opts.quality, "quality", 0, "JPEG quality 1-100 (default: export.quality)")
	return cmd
}

func runExport(cmd *cobra.Command, root *rootOptions, opts *exportOptions, dir string) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	if opts.fps > 0 {
		cfg.Render.FrameRate = opts.fps
	}
	if opts.quality > 0 {
		cfg.Export.Quality = opts.quality
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	filters, err := cfg.BuildFilters()
	if err != nil {
		return err
	}
	seq, err := composition.LoadImageSequence(dir, cfg.Render.FrameRate)
	if err != nil {
		return err
	}

	exportOpts := composition.ExportOptions{
		Filters: filters,
		Quality: cfg.Export.Quality,
		Bus:     events.New(),
	}
	if opts.crop != "" {
		crop, err := parseRect(opts.crop)
		if err != nil {
			return err
		}
		exportOpts.Crop = &crop
	}
	if opts.overlay != "" {
		if exportOpts.Overlay, err = loadImage(opts.overlay); err != nil {
			return err
		}
	}

	out := opts.out
	if out == "" {
		out = filepath.Join(cfg.Capture.OutputDir, uuid.NewString()+".mp4")
	}
	session, err := composition.NewExportSession(seq, out, exportOpts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	defer events.Subscribe(exportOpts.Bus, func(e events.ExportProgress) {
		fmt.Fprintf(w, "\rexported %d/%d frames", e.Frames, e.Total)
	})()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := session.Export(ctx); err != nil {
		return err
	}
	size := session.Composition().RenderSize
	fmt.Fprintf(w, "\nwrote %s (%dx%d, %d frames)\n", out, size.X, size.Y, session.FrameCount())
	return nil
}

func loadImage(path string) (image.Image, error) {
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

// presentationCrop is the full frame of the first video track of a.
func presentationCrop(a composition.Asset) (geom.Rect, bool) {
	tracks := composition.VideoTracks(a)
	if len(tracks) == 0 {
		return geom.Rect{}, false
	}
	return composition.PresentationRect(tracks[0]), true
}
