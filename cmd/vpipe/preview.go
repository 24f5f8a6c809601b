package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opd-ai/videopipeline/composition"
	"github.com/opd-ai/videopipeline/playback"
	"github.com/opd-ai/videopipeline/render"
)

type previewOptions struct {
	fps      float64
	crop     string
	refresh  time.Duration
	snapshot string
}

func newPreviewCmd(root *rootOptions) *cobra.Command {
	opts := &previewOptions{}
	cmd := &cobra.Command{
		Use:   "preview <image-dir>",
		Short: "Play an image sequence through the render pipeline in real time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, root, opts, args[0])
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.fps, "fps", 0, "Frame rate of the sequence (default: render.frame_rate)")
	flags.StringVar(&opts.crop, "crop", "", "Crop rectangle x,y,w,h in presentation coordinates")
	flags.DurationVar(&opts.refresh, "refresh", playback.DefaultRefreshInterval, "Display refresh interval")
	flags.StringVar(&opts.snapshot, "snapshot", "", "Write the last rendered frame to this PNG file")
	return cmd
}

func runPreview(cmd *cobra.Command, root *rootOptions, opts *previewOptions, dir string) error {
	cfg, err := root.load()
	if err != nil {
		return err
	}
	if opts.fps > 0 {
		cfg.Render.FrameRate = opts.fps
	}
	filters, err := cfg.BuildFilters()
	if err != nil {
		return err
	}
	seq, err := composition.LoadImageSequence(dir, cfg.Render.FrameRate)
	if err != nil {
		return err
	}

	crop, _ := presentationCrop(seq)
	if opts.crop != "" {
		if crop, err = parseRect(opts.crop); err != nil {
			return err
		}
	}
	comp, err := composition.CroppedComposition(seq, crop, nil)
	if err != nil {
		return err
	}

	pipeline, err := render.New(nil, comp.RenderSize, render.WithName("preview"))
	if err != nil {
		return err
	}
	pipeline.SetFilters(filters...)
	offscreen := render.NewOffscreenOutput()
	pipeline.AddOutput(offscreen)

	item, err := playback.NewItemOutput(seq, comp)
	if err != nil {
		return err
	}
	link := playback.NewDisplayLink(item, pipeline, playback.WithRefreshInterval(opts.refresh))

	var frames atomic.Int64
	link.SetDelegate(playback.DelegateFunc(func(image.Image, *render.Pipeline) {
		frames.Add(1)
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	item.Play(time.Now())
	link.Start()
	select {
	case <-ctx.Done():
	case <-time.After(seq.Duration().Duration() + opts.refresh):
	}
	link.End()

	fmt.Fprintf(cmd.OutOrStdout(), "rendered %d of %d frames at %dx%d\n",
		frames.Load(), seq.Len(), comp.RenderSize.X, comp.RenderSize.Y)

	if opts.snapshot == "" {
		return nil
	}
	img := offscreen.Image()
	if img == nil {
		return fmt.Errorf("no frame rendered")
	}
	return writePNG(opts.snapshot, img)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
