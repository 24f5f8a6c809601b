package container

import (
	"bytes"
	"fmt"
	"math"

	amp4 "github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"

	"github.com/opd-ai/videopipeline/geom"
)

// displayMatrix converts t to a track header matrix. The affine terms are
// 16.16 fixed point and the projective column is 2.30.
func displayMatrix(t geom.Transform) [9]int32 {
	fixed := func(v float64) int32 { return int32(math.Round(v * 0x10000)) }
	return [9]int32{
		fixed(t.A), fixed(t.B), 0,
		fixed(t.C), fixed(t.D), 0,
		fixed(t.Tx), fixed(t.Ty), 0x40000000,
	}
}

// setTrackMatrices rewrites the tkhd matrix of every track of init listed
// in matrices and copies every other box unchanged.
func setTrackMatrices(init []byte, matrices map[uint32][9]int32) ([]byte, error) {
	r := bytes.NewReader(init)
	var out seekablebuffer.Buffer
	w := amp4.NewWriter(&out)

	_, err := amp4.ReadBoxStructure(r, func(h *amp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case amp4.BoxTypeMoov(), amp4.BoxTypeTrak():
			if _, err := w.StartBox(&h.BoxInfo); err != nil {
				return nil, err
			}
			if _, err := h.Expand(); err != nil {
				return nil, err
			}
			_, err := w.EndBox()
			return nil, err

		case amp4.BoxTypeTkhd():
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			tkhd, ok := box.(*amp4.Tkhd)
			if !ok {
				return nil, fmt.Errorf("unexpected tkhd payload %T", box)
			}
			if m, ok := matrices[tkhd.TrackID]; ok {
				tkhd.Matrix = m
			}
			if _, err := w.StartBox(&h.BoxInfo); err != nil {
				return nil, err
			}
			if _, err := amp4.Marshal(w, tkhd, h.BoxInfo.Context); err != nil {
				return nil, err
			}
			_, err = w.EndBox()
			return nil, err

		default:
			return nil, w.CopyBox(r, &h.BoxInfo)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("set track matrix: %w", err)
	}
	return out.Bytes(), nil
}
