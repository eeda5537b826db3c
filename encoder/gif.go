// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package encoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"time"

	"go.mau.fi/chatreel/types"
)

// gifDelayUnit is the GIF timebase. Delays below two units render
// inconsistently across viewers, so that's the floor.
const (
	gifDelayUnit     = 10 * time.Millisecond
	gifMinFrameDelay = 2
	gifDefaultDelay  = 50
)

// GIF encodes frames into an animated GIF using the standard palette
// quantizer. The zero value is ready to use.
type GIF struct{}

var _ Codec = GIF{}

func (GIF) Extension() string {
	return ".gif"
}

func (g GIF) EncodeAll(ctx context.Context, frames []image.Image, opts Options, progress func(done, total int)) ([]byte, error) {
	anim := &gif.GIF{
		Image:    make([]*image.Paletted, 0, len(frames)),
		Delay:    make([]int, 0, len(frames)),
		Disposal: make([]byte, 0, len(frames)),
		Config: image.Config{
			ColorModel: color.Palette(gifPalette(opts.Quality)),
			Width:      opts.Width,
			Height:     opts.Height,
		},
	}
	if opts.LoopForever {
		anim.LoopCount = 0
	} else {
		anim.LoopCount = -1
	}
	pal, dither := gifPalette(opts.Quality), gifDither(opts.Quality)
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fitted := fitFrame(frame, opts.Width, opts.Height)
		paletted := image.NewPaletted(fitted.Bounds(), pal)
		if dither {
			draw.FloydSteinberg.Draw(paletted, fitted.Bounds(), fitted, image.Point{})
		} else {
			draw.Draw(paletted, fitted.Bounds(), fitted, image.Point{}, draw.Src)
		}
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, frameDelay(opts.FrameDurations, i))
		anim.Disposal = append(anim.Disposal, gif.DisposalNone)
		if progress != nil {
			progress(i+1, len(frames))
		}
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gifPalette(quality types.ExportQuality) color.Palette {
	if quality == types.ExportQualityHigh {
		return palette.Plan9
	}
	return palette.WebSafe
}

func gifDither(quality types.ExportQuality) bool {
	return quality != types.ExportQualityLow
}

func frameDelay(durations []time.Duration, i int) int {
	if i >= len(durations) {
		return gifDefaultDelay
	}
	delay := int(durations[i] / gifDelayUnit)
	if delay < gifMinFrameDelay {
		delay = gifMinFrameDelay
	}
	return delay
}

// fitFrame letterboxes src onto a width x height canvas, preserving aspect
// ratio. Frames already at the target size pass through untouched.
func fitFrame(src image.Image, width, height int) image.Image {
	bounds := src.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height && bounds.Min == (image.Point{}) {
		return src
	}
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	scaleX := float64(width) / float64(bounds.Dx())
	scaleY := float64(height) / float64(bounds.Dy())
	scale := scaleX
	if scaleY < scale {
		scale = scaleY
	}
	dstW := int(float64(bounds.Dx()) * scale)
	dstH := int(float64(bounds.Dy()) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}
	offsetX := (width - dstW) / 2
	offsetY := (height - dstH) / 2
	for y := 0; y < dstH; y++ {
		srcY := bounds.Min.Y + int(float64(y)/scale)
		if srcY >= bounds.Max.Y {
			srcY = bounds.Max.Y - 1
		}
		for x := 0; x < dstW; x++ {
			srcX := bounds.Min.X + int(float64(x)/scale)
			if srcX >= bounds.Max.X {
				srcX = bounds.Max.X - 1
			}
			canvas.Set(offsetX+x, offsetY+y, src.At(srcX, srcY))
		}
	}
	return canvas
}
