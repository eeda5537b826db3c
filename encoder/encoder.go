// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package encoder assembles captured frames into an animation artifact. The
// work runs in an isolated goroutine and talks to the caller exclusively
// through a channel of events, so a crash or stall in a codec never corrupts
// playback state.
package encoder

import (
	"context"
	"image"
	"time"

	"github.com/rs/zerolog"

	"go.mau.fi/chatreel/types"
)

// Options are the encoding parameters resolved from the export config.
type Options struct {
	Width  int
	Height int
	// FrameRate is advisory for codecs with fixed-rate output. The GIF codec
	// ignores it and uses the per-frame durations instead.
	FrameRate int
	Quality   types.ExportQuality
	// FrameDurations holds the display time of each frame, index-aligned
	// with Request.Frames.
	FrameDurations []time.Duration
	LoopForever    bool
}

// Request is a complete encode job: the captured frames plus the options.
// The worker never mutates the frames.
type Request struct {
	Frames []image.Image
	Opts   Options
}

// Event is an item in the worker's output stream: *Progress zero or more
// times, then exactly one *Done or *Failure, then the channel closes.
type Event interface{}

// Progress reports how many frames the codec has consumed.
type Progress struct {
	FramesDone  int
	TotalFrames int
}

// Done carries the finished artifact.
type Done struct {
	Data []byte
}

// Failure carries the terminal error. A cancelled encode fails with the
// context's error inside.
type Failure struct {
	Err error
}

// Codec turns frames into bytes. Implementations must be safe for repeated
// use and honor context cancellation between frames.
type Codec interface {
	// Extension returns the artifact's file extension, with the dot.
	Extension() string
	// EncodeAll encodes all frames, calling progress after each consumed
	// frame when non-nil.
	EncodeAll(ctx context.Context, frames []image.Image, opts Options, progress func(done, total int)) ([]byte, error)
}

// Worker runs encode requests on their own goroutine.
type Worker struct {
	codec Codec
	log   zerolog.Logger
}

// NewWorker wraps a codec in a worker.
func NewWorker(codec Codec, log zerolog.Logger) *Worker {
	return &Worker{codec: codec, log: log}
}

// Encode starts the encode in the background and returns its event stream.
// The caller must drain the channel until it closes; the terminal event is
// always the last one before the close.
func (w *Worker) Encode(ctx context.Context, req Request) <-chan Event {
	output := make(chan Event, 8)
	go w.run(ctx, req, output)
	return output
}

func (w *Worker) run(ctx context.Context, req Request, output chan<- Event) {
	defer close(output)
	w.log.Debug().
		Int("frame_count", len(req.Frames)).
		Int("width", req.Opts.Width).
		Int("height", req.Opts.Height).
		Msg("Encode worker started")
	data, err := w.codec.EncodeAll(ctx, req.Frames, req.Opts, func(done, total int) {
		select {
		case output <- &Progress{FramesDone: done, TotalFrames: total}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		w.log.Debug().Err(err).Msg("Encode worker failed")
		output <- &Failure{Err: err}
		return
	}
	w.log.Debug().Int("size_bytes", len(data)).Msg("Encode worker finished")
	output <- &Done{Data: data}
}
