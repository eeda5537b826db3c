// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"go.mau.fi/chatreel/encoder"
	"go.mau.fi/chatreel/types"
)

const (
	// settleDelay is how long the pipeline waits between applying a frame's
	// display state and capturing it, modeling the renderer settling.
	settleDelay = 25 * time.Millisecond
	// finalHold is how long the last frame stays on screen in the artifact.
	finalHold = 1500 * time.Millisecond

	captureEndPercent = 50.0
	encodeEndPercent  = 95.0
)

// Job is the handle of one running export. It is safe to poll and cancel from
// any goroutine.
type Job struct {
	ID uuid.UUID

	clock      clock.Clock
	cancelFn   context.CancelFunc
	cancelled  atomic.Bool
	onProgress func(types.ExportProgress)

	lock     sync.Mutex
	started  time.Time
	progress types.ExportProgress
}

// Cancel asks the job to stop at the next frame or progress boundary. The
// export call returns ErrExportCancelled once it notices; cancellation is
// cooperative, not instant.
func (job *Job) Cancel() {
	job.cancelled.Store(true)
	job.cancelFn()
}

// Cancelled reports whether Cancel has been called.
func (job *Job) Cancelled() bool {
	return job.cancelled.Load()
}

// Progress returns the latest progress report.
func (job *Job) Progress() types.ExportProgress {
	job.lock.Lock()
	defer job.lock.Unlock()
	return job.progress
}

// interrupted translates a cancel request, from Cancel or from the caller's
// context, into the distinguished cancellation error.
func (job *Job) interrupted(ctx context.Context) error {
	if job.cancelled.Load() || ctx.Err() != nil {
		return ErrExportCancelled
	}
	return nil
}

// report updates the job progress and notifies the callback. Percentages are
// clamped so they never move backwards within the job.
func (job *Job) report(phase types.ExportPhase, frame, total int, percentage float64) {
	job.lock.Lock()
	if percentage < job.progress.Percentage {
		percentage = job.progress.Percentage
	}
	var eta time.Duration
	if percentage > 0 && percentage < 100 {
		elapsed := job.clock.Since(job.started)
		eta = time.Duration(float64(elapsed) * (100 - percentage) / percentage)
	}
	job.progress = types.ExportProgress{
		Phase:         phase,
		CurrentFrame:  frame,
		TotalFrames:   total,
		Percentage:    percentage,
		EstimatedLeft: eta,
	}
	snapshot := job.progress
	cb := job.onProgress
	job.lock.Unlock()
	if cb != nil {
		cb(snapshot)
	}
}

// CurrentExport returns the running export job, or nil when the player is
// idle.
func (p *Player) CurrentExport() *Job {
	p.exportLock.Lock()
	defer p.exportLock.Unlock()
	return p.exportJob
}

// Export runs the whole export pipeline synchronously: it captures one frame
// per playback position (the blank state plus one per message), hands the
// frames to the encoder worker and returns the finished artifact. Run it from
// its own goroutine when the caller needs to stay responsive.
//
// Only one job can run per player: a second call fails fast with
// ErrExportBusy and does not disturb the running job. A cancelled job returns
// ErrExportCancelled, produces no artifact and leaves the player ready for
// the next export, just like a failed one.
//
// The job snapshots the message list when it starts. Replacing the list with
// SetMessages while the job runs does not affect it.
func (p *Player) Export(ctx context.Context, src FrameSource, cfg types.ExportConfig, onProgress func(types.ExportProgress)) (*types.ExportResult, error) {
	if src == nil {
		return nil, ErrNoFrameSource
	}
	jobCtx, cancelJob := context.WithCancel(ctx)
	job := &Job{
		ID:         uuid.Must(uuid.NewV7()),
		clock:      p.clock,
		cancelFn:   cancelJob,
		onProgress: onProgress,
		started:    p.clock.Now(),
	}

	p.exportLock.Lock()
	if p.exportJob != nil {
		p.exportLock.Unlock()
		cancelJob()
		return nil, ErrExportBusy
	}
	p.exportJob = job
	p.exportLock.Unlock()
	defer func() {
		p.exportLock.Lock()
		p.exportJob = nil
		p.exportLock.Unlock()
		cancelJob()
	}()

	log := p.Log.With().Stringer("export_id", job.ID).Logger()
	result, err := p.runExport(jobCtx, log, job, src, cfg)
	if err != nil {
		if errors.Is(err, ErrExportCancelled) {
			log.Debug().Msg("Export cancelled")
		} else {
			log.Err(err).Msg("Export failed")
		}
		return nil, err
	}
	return result, nil
}

func (p *Player) runExport(ctx context.Context, log zerolog.Logger, job *Job, src FrameSource, cfg types.ExportConfig) (*types.ExportResult, error) {
	p.lock.Lock()
	msgs := slices.Clone(p.messages)
	segments := p.tl.Segments()
	p.lock.Unlock()

	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExportConfig, err)
	}
	codec := p.Encoder
	if codec == nil {
		codec = encoder.GIF{}
	}
	if cfg.Filename == "" {
		cfg.Filename = fmt.Sprintf("chatreel-%s%s", job.ID.String()[:8], codec.Extension())
	}

	totalFrames := len(msgs) + 1
	job.report(types.ExportPhasePreparing, 0, totalFrames, 0)
	log.Debug().
		Int("total_frames", totalFrames).
		Str("filename", cfg.Filename).
		Str("quality", string(cfg.Quality)).
		Msg("Export started")

	// Frame i shows the display after message i-1 and stays up until message
	// i appears, so its duration is message i's resolved delay. The last
	// frame has no successor and gets a fixed hold.
	durations := make([]time.Duration, totalFrames)
	for i, seg := range segments {
		durations[i] = seg.Duration()
	}
	durations[totalFrames-1] = finalHold

	frames := make([]image.Image, 0, totalFrames)
	for i := 0; i < totalFrames; i++ {
		if err := job.interrupted(ctx); err != nil {
			return nil, err
		}
		select {
		case <-p.clock.After(settleDelay):
		case <-ctx.Done():
			return nil, ErrExportCancelled
		}
		frame, err := src.RenderFrame(ctx, i-1)
		if err != nil {
			if job.interrupted(ctx) != nil {
				return nil, ErrExportCancelled
			}
			return nil, fmt.Errorf("%w: frame %d: %v", ErrCaptureFailed, i, err)
		}
		frames = append(frames, frame)
		job.report(types.ExportPhaseCapturing, i+1, totalFrames, captureEndPercent*float64(i+1)/float64(totalFrames))
	}

	worker := encoder.NewWorker(codec, log)
	var data []byte
	for evt := range worker.Encode(ctx, encoder.Request{
		Frames: frames,
		Opts: encoder.Options{
			Width:          cfg.Width,
			Height:         cfg.Height,
			FrameRate:      cfg.FrameRate,
			Quality:        cfg.Quality,
			FrameDurations: durations,
			LoopForever:    true,
		},
	}) {
		switch typed := evt.(type) {
		case *encoder.Progress:
			pct := captureEndPercent + (encodeEndPercent-captureEndPercent)*float64(typed.FramesDone)/float64(typed.TotalFrames)
			job.report(types.ExportPhaseEncoding, typed.FramesDone, typed.TotalFrames, pct)
		case *encoder.Done:
			data = typed.Data
		case *encoder.Failure:
			if job.interrupted(ctx) != nil || errors.Is(typed.Err, context.Canceled) {
				return nil, ErrExportCancelled
			}
			return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, typed.Err)
		}
	}
	if data == nil {
		if err := job.interrupted(ctx); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: encoder produced no output", ErrEncodeFailed)
	}

	result := &types.ExportResult{
		Data:       data,
		Filename:   cfg.Filename,
		Size:       int64(len(data)),
		FrameCount: totalFrames,
		Elapsed:    p.clock.Since(job.started),
		Config:     cfg,
	}
	job.report(types.ExportPhaseFinalizing, totalFrames, totalFrames, 100)
	log.Info().
		Int64("size_bytes", result.Size).
		Dur("elapsed", result.Elapsed).
		Msg("Export finished")
	return result, nil
}
