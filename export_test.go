// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mau.fi/chatreel/encoder"
	"go.mau.fi/chatreel/types"
)

// stubSource renders a tiny solid frame and keeps count. The optional hook
// runs before each render and can reach back into the player mid-capture.
type stubSource struct {
	lock    sync.Mutex
	renders []int
	failAt  int // upTo value whose render errors when hasFail is set.
	hasFail bool
	hook    func(upTo int)
}

func (s *stubSource) RenderFrame(_ context.Context, upTo int) (image.Image, error) {
	if s.hook != nil {
		s.hook(upTo)
	}
	s.lock.Lock()
	s.renders = append(s.renders, upTo)
	s.lock.Unlock()
	if s.hasFail && upTo == s.failAt {
		return nil, fmt.Errorf("renderer crashed at %d", upTo)
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.RGBA{R: uint8(upTo + 2), A: 255})
	return img, nil
}

func (s *stubSource) renderCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.renders)
}

func (s *stubSource) renderedIndexes() []int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]int(nil), s.renders...)
}

type progressLog struct {
	lock    sync.Mutex
	reports []types.ExportProgress
}

func (pl *progressLog) record(progress types.ExportProgress) {
	pl.lock.Lock()
	pl.reports = append(pl.reports, progress)
	pl.lock.Unlock()
}

func (pl *progressLog) all() []types.ExportProgress {
	pl.lock.Lock()
	defer pl.lock.Unlock()
	return append([]types.ExportProgress(nil), pl.reports...)
}

// newExportPlayer uses the wall clock: the capture loop sleeps between
// frames and mock clock juggling across goroutines is not worth it for the
// few milliseconds these tests wait.
func newExportPlayer(t *testing.T) *Player {
	t.Helper()
	p := NewPlayer(PlayerConfig{})
	p.SetMessages(testMessages())
	return p
}

func TestExportProducesArtifact(t *testing.T) {
	p := newExportPlayer(t)
	src := &stubSource{}
	progress := &progressLog{}

	result, err := p.Export(context.Background(), src, types.ExportConfig{}, progress.record)
	if err != nil {
		t.Fatalf("Expected export to succeed, Actual %v", err)
	}
	if len(result.Data) == 0 {
		t.Fatal("Expected artifact data")
	}
	if !bytes.HasPrefix(result.Data, []byte("GIF8")) {
		t.Errorf("Expected GIF header, Actual %q", result.Data[:min(len(result.Data), 6)])
	}
	if !strings.HasPrefix(result.Filename, "chatreel-") || !strings.HasSuffix(result.Filename, ".gif") {
		t.Errorf("Expected generated chatreel-*.gif filename, Actual %q", result.Filename)
	}
	if result.Size != int64(len(result.Data)) {
		t.Errorf("Expected size %d, Actual %d", len(result.Data), result.Size)
	}
	if result.Config.Width != types.DefaultExportWidth || result.Config.Height != types.DefaultExportHeight {
		t.Errorf("Expected normalized default resolution, Actual %dx%d", result.Config.Width, result.Config.Height)
	}
	if result.Config.Quality != types.ExportQualityMedium {
		t.Errorf("Expected default quality, Actual %q", result.Config.Quality)
	}

	// One frame per playback position: blank state first.
	expectedRenders := []int{-1, 0, 1, 2}
	actual := src.renderedIndexes()
	if len(actual) != len(expectedRenders) {
		t.Fatalf("Expected renders %v, Actual %v", expectedRenders, actual)
	}
	for i, upTo := range expectedRenders {
		if actual[i] != upTo {
			t.Errorf("Expected render #%d upTo %d, Actual %d", i, upTo, actual[i])
		}
	}

	reports := progress.all()
	if len(reports) == 0 {
		t.Fatal("Expected progress reports")
	}
	if reports[0].Phase != types.ExportPhasePreparing || reports[0].Percentage != 0 {
		t.Errorf("Expected first report preparing at 0%%, Actual %+v", reports[0])
	}
	last := reports[len(reports)-1]
	if last.Phase != types.ExportPhaseFinalizing || last.Percentage != 100 {
		t.Errorf("Expected last report finalizing at 100%%, Actual %+v", last)
	}
	var sawCapturing, sawEncoding bool
	for _, report := range reports {
		switch report.Phase {
		case types.ExportPhaseCapturing:
			sawCapturing = true
		case types.ExportPhaseEncoding:
			sawEncoding = true
		}
		if report.TotalFrames != 4 && report.Phase != types.ExportPhaseEncoding {
			t.Errorf("Expected 4 total frames in %s report, Actual %d", report.Phase, report.TotalFrames)
		}
	}
	if !sawCapturing || !sawEncoding {
		t.Errorf("Expected capturing and encoding reports, Actual capturing=%v encoding=%v", sawCapturing, sawEncoding)
	}

	if p.CurrentExport() != nil {
		t.Error("Expected export slot to be released after success")
	}
}

func TestExportProgressMonotone(t *testing.T) {
	p := newExportPlayer(t)
	progress := &progressLog{}
	_, err := p.Export(context.Background(), &stubSource{}, types.ExportConfig{}, progress.record)
	if err != nil {
		t.Fatalf("Expected export to succeed, Actual %v", err)
	}
	reports := progress.all()
	prev := -1.0
	for i, report := range reports {
		if report.Percentage < prev {
			t.Errorf("Expected report #%d to not move backwards, Actual %v after %v", i, report.Percentage, prev)
		}
		prev = report.Percentage
		switch report.Phase {
		case types.ExportPhaseCapturing:
			if report.Percentage > 50 {
				t.Errorf("Expected capturing to stay within 50%%, Actual %v", report.Percentage)
			}
		case types.ExportPhaseEncoding:
			if report.Percentage < 50 || report.Percentage > 95 {
				t.Errorf("Expected encoding within [50,95], Actual %v", report.Percentage)
			}
		}
	}
}

func TestExportBusy(t *testing.T) {
	p := newExportPlayer(t)
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	src := &stubSource{hook: func(int) {
		once.Do(func() { close(started) })
		<-release
	}}

	type exportOutcome struct {
		result *types.ExportResult
		err    error
	}
	firstDone := make(chan exportOutcome, 1)
	go func() {
		result, err := p.Export(context.Background(), src, types.ExportConfig{}, nil)
		firstDone <- exportOutcome{result, err}
	}()
	<-started

	first := p.CurrentExport()
	if first == nil {
		t.Fatal("Expected a running export job")
	}
	if _, err := p.Export(context.Background(), &stubSource{}, types.ExportConfig{}, nil); !errors.Is(err, ErrExportBusy) {
		t.Fatalf("Expected ErrExportBusy, Actual %v", err)
	}
	// The rejected call must not have disturbed the running job.
	if current := p.CurrentExport(); current != first {
		t.Errorf("Expected the first job to stay in the slot, Actual %v", current)
	}
	if first.Cancelled() {
		t.Error("Expected the first job to not be cancelled by the busy rejection")
	}

	close(release)
	outcome := <-firstDone
	if outcome.err != nil {
		t.Fatalf("Expected the first export to finish, Actual %v", outcome.err)
	}
	if len(outcome.result.Data) == 0 {
		t.Error("Expected the first export to produce an artifact")
	}
	if p.CurrentExport() != nil {
		t.Error("Expected the slot to be free after completion")
	}
}

func TestExportCancelMidCapture(t *testing.T) {
	p := newExportPlayer(t)
	progress := &progressLog{}
	src := &stubSource{}
	// Cancel from inside the second frame's render.
	src.hook = func(upTo int) {
		if upTo == 0 {
			p.CurrentExport().Cancel()
		}
	}

	result, err := p.Export(context.Background(), src, types.ExportConfig{}, progress.record)
	if !errors.Is(err, ErrExportCancelled) {
		t.Fatalf("Expected ErrExportCancelled, Actual %v", err)
	}
	if result != nil {
		t.Errorf("Expected no artifact, Actual %+v", result)
	}
	// The frame being rendered when Cancel lands may complete, nothing after.
	if count := src.renderCount(); count > 2 {
		t.Errorf("Expected capture to stop within one frame, Actual %d renders", count)
	}
	for _, report := range progress.all() {
		if report.Percentage >= 100 {
			t.Errorf("Expected no completion report after cancel, Actual %+v", report)
		}
	}
	if p.CurrentExport() != nil {
		t.Error("Expected the slot to be released after cancel")
	}
}

func TestExportContextCancel(t *testing.T) {
	p := newExportPlayer(t)
	ctx, cancel := context.WithCancel(context.Background())
	src := &stubSource{hook: func(upTo int) {
		if upTo == 0 {
			cancel()
		}
	}}
	_, err := p.Export(ctx, src, types.ExportConfig{}, nil)
	if !errors.Is(err, ErrExportCancelled) {
		t.Fatalf("Expected ErrExportCancelled from context cancel, Actual %v", err)
	}
}

func TestExportRetryAfterCancel(t *testing.T) {
	p := newExportPlayer(t)
	src := &stubSource{hook: func(upTo int) {
		if upTo == -1 {
			p.CurrentExport().Cancel()
		}
	}}
	if _, err := p.Export(context.Background(), src, types.ExportConfig{}, nil); !errors.Is(err, ErrExportCancelled) {
		t.Fatalf("Expected ErrExportCancelled, Actual %v", err)
	}
	// The slot must be immediately reusable.
	result, err := p.Export(context.Background(), &stubSource{}, types.ExportConfig{}, nil)
	if err != nil {
		t.Fatalf("Expected retry to succeed, Actual %v", err)
	}
	if len(result.Data) == 0 {
		t.Error("Expected the retry to produce an artifact")
	}
}

func TestExportCaptureFailure(t *testing.T) {
	p := newExportPlayer(t)
	src := &stubSource{failAt: 1, hasFail: true}
	_, err := p.Export(context.Background(), src, types.ExportConfig{}, nil)
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("Expected ErrCaptureFailed, Actual %v", err)
	}
	if !strings.Contains(err.Error(), "frame 2") {
		t.Errorf("Expected the failing frame in the error, Actual %q", err)
	}
	if p.CurrentExport() != nil {
		t.Error("Expected the slot to be released after failure")
	}
}

type brokenCodec struct{}

func (brokenCodec) Extension() string { return ".gif" }

func (brokenCodec) EncodeAll(context.Context, []image.Image, encoder.Options, func(done, total int)) ([]byte, error) {
	return nil, errors.New("codec exploded")
}

func TestExportEncodeFailure(t *testing.T) {
	p := newExportPlayer(t)
	p.Encoder = brokenCodec{}
	_, err := p.Export(context.Background(), &stubSource{}, types.ExportConfig{}, nil)
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("Expected ErrEncodeFailed, Actual %v", err)
	}
	if !strings.Contains(err.Error(), "codec exploded") {
		t.Errorf("Expected the codec error to be preserved, Actual %q", err)
	}
}

func TestExportRejectsEmptyList(t *testing.T) {
	p := NewPlayer(PlayerConfig{})
	_, err := p.Export(context.Background(), &stubSource{}, types.ExportConfig{}, nil)
	if !errors.Is(err, ErrNoMessages) {
		t.Fatalf("Expected ErrNoMessages, Actual %v", err)
	}
}

func TestExportRejectsNilSource(t *testing.T) {
	p := newExportPlayer(t)
	if _, err := p.Export(context.Background(), nil, types.ExportConfig{}, nil); !errors.Is(err, ErrNoFrameSource) {
		t.Fatalf("Expected ErrNoFrameSource, Actual %v", err)
	}
}

func TestExportRejectsInvalidConfig(t *testing.T) {
	p := newExportPlayer(t)
	cases := []types.ExportConfig{
		{Width: -1},
		{Width: types.MaxExportDimension + 1},
		{FrameRate: 9000},
		{Quality: "cinematic"},
	}
	for _, cfg := range cases {
		if _, err := p.Export(context.Background(), &stubSource{}, cfg, nil); !errors.Is(err, ErrInvalidExportConfig) {
			t.Errorf("Expected ErrInvalidExportConfig for %+v, Actual %v", cfg, err)
		}
	}
}

func TestExportKeepsSnapshotAcrossSetMessages(t *testing.T) {
	p := newExportPlayer(t)
	replaced := make([]types.Message, 0, 10)
	for i := 0; i < 10; i++ {
		replaced = append(replaced, types.Message{Category: types.MessageText, Text: "later", Delay: "1s"})
	}
	src := &stubSource{hook: func(upTo int) {
		if upTo == -1 {
			p.SetMessages(replaced)
		}
	}}
	progress := &progressLog{}
	result, err := p.Export(context.Background(), src, types.ExportConfig{}, progress.record)
	if err != nil {
		t.Fatalf("Expected export to survive the replacement, Actual %v", err)
	}
	if result == nil || len(result.Data) == 0 {
		t.Fatal("Expected an artifact from the original snapshot")
	}
	// Still the original three messages plus the blank frame.
	if count := src.renderCount(); count != 4 {
		t.Errorf("Expected 4 captured frames from the snapshot, Actual %d", count)
	}
	for _, report := range progress.all() {
		if report.Phase == types.ExportPhaseCapturing && report.TotalFrames != 4 {
			t.Errorf("Expected snapshot frame count 4, Actual %d", report.TotalFrames)
		}
	}
}

func TestExportKeepsExplicitFilename(t *testing.T) {
	p := newExportPlayer(t)
	result, err := p.Export(context.Background(), &stubSource{}, types.ExportConfig{Filename: "demo.gif"}, nil)
	if err != nil {
		t.Fatalf("Expected export to succeed, Actual %v", err)
	}
	if result.Filename != "demo.gif" {
		t.Errorf("Expected explicit filename to survive, Actual %q", result.Filename)
	}
}

func TestJobProgressAccessors(t *testing.T) {
	p := newExportPlayer(t)
	var observed types.ExportProgress
	var observedLock sync.Mutex
	src := &stubSource{hook: func(upTo int) {
		if upTo == 1 {
			job := p.CurrentExport()
			observedLock.Lock()
			observed = job.Progress()
			observedLock.Unlock()
		}
	}}
	if _, err := p.Export(context.Background(), src, types.ExportConfig{}, nil); err != nil {
		t.Fatalf("Expected export to succeed, Actual %v", err)
	}
	observedLock.Lock()
	defer observedLock.Unlock()
	if observed.Phase != types.ExportPhaseCapturing {
		t.Errorf("Expected mid-job poll to see capturing, Actual %+v", observed)
	}
	if observed.CurrentFrame != 2 || observed.TotalFrames != 4 {
		t.Errorf("Expected poll after frame 2 of 4, Actual %d/%d", observed.CurrentFrame, observed.TotalFrames)
	}
}

func TestExportElapsedMeasured(t *testing.T) {
	p := newExportPlayer(t)
	start := time.Now()
	result, err := p.Export(context.Background(), &stubSource{}, types.ExportConfig{}, nil)
	if err != nil {
		t.Fatalf("Expected export to succeed, Actual %v", err)
	}
	if result.Elapsed <= 0 || result.Elapsed > time.Since(start)+time.Second {
		t.Errorf("Expected a plausible elapsed duration, Actual %v", result.Elapsed)
	}
}
