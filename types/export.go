// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"fmt"
	"strings"
	"time"
)

// ExportQuality selects the encoder parameter preset.
type ExportQuality string

const (
	ExportQualityLow    ExportQuality = "low"
	ExportQualityMedium ExportQuality = "medium"
	ExportQualityHigh   ExportQuality = "high"
)

// Default and limit values applied by ExportConfig.Normalize.
const (
	DefaultExportWidth     = 450
	DefaultExportHeight    = 800
	DefaultExportFrameRate = 24
	MaxExportDimension     = 4096
	MaxExportFrameRate     = 60
)

// ExportConfig describes the requested export artifact. Zero values are
// filled with defaults by Normalize, out-of-range values are rejected.
type ExportConfig struct {
	Width     int           `json:"width" yaml:"width"`
	Height    int           `json:"height" yaml:"height"`
	FrameRate int           `json:"frame_rate" yaml:"frame_rate"`
	Quality   ExportQuality `json:"quality" yaml:"quality"`
	Filename  string        `json:"filename" yaml:"filename"` // Optional, generated from the job ID when empty.
}

// Normalize fills defaults in place and validates the result.
func (cfg *ExportConfig) Normalize() error {
	if cfg.Width == 0 {
		cfg.Width = DefaultExportWidth
	}
	if cfg.Height == 0 {
		cfg.Height = DefaultExportHeight
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = DefaultExportFrameRate
	}
	if cfg.Quality == "" {
		cfg.Quality = ExportQualityMedium
	}
	if cfg.Width < 0 || cfg.Width > MaxExportDimension || cfg.Height < 0 || cfg.Height > MaxExportDimension {
		return fmt.Errorf("resolution %dx%d out of range", cfg.Width, cfg.Height)
	}
	if cfg.FrameRate < 0 || cfg.FrameRate > MaxExportFrameRate {
		return fmt.Errorf("frame rate %d out of range", cfg.FrameRate)
	}
	switch cfg.Quality {
	case ExportQualityLow, ExportQualityMedium, ExportQualityHigh:
	default:
		return fmt.Errorf("unknown quality %q", cfg.Quality)
	}
	return nil
}

// ParseQuality maps a user-facing quality name to a preset. Unknown and
// empty names fall back to medium.
func ParseQuality(raw string) ExportQuality {
	switch ExportQuality(strings.ToLower(strings.TrimSpace(raw))) {
	case ExportQualityLow:
		return ExportQualityLow
	case ExportQualityHigh:
		return ExportQualityHigh
	default:
		return ExportQualityMedium
	}
}

// ExportPhase identifies the stage an export job is in.
type ExportPhase string

const (
	ExportPhasePreparing  ExportPhase = "preparing"
	ExportPhaseCapturing  ExportPhase = "capturing"
	ExportPhaseEncoding   ExportPhase = "encoding"
	ExportPhaseFinalizing ExportPhase = "finalizing"
)

// ExportProgress is a progress report for an export job. Within one job the
// Percentage values are monotonically non-decreasing: capturing covers 0-50,
// encoding 50-95 and finalizing ends at 100.
type ExportProgress struct {
	Phase         ExportPhase
	CurrentFrame  int
	TotalFrames   int
	Percentage    float64
	EstimatedLeft time.Duration // Rough remaining time, zero until enough has elapsed to extrapolate.
}

// ExportResult is the terminal payload of a successful export.
type ExportResult struct {
	Data       []byte
	Filename   string
	Size       int64
	FrameCount int
	Elapsed    time.Duration
	Config     ExportConfig // The normalized config the job actually ran with.
}
