// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"time"
)

// PlayMode selects how a playback run behaves. It is orthogonal to the
// playing/paused/stopped state.
type PlayMode string

const (
	// PlayModeNormal plays the list once and stops at the end.
	PlayModeNormal PlayMode = "normal"
	// PlayModeLoop rewinds and keeps playing when the end is reached.
	PlayModeLoop PlayMode = "loop"
	// PlayModePreview shows the whole list regardless of the current index.
	PlayModePreview PlayMode = "preview"
)

// ParsePlayMode normalizes a mode string, defaulting to PlayModeNormal.
func ParsePlayMode(raw string) PlayMode {
	switch PlayMode(raw) {
	case PlayModeLoop:
		return PlayModeLoop
	case PlayModePreview:
		return PlayModePreview
	default:
		return PlayModeNormal
	}
}

// Speed bounds applied by the player. Requested multipliers outside the range
// are clamped, never rejected.
const (
	MinPlaybackSpeed = 0.25
	MaxPlaybackSpeed = 4.0
)

// PlaybackState is a snapshot of the player. CurrentTime is always the
// timeline time of CurrentIndex, never free-running wall clock time: the
// player's notion of time only takes the values the timeline assigns to
// message indexes.
type PlaybackState struct {
	CurrentIndex   int           // Index of the newest visible message, -1 when nothing is shown yet.
	CurrentTime    time.Duration // Timeline position corresponding to CurrentIndex.
	Playing        bool
	Speed          float64 // Playback speed multiplier, clamped to [MinPlaybackSpeed, MaxPlaybackSpeed].
	Mode           PlayMode
	ScrollPosition float64 // Scroll offset in pixels of the visible message list.
	AutoScroll     bool    // Whether the player keeps the newest message in view.
}
