// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package events contains the events that chatreel.Player emits to functions
// registered with AddEventHandler.
package events

import (
	"fmt"

	"go.mau.fi/chatreel/types"
)

// SyncReason tells a display collaborator which operation produced a StateSync.
type SyncReason string

const (
	SyncPlay    SyncReason = "play"
	SyncPause   SyncReason = "pause"
	SyncAdvance SyncReason = "advance" // The playback timer fired and moved to the next message.
	SyncSeek    SyncReason = "seek"
	SyncSpeed   SyncReason = "speed"
	SyncMode    SyncReason = "mode"
	SyncUndo    SyncReason = "undo"
	SyncRedo    SyncReason = "redo"
	SyncReset   SyncReason = "reset"
	SyncReplace SyncReason = "replace" // The message list was swapped out wholesale.
	SyncScroll  SyncReason = "scroll"
)

func (sr SyncReason) GoString() string {
	return fmt.Sprintf("events.Sync%s", capitalize(string(sr)))
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// StateSync is emitted on every playback state change. It carries everything a
// display collaborator needs to redraw: the state snapshot, the messages that
// should be on screen and the derived typing indicator.
//
// Handlers run synchronously in operation order, so a slow handler delays
// playback. Offload heavy rendering to another goroutine.
type StateSync struct {
	State   types.PlaybackState
	Visible []types.Message // messages[0..CurrentIndex], or the full list in preview mode.

	// TypingFrom is the speaker whose typing indicator should be shown.
	// Empty unless the current message is a typing message.
	TypingFrom string

	Reason SyncReason
}

// Completed is emitted exactly once when a non-looping run advances past the
// last message and stops. Looping runs rewind instead and never emit it.
type Completed struct{}
