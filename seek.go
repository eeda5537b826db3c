// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"time"

	"go.mau.fi/chatreel/events"
)

// SeekToMessage jumps the playback position to the given message index.
// Out-of-range indexes are clamped to [-1, len-1], never rejected. The seek
// pushes an undo snapshot, and if playback is running it continues from the
// new position: the pending step is discarded and the next message gets its
// full wait (seeking is a coarse jump, not a time shift).
func (p *Player) SeekToMessage(index int) {
	p.lock.Lock()
	sync, completed := p.seekLocked(index)
	p.lock.Unlock()
	p.dispatchEvent(sync)
	if completed != nil {
		p.dispatchEvent(completed)
	}
}

// SeekToTime jumps to the message visible at the given timeline position.
// Negative times land on the blank state, times past the end on the last
// message.
func (p *Player) SeekToTime(t time.Duration) {
	p.lock.Lock()
	sync, completed := p.seekLocked(p.tl.IndexOf(t))
	p.lock.Unlock()
	p.dispatchEvent(sync)
	if completed != nil {
		p.dispatchEvent(completed)
	}
}

// SeekToProgress jumps to a scrub position expressed as a fraction of the
// total duration. The fraction is clamped to [0, 1].
func (p *Player) SeekToProgress(progress float64) {
	p.lock.Lock()
	sync, completed := p.seekLocked(p.tl.IndexOf(p.tl.TimeOfProgress(progress)))
	p.lock.Unlock()
	p.dispatchEvent(sync)
	if completed != nil {
		p.dispatchEvent(completed)
	}
}

func (p *Player) seekLocked(index int) (*events.StateSync, *events.Completed) {
	p.stopTimerLocked()
	if index < -1 {
		index = -1
	}
	if index > len(p.messages)-1 {
		index = len(p.messages) - 1
	}
	p.applyIndexLocked(index)
	p.history.push(p.snapshotLocked())
	var completed *events.Completed
	if p.playing {
		if !p.scheduleLocked() {
			// Seeking onto the last message of a non-looping run ends it.
			p.playing = false
			completed = &events.Completed{}
		}
	}
	return p.stateSyncLocked(events.SyncSeek), completed
}
