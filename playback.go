// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"math"
	"time"

	"go.mau.fi/chatreel/events"
	"go.mau.fi/chatreel/types"
)

// minAdvanceDelay is the floor for the advance timer after speed division.
const minAdvanceDelay = time.Millisecond

// Play starts or resumes playback. Playing from the last message (or from a
// finished run) rewinds to the blank state first, so replays always include
// the whole conversation. Playing an empty list or an already playing player
// is a no-op.
func (p *Player) Play() {
	p.lock.Lock()
	if p.playing || len(p.messages) == 0 {
		p.lock.Unlock()
		return
	}
	if p.currentIndex >= len(p.messages)-1 {
		p.applyIndexLocked(-1)
	}
	p.playing = true
	p.scheduleLocked()
	evt := p.stateSyncLocked(events.SyncPlay)
	p.lock.Unlock()
	p.Log.Debug().Int("from_index", evt.State.CurrentIndex).Float64("speed", evt.State.Speed).Msg("Playback started")
	p.dispatchEvent(evt)
}

// Pause freezes playback at the current position. Only the pending advance
// timer is cancelled, position, scroll and history stay untouched.
func (p *Player) Pause() {
	p.lock.Lock()
	if !p.playing {
		p.lock.Unlock()
		return
	}
	p.stopTimerLocked()
	p.playing = false
	evt := p.stateSyncLocked(events.SyncPause)
	p.lock.Unlock()
	p.dispatchEvent(evt)
}

// Stop halts playback and rewinds to the blank state: index -1, time zero,
// scroll zero. Mode and speed are kept.
func (p *Player) Stop() {
	p.lock.Lock()
	p.stopTimerLocked()
	p.playing = false
	p.applyIndexLocked(-1)
	p.scrollPosition = 0
	evt := p.stateSyncLocked(events.SyncReset)
	p.lock.Unlock()
	p.dispatchEvent(evt)
}

// SetSpeed changes the playback speed multiplier. Out-of-range values are
// clamped, never rejected. If playback is running, the pending step restarts
// in full at the new speed: the already elapsed part of the wait is
// deliberately discarded rather than rescaled.
func (p *Player) SetSpeed(speed float64) {
	if math.IsNaN(speed) {
		speed = DefaultSpeed
	}
	if speed < types.MinPlaybackSpeed {
		speed = types.MinPlaybackSpeed
	} else if speed > types.MaxPlaybackSpeed {
		speed = types.MaxPlaybackSpeed
	}
	p.lock.Lock()
	if speed == p.speed {
		p.lock.Unlock()
		return
	}
	p.speed = speed
	if p.playing {
		p.stopTimerLocked()
		p.scheduleLocked()
	}
	evt := p.stateSyncLocked(events.SyncSpeed)
	p.lock.Unlock()
	p.dispatchEvent(evt)
}

// SetMode switches the play mode. Loop only changes what happens at the end
// of the list. Preview immediately switches the visible list to the whole
// conversation regardless of position. Switching out of loop while playing
// the last message ends the run like a normal completion.
func (p *Player) SetMode(mode types.PlayMode) {
	p.lock.Lock()
	if mode == p.mode {
		p.lock.Unlock()
		return
	}
	p.mode = mode
	var completed *events.Completed
	if p.playing {
		p.stopTimerLocked()
		if !p.scheduleLocked() {
			p.playing = false
			completed = &events.Completed{}
		}
	}
	p.refreshScrollLocked()
	evt := p.stateSyncLocked(events.SyncMode)
	p.lock.Unlock()
	p.dispatchEvent(evt)
	if completed != nil {
		p.dispatchEvent(completed)
	}
}

// stopTimerLocked cancels the pending advance timer, if any, and invalidates
// callbacks that may already be in flight. Every state mutation goes through
// here first so there is never more than one pending timer.
func (p *Player) stopTimerLocked() {
	if p.advanceTimer != nil {
		p.advanceTimer.Stop()
		p.advanceTimer = nil
	}
	p.timerGen++
}

// scheduleLocked arms the advance timer for the next message: the wait is the
// next message's resolved delay divided by the speed multiplier. At the end
// of the list, loop mode wraps around to the first message. Returns false
// when there is nothing left to schedule.
func (p *Player) scheduleLocked() bool {
	next := p.currentIndex + 1
	if next >= len(p.messages) {
		if p.mode != types.PlayModeLoop || len(p.messages) == 0 {
			return false
		}
		next = 0
	}
	seg, ok := p.tl.Segment(next)
	if !ok {
		return false
	}
	delay := time.Duration(float64(seg.Duration()) / p.speed)
	if delay < minAdvanceDelay {
		delay = minAdvanceDelay
	}
	p.timerGen++
	gen := p.timerGen
	p.advanceTimer = p.clock.AfterFunc(delay, func() {
		p.advance(gen)
	})
	return true
}

// advance is the timer callback that reveals the next message. A stale
// generation means some operation mutated the state after this timer was
// armed, in which case the callback does nothing.
func (p *Player) advance(gen uint64) {
	p.lock.Lock()
	if !p.playing || gen != p.timerGen {
		p.lock.Unlock()
		return
	}
	p.advanceTimer = nil
	next := p.currentIndex + 1
	if next >= len(p.messages) {
		// Loop wraparound passes through the blank state and lands on the
		// first message in one step.
		next = 0
	}
	p.applyIndexLocked(next)
	var completed *events.Completed
	if !p.scheduleLocked() {
		p.playing = false
		completed = &events.Completed{}
	}
	evt := p.stateSyncLocked(events.SyncAdvance)
	p.lock.Unlock()
	p.dispatchEvent(evt)
	if completed != nil {
		p.Log.Debug().Msg("Run completed")
		p.dispatchEvent(completed)
	}
}
