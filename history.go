// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"slices"
	"time"

	"go.mau.fi/chatreel/events"
	"go.mau.fi/chatreel/types"
)

// historySnapshot records the navigable part of the playback state. Playback
// itself (playing/paused) is deliberately not part of it: undo and redo never
// resume playback on their own.
type historySnapshot struct {
	at     time.Time
	index  int
	scroll float64
	speed  float64
	mode   types.PlayMode
}

func (s historySnapshot) sameState(other historySnapshot) bool {
	return s.index == other.index && s.scroll == other.scroll && s.speed == other.speed && s.mode == other.mode
}

// historyRing is a bounded linear undo history. The cursor always points at
// the entry describing the current state, undo moves it back, redo forward.
// Pushing after an undo discards the forward entries, pushing past the limit
// drops the oldest ones.
type historyRing struct {
	entries []historySnapshot
	limit   int
	cursor  int
}

func newHistoryRing(limit int, initial historySnapshot) *historyRing {
	return &historyRing{
		entries: []historySnapshot{initial},
		limit:   limit,
	}
}

func (h *historyRing) reset(initial historySnapshot) {
	h.entries = append(h.entries[:0], initial)
	h.cursor = 0
}

func (h *historyRing) push(snap historySnapshot) {
	if h.entries[h.cursor].sameState(snap) {
		// Seeking to the same place twice keeps a single entry.
		return
	}
	h.entries = append(h.entries[:h.cursor+1], snap)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = slices.Delete(h.entries, 0, over)
	}
	h.cursor = len(h.entries) - 1
}

func (h *historyRing) undo() (historySnapshot, bool) {
	if h.cursor == 0 {
		return historySnapshot{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

func (h *historyRing) redo() (historySnapshot, bool) {
	if h.cursor >= len(h.entries)-1 {
		return historySnapshot{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

func (h *historyRing) canUndo() bool {
	return h.cursor > 0
}

func (h *historyRing) canRedo() bool {
	return h.cursor < len(h.entries)-1
}

func (p *Player) snapshotLocked() historySnapshot {
	return historySnapshot{
		at:     p.clock.Now(),
		index:  p.currentIndex,
		scroll: p.scrollPosition,
		speed:  p.speed,
		mode:   p.mode,
	}
}

func (p *Player) restoreLocked(snap historySnapshot) {
	p.currentIndex = snap.index
	p.currentTime = p.tl.TimeOf(snap.index)
	p.speed = snap.speed
	p.mode = snap.mode
	// The recorded scroll offset is restored verbatim, the auto scroll model
	// does not recompute it here.
	p.scrollPosition = snap.scroll
}

// Undo steps back to the previous navigation snapshot, restoring position,
// scroll, speed and mode. Playback is halted but never resumed by undo. At
// the beginning of the history this is a no-op and returns false, leaving
// playback untouched.
func (p *Player) Undo() bool {
	p.lock.Lock()
	snap, ok := p.history.undo()
	if !ok {
		p.lock.Unlock()
		return false
	}
	p.stopTimerLocked()
	p.playing = false
	p.restoreLocked(snap)
	evt := p.stateSyncLocked(events.SyncUndo)
	p.lock.Unlock()
	p.dispatchEvent(evt)
	return true
}

// Redo steps forward through navigation snapshots undone with Undo. At the
// end of the history this is a no-op and returns false.
func (p *Player) Redo() bool {
	p.lock.Lock()
	snap, ok := p.history.redo()
	if !ok {
		p.lock.Unlock()
		return false
	}
	p.stopTimerLocked()
	p.playing = false
	p.restoreLocked(snap)
	evt := p.stateSyncLocked(events.SyncRedo)
	p.lock.Unlock()
	p.dispatchEvent(evt)
	return true
}

// CanUndo reports whether Undo would do anything.
func (p *Player) CanUndo() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.history.canUndo()
}

// CanRedo reports whether Redo would do anything.
func (p *Player) CanRedo() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.history.canRedo()
}
