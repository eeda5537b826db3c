// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package chatreel implements timed replay of scripted chat conversations:
// a playback state machine that reveals messages one by one on a resolved
// timeline, with scrubbing, undo history and export to an animation.
package chatreel

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"go.mau.fi/util/random"

	"go.mau.fi/chatreel/encoder"
	"go.mau.fi/chatreel/events"
	"go.mau.fi/chatreel/timeline"
	"go.mau.fi/chatreel/types"
)

// EventHandler is a function that can handle events from the player.
type EventHandler func(evt any)

var nextHandlerID uint32

type wrappedEventHandler struct {
	fn EventHandler
	id uint32
}

// Defaults for PlayerConfig fields left at zero.
const (
	DefaultViewportHeight = 760.0
	DefaultHistoryLimit   = 50
	DefaultSpeed          = 1.0
)

// PlayerConfig configures a new Player. The zero value is usable.
type PlayerConfig struct {
	Log zerolog.Logger
	// Clock drives all playback timers and timestamps. Nil uses the real
	// clock, tests inject a mock to run on virtual time.
	Clock clock.Clock
	// ViewportHeight is the visible height of the message list in pixels,
	// used by the auto scroll model.
	ViewportHeight float64
	// HistoryLimit bounds the undo history. Oldest snapshots fall off.
	HistoryLimit int
	// DisableAutoScroll stops the player from keeping the newest message in
	// view when the list grows.
	DisableAutoScroll bool
}

// Player drives the replay of one scripted conversation. Construct one per
// session with NewPlayer, there is no shared instance. All methods are safe
// for concurrent use.
type Player struct {
	Log zerolog.Logger

	// Encoder turns captured frames into the export artifact. Nil uses the
	// built-in GIF codec.
	Encoder encoder.Codec

	clock clock.Clock

	lock     sync.Mutex
	messages []types.Message
	tl       *timeline.Index

	playing        bool
	currentIndex   int
	currentTime    time.Duration
	speed          float64
	mode           types.PlayMode
	scrollPosition float64
	autoScroll     bool
	viewportHeight float64

	measuredHeights map[int]float64

	// At most one advance timer is pending at any time. Every state mutation
	// stops it and bumps the generation so a concurrently firing callback
	// turns into a no-op.
	advanceTimer *clock.Timer
	timerGen     uint64

	history *historyRing

	exportJob  *Job
	exportLock sync.Mutex

	eventHandlers     []wrappedEventHandler
	eventHandlersLock sync.RWMutex

	uniqueID string
}

// NewPlayer initializes a player with an empty message list.
func NewPlayer(cfg PlayerConfig) *Player {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = DefaultViewportHeight
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	p := &Player{
		clock:           clk,
		tl:              timeline.NewIndex(nil),
		currentIndex:    -1,
		speed:           DefaultSpeed,
		mode:            types.PlayModeNormal,
		autoScroll:      !cfg.DisableAutoScroll,
		viewportHeight:  cfg.ViewportHeight,
		measuredHeights: make(map[int]float64),
		eventHandlers:   make([]wrappedEventHandler, 0, 1),
		uniqueID:        random.String(8),
	}
	p.Log = cfg.Log.With().Str("player_id", p.uniqueID).Logger()
	p.history = newHistoryRing(cfg.HistoryLimit, p.snapshotLocked())
	return p
}

// SetMessages replaces the whole message list. Edits always arrive as full
// replacements: playback stops, the timeline is rebuilt from scratch and the
// player rewinds to the blank state. A running export job is not affected, it
// keeps the list it was started with.
func (p *Player) SetMessages(msgs []types.Message) {
	p.lock.Lock()
	p.stopTimerLocked()
	p.playing = false
	p.messages = slices.Clone(msgs)
	p.tl = timeline.NewIndex(p.messages)
	p.currentIndex = -1
	p.currentTime = 0
	p.scrollPosition = 0
	clear(p.measuredHeights)
	p.history.reset(p.snapshotLocked())
	total := p.tl.TotalDuration()
	evt := p.stateSyncLocked(events.SyncReplace)
	p.lock.Unlock()
	p.Log.Debug().
		Int("message_count", len(msgs)).
		Dur("total_duration", total).
		Msg("Message list replaced")
	p.dispatchEvent(evt)
}

// Messages returns a copy of the current message list.
func (p *Player) Messages() []types.Message {
	p.lock.Lock()
	defer p.lock.Unlock()
	return slices.Clone(p.messages)
}

// State returns a snapshot of the playback state.
func (p *Player) State() types.PlaybackState {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.stateLocked()
}

// Timeline returns the precomputed timeline of the current message list. The
// returned index is replaced, not mutated, on SetMessages, so callers may
// keep using it while the player moves on.
func (p *Player) Timeline() *timeline.Index {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.tl
}

// VisibleMessages returns a copy of the messages that should be on screen:
// everything up to and including the current index, or the full list in
// preview mode.
func (p *Player) VisibleMessages() []types.Message {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.visibleLocked()
}

func (p *Player) stateLocked() types.PlaybackState {
	return types.PlaybackState{
		CurrentIndex:   p.currentIndex,
		CurrentTime:    p.currentTime,
		Playing:        p.playing,
		Speed:          p.speed,
		Mode:           p.mode,
		ScrollPosition: p.scrollPosition,
		AutoScroll:     p.autoScroll,
	}
}

func (p *Player) visibleLocked() []types.Message {
	if p.mode == types.PlayModePreview {
		return slices.Clone(p.messages)
	}
	if p.currentIndex < 0 {
		return []types.Message{}
	}
	return slices.Clone(p.messages[:p.currentIndex+1])
}

func (p *Player) stateSyncLocked(reason events.SyncReason) *events.StateSync {
	evt := &events.StateSync{
		State:   p.stateLocked(),
		Visible: p.visibleLocked(),
		Reason:  reason,
	}
	if p.currentIndex >= 0 && p.currentIndex < len(p.messages) {
		if msg := p.messages[p.currentIndex]; msg.Category == types.MessageTyping {
			evt.TypingFrom = msg.Speaker
		}
	}
	return evt
}

// applyIndexLocked moves the playback position and keeps the derived fields
// in sync: the current time is always the timeline time of the index.
func (p *Player) applyIndexLocked(index int) {
	p.currentIndex = index
	p.currentTime = p.tl.TimeOf(index)
	p.refreshScrollLocked()
}

// AddEventHandler registers a new function to receive all events emitted by
// this player.
//
// The returned integer is the event handler ID, which can be passed to
// RemoveEventHandler to remove it.
//
// Handlers are called synchronously in the order they were added, from the
// goroutine that performed the state change (or the timer goroutine for
// automatic advances). Handlers may call back into the player, but removing
// a handler from inside a handler has to be done in a new goroutine to avoid
// deadlocking on the handler list lock.
func (p *Player) AddEventHandler(handler EventHandler) uint32 {
	nextID := atomic.AddUint32(&nextHandlerID, 1)
	p.eventHandlersLock.Lock()
	p.eventHandlers = append(p.eventHandlers, wrappedEventHandler{handler, nextID})
	p.eventHandlersLock.Unlock()
	return nextID
}

// RemoveEventHandler removes a previously registered event handler function.
// If the function with the given ID is found, this returns true.
func (p *Player) RemoveEventHandler(id uint32) bool {
	p.eventHandlersLock.Lock()
	defer p.eventHandlersLock.Unlock()
	for index := range p.eventHandlers {
		if p.eventHandlers[index].id == id {
			if index == 0 {
				p.eventHandlers[0].fn = nil
				p.eventHandlers = p.eventHandlers[1:]
				return true
			} else if index < len(p.eventHandlers)-1 {
				copy(p.eventHandlers[index:], p.eventHandlers[index+1:])
			}
			p.eventHandlers[len(p.eventHandlers)-1].fn = nil
			p.eventHandlers = p.eventHandlers[:len(p.eventHandlers)-1]
			return true
		}
	}
	return false
}

// RemoveEventHandlers removes all event handlers that have been registered
// with AddEventHandler.
func (p *Player) RemoveEventHandlers() {
	p.eventHandlersLock.Lock()
	p.eventHandlers = make([]wrappedEventHandler, 0, 1)
	p.eventHandlersLock.Unlock()
}

func (p *Player) dispatchEvent(evt any) {
	p.eventHandlersLock.RLock()
	for _, handler := range p.eventHandlers {
		handler.fn(evt)
	}
	p.eventHandlersLock.RUnlock()
}
