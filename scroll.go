// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatreel

import (
	"unicode/utf8"

	"go.mau.fi/chatreel/events"
	"go.mau.fi/chatreel/types"
)

// Estimated bubble heights in pixels. These are deliberately rough: a display
// collaborator can replace them with measured values per message through
// SetMeasuredHeight.
const (
	rowHeightTextBase = 44.0
	rowHeightTextLine = 20.0
	// RowTextRunesPerLine is how many runes the height model fits on one
	// wrapped text line. Exported so frame renderers wrap the same way.
	RowTextRunesPerLine = 34

	rowHeightTyping   = 48.0
	rowHeightImage    = 220.0
	rowHeightVoice    = 64.0
	rowHeightLocation = 150.0
	rowHeightRecall   = 40.0

	rowGap = 8.0
)

// EstimateRowHeight returns the modeled on-screen height of one message
// bubble. Pause messages render nothing and take no space.
func EstimateRowHeight(msg types.Message) float64 {
	switch msg.Category {
	case types.MessagePause:
		return 0
	case types.MessageTyping:
		return rowHeightTyping
	case types.MessageImage:
		return rowHeightImage
	case types.MessageVoice:
		return rowHeightVoice
	case types.MessageLocation:
		return rowHeightLocation
	case types.MessageRecall:
		return rowHeightRecall
	default:
		lines := (utf8.RuneCountInString(msg.Text) + RowTextRunesPerLine - 1) / RowTextRunesPerLine
		if lines < 1 {
			lines = 1
		}
		return rowHeightTextBase + float64(lines-1)*rowHeightTextLine
	}
}

// SetMeasuredHeight overrides the estimated height of one message with a
// value measured by the display collaborator. Overrides are dropped when the
// message list is replaced. Non-positive heights and out-of-range indexes are
// ignored.
func (p *Player) SetMeasuredHeight(index int, height float64) {
	p.lock.Lock()
	if index < 0 || index >= len(p.messages) || height <= 0 {
		p.lock.Unlock()
		return
	}
	p.measuredHeights[index] = height
	p.refreshScrollLocked()
	evt := p.stateSyncLocked(events.SyncScroll)
	p.lock.Unlock()
	p.dispatchEvent(evt)
}

// SetScrollPosition applies a manual scroll offset and disables auto scroll
// until SetAutoScroll turns it back on. Negative offsets clamp to zero.
func (p *Player) SetScrollPosition(offset float64) {
	p.lock.Lock()
	if offset < 0 {
		offset = 0
	}
	p.autoScroll = false
	p.scrollPosition = offset
	evt := p.stateSyncLocked(events.SyncScroll)
	p.lock.Unlock()
	p.dispatchEvent(evt)
}

// SetAutoScroll toggles the automatic follow of the newest message. Enabling
// it immediately recomputes the scroll position.
func (p *Player) SetAutoScroll(on bool) {
	p.lock.Lock()
	if p.autoScroll == on {
		p.lock.Unlock()
		return
	}
	p.autoScroll = on
	p.refreshScrollLocked()
	evt := p.stateSyncLocked(events.SyncScroll)
	p.lock.Unlock()
	p.dispatchEvent(evt)
}

func (p *Player) rowHeightLocked(index int) float64 {
	if h, ok := p.measuredHeights[index]; ok {
		return h
	}
	return EstimateRowHeight(p.messages[index])
}

func (p *Player) contentHeightLocked() float64 {
	count := p.currentIndex + 1
	if p.mode == types.PlayModePreview {
		count = len(p.messages)
	}
	var total float64
	for i := 0; i < count; i++ {
		if h := p.rowHeightLocked(i); h > 0 {
			total += h + rowGap
		}
	}
	return total
}

// refreshScrollLocked pins the view to the bottom of the visible list when
// auto scroll is on.
func (p *Player) refreshScrollLocked() {
	if !p.autoScroll {
		return
	}
	scroll := p.contentHeightLocked() - p.viewportHeight
	if scroll < 0 {
		scroll = 0
	}
	p.scrollPosition = scroll
}
