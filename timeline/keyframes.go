// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package timeline

import (
	"slices"
	"time"
	"unicode/utf8"

	"go.mau.fi/chatreel/types"
)

// Keyframe marks a notable timeline position that scrubbing snaps to: rich
// media, recalls, typing indicators, long texts and deliberate scripted waits.
type Keyframe struct {
	Time     time.Duration // When the message appears.
	Index    int
	Category types.MessageCategory
	Label    string
}

const (
	keyframeTextRunes  = 80
	keyframeDelayFloor = 2 * time.Second
	keyframeLabelRunes = 24
)

func computeKeyframes(msgs []types.Message, segments []Segment) []Keyframe {
	var frames []Keyframe
	for i, msg := range msgs {
		if !isKeyframe(msg, segments[i]) {
			continue
		}
		frames = append(frames, Keyframe{
			Time:     segments[i].Start,
			Index:    i,
			Category: msg.Category,
			Label:    keyframeLabel(msg),
		})
	}
	return frames
}

func isKeyframe(msg types.Message, seg Segment) bool {
	switch msg.Category {
	case types.MessageImage, types.MessageVoice, types.MessageLocation, types.MessageRecall, types.MessageTyping:
		return true
	}
	if msg.Category == types.MessageText && utf8.RuneCountInString(msg.Text) > keyframeTextRunes {
		return true
	}
	// A scripted delay hint long enough to be a narrative beat.
	if _, ok := ParseDelay(msg.Delay); ok && seg.Duration() >= keyframeDelayFloor {
		return true
	}
	return false
}

func keyframeLabel(msg types.Message) string {
	if msg.Category == types.MessageText && msg.Text != "" {
		if runes := []rune(msg.Text); len(runes) > keyframeLabelRunes {
			return string(runes[:keyframeLabelRunes]) + "…"
		}
		return msg.Text
	}
	return string(msg.Category)
}

// Keyframes returns a copy of the precomputed keyframes in timeline order.
func (idx *Index) Keyframes() []Keyframe {
	return slices.Clone(idx.keyframes)
}

// NearestKeyframe returns the keyframe closest to t, or nil when there is none
// within the given tolerance. Ties snap to the earlier keyframe.
func (idx *Index) NearestKeyframe(t, tolerance time.Duration) *Keyframe {
	var best *Keyframe
	var bestDist time.Duration
	for i := range idx.keyframes {
		dist := idx.keyframes[i].Time - t
		if dist < 0 {
			dist = -dist
		}
		if dist > tolerance {
			continue
		}
		if best == nil || dist < bestDist {
			kf := idx.keyframes[i]
			best = &kf
			bestDist = dist
		}
	}
	return best
}

// NextKeyframe returns the first keyframe strictly after t, or nil.
func (idx *Index) NextKeyframe(t time.Duration) *Keyframe {
	for i := range idx.keyframes {
		if idx.keyframes[i].Time > t {
			kf := idx.keyframes[i]
			return &kf
		}
	}
	return nil
}

// PreviousKeyframe returns the last keyframe strictly before t, or nil.
func (idx *Index) PreviousKeyframe(t time.Duration) *Keyframe {
	for i := len(idx.keyframes) - 1; i >= 0; i-- {
		if idx.keyframes[i].Time < t {
			kf := idx.keyframes[i]
			return &kf
		}
	}
	return nil
}
