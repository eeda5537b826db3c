// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package timeline

import (
	"slices"
	"sort"
	"time"

	"go.mau.fi/chatreel/types"
)

// Segment is the time interval during which one message is the newest visible
// one. Segments are contiguous: the first starts at zero, each one ends where
// the next begins and the last ends at the total duration.
type Segment struct {
	Start    time.Duration
	End      time.Duration
	Index    int
	Category types.MessageCategory
}

// Duration returns the resolved display delay the segment covers.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Index precomputes the timeline of a message list: per-message segments,
// total duration and keyframes. It is a passive lookup structure with no
// locking; the player rebuilds it whenever the list is replaced and reads it
// from under its own lock.
type Index struct {
	segments  []Segment
	keyframes []Keyframe
	total     time.Duration
}

// NewIndex builds a timeline for the given message list.
func NewIndex(msgs []types.Message) *Index {
	idx := &Index{}
	idx.Update(msgs)
	return idx
}

// Update recomputes the whole timeline from scratch. Message lists only change
// by wholesale replacement, so there is no incremental path.
func (idx *Index) Update(msgs []types.Message) {
	segments := make([]Segment, len(msgs))
	var t time.Duration
	for i, msg := range msgs {
		d := Resolve(msg)
		segments[i] = Segment{Start: t, End: t + d, Index: i, Category: msg.Category}
		t += d
	}
	idx.segments = segments
	idx.total = t
	idx.keyframes = computeKeyframes(msgs, segments)
}

// Len returns the number of messages the timeline covers.
func (idx *Index) Len() int {
	return len(idx.segments)
}

// TotalDuration returns the full replay length. Zero for an empty list.
func (idx *Index) TotalDuration() time.Duration {
	return idx.total
}

// Segments returns a copy of the per-message segments.
func (idx *Index) Segments() []Segment {
	return slices.Clone(idx.segments)
}

// Segment returns the segment of one message index.
func (idx *Index) Segment(i int) (Segment, bool) {
	if i < 0 || i >= len(idx.segments) {
		return Segment{}, false
	}
	return idx.segments[i], true
}

// TimeOf maps a message index to its timeline position: the time at which the
// message becomes visible. Indexes at or below -1 map to zero, indexes past
// the end map to the total duration.
func (idx *Index) TimeOf(i int) time.Duration {
	if i < 0 || len(idx.segments) == 0 {
		return 0
	}
	if i >= len(idx.segments) {
		return idx.total
	}
	return idx.segments[i].Start
}

// IndexOf maps a timeline position to the message index visible at that time.
// Strictly negative times (and any time on an empty list) map to -1, times at
// or past the end map to the last index. Time zero maps to index 0: the blank
// pre-playback state is only reachable by an explicit rewind, never by
// addressing a time.
func (idx *Index) IndexOf(t time.Duration) int {
	n := len(idx.segments)
	if n == 0 || t < 0 {
		return -1
	}
	if t >= idx.total {
		return n - 1
	}
	return sort.Search(n, func(i int) bool {
		return idx.segments[i].End > t
	})
}

// ProgressOf maps a timeline position to scrub progress in [0, 1].
func (idx *Index) ProgressOf(t time.Duration) float64 {
	if idx.total <= 0 {
		return 0
	}
	p := float64(t) / float64(idx.total)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// TimeOfProgress maps scrub progress back to a timeline position. Progress is
// clamped to [0, 1].
func (idx *Index) TimeOfProgress(p float64) time.Duration {
	if p <= 0 || idx.total <= 0 {
		return 0
	}
	if p >= 1 {
		return idx.total
	}
	return time.Duration(p * float64(idx.total))
}
