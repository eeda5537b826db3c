// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package timeline converts a scripted message list into replay timing: it
// resolves per-message display delays and precomputes a segment index that
// maps between time, message index and scrub progress.
package timeline

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.mau.fi/chatreel/types"
)

// Timing rules for messages without a usable delay hint.
const (
	textBaseDelay    = 700 * time.Millisecond
	textPerRuneDelay = 25 * time.Millisecond
	textMaxDelay     = 4 * time.Second

	// Typing indicators run at roughly 2.5 words per second.
	typingPerWordDelay = 400 * time.Millisecond
	typingMinDelay     = 900 * time.Millisecond
	typingMaxDelay     = 5 * time.Second

	voicePostDelay    = 800 * time.Millisecond
	voiceMinDelay     = 1200 * time.Millisecond
	voiceMaxDelay     = 10 * time.Second
	voiceDefaultDelay = 2500 * time.Millisecond

	imageDelay    = 2 * time.Second
	locationDelay = 2200 * time.Millisecond
	recallDelay   = 1500 * time.Millisecond
	pauseDelay    = 1500 * time.Millisecond

	// Scripted pauses longer than this are compressed so a "5 minute" gap
	// plays as a short beat instead of wall clock time.
	pauseCompressThreshold = 3 * time.Second
	pauseCompressCap       = 4 * time.Second
	pauseCompressSlope     = 250 * time.Millisecond

	// Zero-length segments would make two messages share a timeline position,
	// so even an explicit "0s" resolves to a token wait.
	minResolvedDelay = 10 * time.Millisecond
)

// descriptiveDelays maps narrative timing tokens to concrete waits.
var descriptiveDelays = map[string]time.Duration{
	"instant":       300 * time.Millisecond,
	"short":         500 * time.Millisecond,
	"medium":        1200 * time.Millisecond,
	"long":          2500 * time.Millisecond,
	"moments later": 1500 * time.Millisecond,
	"later":         2 * time.Second,
	"much later":    3500 * time.Millisecond,
	"hours later":   4 * time.Second,
}

var explicitDelayRegex = regexp.MustCompile(`^([0-9]+(?:[.,][0-9]+)?)\s*(ms|milliseconds?|s|secs?|seconds?|m|mins?|minutes?|h|hrs?|hours?)$`)
var voiceLengthRegex = regexp.MustCompile(`^([0-9]+):([0-5]?[0-9])$`)

// Resolve computes the display delay of a message: how long the replay waits
// before this message appears. It is pure and never fails. An explicit or
// descriptive Delay hint wins, anything unparsable silently degrades to the
// category default.
func Resolve(msg types.Message) time.Duration {
	d, ok := ParseDelay(msg.Delay)
	if !ok {
		d = defaultDelay(msg)
	}
	if msg.Category == types.MessagePause {
		d = compressPause(d)
	}
	return max(d, minResolvedDelay)
}

// ParseDelay parses a scripted delay hint. It accepts explicit durations like
// "800ms", "2s", "1.5 s", "3 seconds" or "2 min" as well as the descriptive
// tokens ("short", "moments later", ...). The second return is false when the
// hint is empty or unrecognized.
func ParseDelay(raw string) (time.Duration, bool) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if norm == "" {
		return 0, false
	}
	norm = strings.Join(strings.Fields(norm), " ")
	if d, ok := descriptiveDelays[norm]; ok {
		return d, true
	}
	match := explicitDelayRegex.FindStringSubmatch(norm)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	var unit time.Duration
	switch match[2][0] {
	case 'm':
		if strings.HasPrefix(match[2], "ms") || strings.HasPrefix(match[2], "milli") {
			unit = time.Millisecond
		} else {
			unit = time.Minute
		}
	case 's':
		unit = time.Second
	case 'h':
		unit = time.Hour
	}
	return time.Duration(math.Round(value * float64(unit))), true
}

func defaultDelay(msg types.Message) time.Duration {
	switch msg.Category {
	case types.MessageTyping:
		words := len(strings.Fields(msg.Text))
		return clampDelay(time.Duration(words)*typingPerWordDelay, typingMinDelay, typingMaxDelay)
	case types.MessageVoice:
		spoken, ok := ParseVoiceLength(msg.VoiceLength)
		if !ok {
			return voiceDefaultDelay
		}
		return clampDelay(spoken+voicePostDelay, voiceMinDelay, voiceMaxDelay)
	case types.MessageImage:
		return imageDelay
	case types.MessageLocation:
		return locationDelay
	case types.MessageRecall:
		return recallDelay
	case types.MessagePause:
		return pauseDelay
	default:
		runes := utf8.RuneCountInString(msg.Text)
		return clampDelay(textBaseDelay+time.Duration(runes)*textPerRuneDelay, textBaseDelay, textMaxDelay)
	}
}

// ParseVoiceLength parses the spoken length of a voice note: "0:12", "12s" or
// a bare number of seconds.
func ParseVoiceLength(raw string) (time.Duration, bool) {
	norm := strings.TrimSpace(raw)
	if norm == "" {
		return 0, false
	}
	if match := voiceLengthRegex.FindStringSubmatch(norm); match != nil {
		mins, _ := strconv.Atoi(match[1])
		secs, _ := strconv.Atoi(match[2])
		return time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second, true
	}
	if d, ok := ParseDelay(norm); ok {
		return d, true
	}
	if secs, err := strconv.ParseFloat(norm, 64); err == nil && secs >= 0 {
		return time.Duration(math.Round(secs * float64(time.Second))), true
	}
	return 0, false
}

// compressPause squashes long scripted waits logarithmically above the
// threshold. Monotone until the cap, identity below the threshold.
func compressPause(d time.Duration) time.Duration {
	if d <= pauseCompressThreshold {
		return d
	}
	extra := math.Log2(float64(d) / float64(pauseCompressThreshold))
	out := pauseCompressThreshold + time.Duration(math.Round(extra*float64(pauseCompressSlope)))
	return min(out, pauseCompressCap)
}

func clampDelay(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
