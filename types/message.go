// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package types

import (
	"strings"
)

// MessageCategory tells the player and renderer what kind of bubble a
// scripted message produces and which timing rule applies to it.
type MessageCategory string

const (
	// MessageText is a plain text bubble.
	MessageText MessageCategory = "text"
	// MessagePause renders nothing and only inserts a wait before the next message.
	MessagePause MessageCategory = "pause"
	// MessageTyping shows a typing indicator from the message's speaker.
	MessageTyping MessageCategory = "typing"
	// MessageVoice is a voice note bubble with a spoken length.
	MessageVoice MessageCategory = "voice"
	// MessageImage is a picture bubble.
	MessageImage MessageCategory = "image"
	// MessageLocation is a shared location bubble.
	MessageLocation MessageCategory = "location"
	// MessageRecall retracts an earlier message ("this message was deleted").
	MessageRecall MessageCategory = "recall"
)

// ParseCategory normalizes a scripted category string. Unknown or empty values
// degrade to MessageText so a sloppy script still plays.
func ParseCategory(raw string) MessageCategory {
	switch MessageCategory(strings.ToLower(strings.TrimSpace(raw))) {
	case MessagePause:
		return MessagePause
	case MessageTyping:
		return MessageTyping
	case MessageVoice:
		return MessageVoice
	case MessageImage:
		return MessageImage
	case MessageLocation:
		return MessageLocation
	case MessageRecall:
		return MessageRecall
	default:
		return MessageText
	}
}

// Message is one scripted conversation entry. Messages are immutable values:
// the player never modifies them and edits always arrive as a full-list
// replacement.
type Message struct {
	Speaker  string          // Display name of the sender.
	FromMe   bool            // Whether the bubble renders on the outgoing (right) side.
	Category MessageCategory // Bubble kind, drives the timing rule.

	Text  string // Body for text messages, or the text being "typed" for typing ones.
	Delay string // Optional timing hint: explicit ("2s", "3 seconds") or descriptive ("moments later").

	VoiceLength string  // Spoken length of a voice note ("0:12" or "12s").
	ImagePath   string  // Path or URL of the picture for image messages.
	Latitude    float64 // Location messages only.
	Longitude   float64
	Place       string // Human-readable location label.

	RecallOf int // Index of the message being retracted. Negative when not set.
}

// Preview returns a short log-friendly description of the message.
func (m Message) Preview() string {
	if m.Category == MessageText || m.Category == MessageTyping {
		text := m.Text
		if runes := []rune(text); len(runes) > 40 {
			text = string(runes[:40]) + "…"
		}
		return string(m.Category) + " " + strings.ReplaceAll(text, "\n", " ")
	}
	return string(m.Category)
}
