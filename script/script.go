// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package script deserializes conversation scripts from YAML or JSON files
// and converts them into the message list the player consumes.
package script

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"go.mau.fi/chatreel/types"
)

// Format identifies the serialization of a script file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Side tells which edge of the screen a speaker's bubbles attach to.
type Side string

const (
	SideOutgoing Side = "outgoing"
	SideIncoming Side = "incoming"
)

// Speaker declares a participant. The side is optional: the first listed
// speaker defaults to outgoing and everyone else to incoming.
type Speaker struct {
	Name string `yaml:"name" json:"name"`
	Side Side   `yaml:"side,omitempty" json:"side,omitempty"`
}

// Entry is one scripted message as written in the file. Everything except
// the text is optional; unknown types degrade to text and malformed duration
// strings are kept verbatim so the timing rules can fall back to defaults.
type Entry struct {
	From        string  `yaml:"from,omitempty" json:"from,omitempty"`
	Type        string  `yaml:"type,omitempty" json:"type,omitempty"`
	Text        string  `yaml:"text,omitempty" json:"text,omitempty"`
	Duration    string  `yaml:"duration,omitempty" json:"duration,omitempty"`
	VoiceLength string  `yaml:"voice_length,omitempty" json:"voice_length,omitempty"`
	Image       string  `yaml:"image,omitempty" json:"image,omitempty"`
	Latitude    float64 `yaml:"lat,omitempty" json:"lat,omitempty"`
	Longitude   float64 `yaml:"lon,omitempty" json:"lon,omitempty"`
	Place       string  `yaml:"place,omitempty" json:"place,omitempty"`
	RecallOf    *int    `yaml:"recall_of,omitempty" json:"recall_of,omitempty"`
}

// Script is a parsed conversation script.
type Script struct {
	Title    string    `yaml:"title,omitempty" json:"title,omitempty"`
	Speakers []Speaker `yaml:"speakers,omitempty" json:"speakers,omitempty"`
	Entries  []Entry   `yaml:"messages" json:"messages"`
}

// FormatForPath guesses the format from the file extension. Unknown
// extensions return an empty format, which makes Parse sniff the content.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// Sniff guesses the format from the content: JSON documents start with an
// object or array, everything else is treated as YAML.
func Sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}

// Load reads and parses a script file, picking the format from the
// extension and falling back to content sniffing.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	parsed, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return parsed, nil
}

// Parse deserializes a script document. An empty format sniffs the content.
func Parse(data []byte, format Format) (*Script, error) {
	if format == "" {
		format = Sniff(data)
	}
	var parsed Script
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &parsed); err != nil {
			if line := jsonErrorLine(data, err); line > 0 {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			return nil, err
		}
	case FormatYAML:
		// yaml.v3 errors already carry line numbers.
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown script format %q", format)
	}
	return &parsed, nil
}

// jsonErrorLine converts the byte offset in a stdlib JSON error into a
// 1-based line number, or 0 when the error carries no offset.
func jsonErrorLine(data []byte, err error) int {
	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return 0
	}
	if offset <= 0 || offset > int64(len(data)) {
		return 0
	}
	return bytes.Count(data[:offset], []byte{'\n'}) + 1
}

// Messages converts the script into the player's message list. The speaker
// table decides sides: an explicit side always wins, otherwise the first
// listed speaker is outgoing and the rest incoming. With no table at all the
// first speaker to appear in the messages takes the outgoing side.
func (s *Script) Messages() []types.Message {
	sides := make(map[string]Side, len(s.Speakers))
	for i, speaker := range s.Speakers {
		side := speaker.Side
		if side != SideOutgoing && side != SideIncoming {
			if i == 0 {
				side = SideOutgoing
			} else {
				side = SideIncoming
			}
		}
		sides[speaker.Name] = side
	}

	msgs := make([]types.Message, len(s.Entries))
	for i, entry := range s.Entries {
		side, known := sides[entry.From]
		if !known && entry.From != "" {
			if len(sides) == 0 {
				// No speaker table: the opener owns the outgoing side.
				side = SideOutgoing
			} else {
				side = SideIncoming
			}
			sides[entry.From] = side
		}
		recallOf := -1
		if entry.RecallOf != nil {
			recallOf = *entry.RecallOf
		}
		msgs[i] = types.Message{
			Speaker:     entry.From,
			FromMe:      side == SideOutgoing,
			Category:    types.ParseCategory(entry.Type),
			Text:        entry.Text,
			Delay:       entry.Duration,
			VoiceLength: entry.VoiceLength,
			ImagePath:   entry.Image,
			Latitude:    entry.Latitude,
			Longitude:   entry.Longitude,
			Place:       entry.Place,
			RecallOf:    recallOf,
		}
	}
	return msgs
}
