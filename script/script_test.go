// Copyright (c) 2026 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package script

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.mau.fi/chatreel/types"
)

const sampleYAML = `
title: Catching up
speakers:
  - name: Ben
  - name: Ada
messages:
  - from: Ben
    text: hey, long time!
  - from: Ada
    type: typing
    text: yeah! way too long
  - from: Ada
    text: yeah! way too long
    duration: moments later
  - from: Ben
    type: voice
    voice_length: "0:12"
  - from: Ada
    type: image
    image: pics/beach.jpg
    duration: 3s
  - from: Ada
    type: location
    lat: 60.1699
    lon: 24.9384
    place: Helsinki
  - from: Ben
    type: recall
    recall_of: 3
`

const sampleJSON = `{
  "title": "Catching up",
  "speakers": [{"name": "Ben"}, {"name": "Ada", "side": "incoming"}],
  "messages": [
    {"from": "Ben", "text": "hey, long time!"},
    {"from": "Ada", "text": "yeah!", "duration": "2s"}
  ]
}`

func TestParseYAML(t *testing.T) {
	parsed, err := Parse([]byte(sampleYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Expected parse to succeed, Actual %v", err)
	}
	if parsed.Title != "Catching up" {
		t.Errorf("Expected title to survive, Actual %q", parsed.Title)
	}
	if len(parsed.Speakers) != 2 || len(parsed.Entries) != 7 {
		t.Fatalf("Expected 2 speakers and 7 entries, Actual %d and %d", len(parsed.Speakers), len(parsed.Entries))
	}
	voice := parsed.Entries[3]
	if voice.Type != "voice" || voice.VoiceLength != "0:12" {
		t.Errorf("Expected voice entry with length, Actual %+v", voice)
	}
	location := parsed.Entries[5]
	if location.Latitude != 60.1699 || location.Longitude != 24.9384 || location.Place != "Helsinki" {
		t.Errorf("Expected location fields, Actual %+v", location)
	}
	recall := parsed.Entries[6]
	if recall.RecallOf == nil || *recall.RecallOf != 3 {
		t.Errorf("Expected recall_of 3, Actual %+v", recall.RecallOf)
	}
}

func TestParseJSON(t *testing.T) {
	parsed, err := Parse([]byte(sampleJSON), FormatJSON)
	if err != nil {
		t.Fatalf("Expected parse to succeed, Actual %v", err)
	}
	if len(parsed.Entries) != 2 {
		t.Fatalf("Expected 2 entries, Actual %d", len(parsed.Entries))
	}
	if parsed.Entries[1].Duration != "2s" {
		t.Errorf("Expected duration hint to survive, Actual %q", parsed.Entries[1].Duration)
	}
}

func TestSniff(t *testing.T) {
	if format := Sniff([]byte(sampleJSON)); format != FormatJSON {
		t.Errorf("Expected JSON sniff, Actual %v", format)
	}
	if format := Sniff([]byte(sampleYAML)); format != FormatYAML {
		t.Errorf("Expected YAML sniff, Actual %v", format)
	}
	if format := Sniff([]byte("  \n\t[1]")); format != FormatJSON {
		t.Errorf("Expected JSON sniff after whitespace, Actual %v", format)
	}
}

func TestParseSniffsWhenFormatEmpty(t *testing.T) {
	parsed, err := Parse([]byte(sampleJSON), "")
	if err != nil {
		t.Fatalf("Expected sniffed parse to succeed, Actual %v", err)
	}
	if parsed.Title != "Catching up" {
		t.Errorf("Expected JSON content to be recognized, Actual %+v", parsed)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "chat.yaml")
	if err := os.WriteFile(yamlPath, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	// JSON content behind a nondescript extension exercises the sniffer.
	sniffPath := filepath.Join(dir, "chat.script")
	if err := os.WriteFile(sniffPath, []byte(sampleJSON), 0o600); err != nil {
		t.Fatal(err)
	}

	fromYAML, err := Load(yamlPath)
	if err != nil {
		t.Fatalf("Expected YAML load to succeed, Actual %v", err)
	}
	if len(fromYAML.Entries) != 7 {
		t.Errorf("Expected 7 entries, Actual %d", len(fromYAML.Entries))
	}
	fromSniffed, err := Load(sniffPath)
	if err != nil {
		t.Fatalf("Expected sniffed load to succeed, Actual %v", err)
	}
	if len(fromSniffed.Entries) != 2 {
		t.Errorf("Expected 2 entries, Actual %d", len(fromSniffed.Entries))
	}

	if _, err = Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestParseErrorsCarryLines(t *testing.T) {
	_, err := Parse([]byte("{\n  \"messages\": [\n    {\"from\": 42}\n  ]\n}"), FormatJSON)
	if err == nil {
		t.Fatal("Expected a type error")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("Expected the error to name line 3, Actual %q", err)
	}

	_, err = Parse([]byte("messages:\n  - from: Ben\n    lat: not-a-number\n"), FormatYAML)
	if err == nil {
		t.Fatal("Expected a YAML type error")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("Expected the error to name line 3, Actual %q", err)
	}
}

func TestMessagesSideInference(t *testing.T) {
	parsed, err := Parse([]byte(sampleYAML), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	msgs := parsed.Messages()
	if len(msgs) != 7 {
		t.Fatalf("Expected 7 messages, Actual %d", len(msgs))
	}
	// Ben is listed first without a side, so he owns the outgoing side.
	for i, msg := range msgs {
		expected := msg.Speaker == "Ben"
		if msg.FromMe != expected {
			t.Errorf("Expected message #%d from %s to have FromMe=%v, Actual %v", i, msg.Speaker, expected, msg.FromMe)
		}
	}
}

func TestMessagesExplicitSideWins(t *testing.T) {
	parsed := &Script{
		Speakers: []Speaker{{Name: "Ben", Side: SideIncoming}, {Name: "Ada", Side: SideOutgoing}},
		Entries:  []Entry{{From: "Ben", Text: "a"}, {From: "Ada", Text: "b"}},
	}
	msgs := parsed.Messages()
	if msgs[0].FromMe {
		t.Error("Expected Ben to be incoming when declared so")
	}
	if !msgs[1].FromMe {
		t.Error("Expected Ada to be outgoing when declared so")
	}
}

func TestMessagesUnlistedSpeakerIncoming(t *testing.T) {
	parsed := &Script{
		Speakers: []Speaker{{Name: "Ben"}},
		Entries:  []Entry{{From: "Stranger", Text: "hi"}},
	}
	if parsed.Messages()[0].FromMe {
		t.Error("Expected an unlisted speaker to default to incoming")
	}
}

func TestMessagesNoTableOpenerOutgoing(t *testing.T) {
	parsed := &Script{Entries: []Entry{
		{From: "Ada", Text: "first"},
		{From: "Ben", Text: "second"},
		{From: "Ada", Text: "third"},
	}}
	msgs := parsed.Messages()
	if !msgs[0].FromMe || !msgs[2].FromMe {
		t.Error("Expected the opener to own the outgoing side without a speaker table")
	}
	if msgs[1].FromMe {
		t.Error("Expected the second speaker to be incoming")
	}
}

func TestMessagesCategoryAndFields(t *testing.T) {
	parsed, err := Parse([]byte(sampleYAML), FormatYAML)
	if err != nil {
		t.Fatal(err)
	}
	msgs := parsed.Messages()
	expected := []types.MessageCategory{
		types.MessageText, types.MessageTyping, types.MessageText,
		types.MessageVoice, types.MessageImage, types.MessageLocation,
		types.MessageRecall,
	}
	for i, category := range expected {
		if msgs[i].Category != category {
			t.Errorf("Expected message #%d to be %s, Actual %s", i, category, msgs[i].Category)
		}
	}
	if msgs[2].Delay != "moments later" {
		t.Errorf("Expected the descriptive delay to be carried, Actual %q", msgs[2].Delay)
	}
	if msgs[4].ImagePath != "pics/beach.jpg" {
		t.Errorf("Expected the image path to be carried, Actual %q", msgs[4].ImagePath)
	}
	if msgs[6].RecallOf != 3 {
		t.Errorf("Expected recall target 3, Actual %d", msgs[6].RecallOf)
	}
	// Unset recall targets map to the sentinel.
	if msgs[0].RecallOf != -1 {
		t.Errorf("Expected -1 for unset recall target, Actual %d", msgs[0].RecallOf)
	}
}

func TestMessagesUnknownCategoryDegrades(t *testing.T) {
	parsed := &Script{Entries: []Entry{{From: "Ben", Type: "hologram", Text: "hi"}}}
	if category := parsed.Messages()[0].Category; category != types.MessageText {
		t.Errorf("Expected unknown category to degrade to text, Actual %s", category)
	}
}

func TestMessagesBadDurationIsNotAnError(t *testing.T) {
	parsed, err := Parse([]byte("messages:\n  - from: Ben\n    text: hi\n    duration: soonish-ish\n"), FormatYAML)
	if err != nil {
		t.Fatalf("Expected a bad duration hint to parse fine, Actual %v", err)
	}
	if parsed.Messages()[0].Delay != "soonish-ish" {
		t.Error("Expected the unparseable hint to be carried verbatim")
	}
}
