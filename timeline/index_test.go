package timeline

import (
	"testing"
	"time"

	"go.mau.fi/chatreel/types"
)

// threeMessages resolves to delays of 950ms, 2s and 950ms.
func threeMessages() []types.Message {
	return []types.Message{
		{Speaker: "Ann", FromMe: true, Category: types.MessageText, Text: "0123456789"},
		{Category: types.MessagePause, Delay: "2s"},
		{Speaker: "Ben", Category: types.MessageText, Text: "9876543210"},
	}
}

func TestTimeOfSumsPrecedingDelays(t *testing.T) {
	idx := NewIndex(threeMessages())
	if actual := idx.TimeOf(2); actual != 2950*time.Millisecond {
		t.Fatalf("TimeOf(2), Expected %v, Actual %v", 2950*time.Millisecond, actual)
	}
	if actual := idx.TotalDuration(); actual != 3900*time.Millisecond {
		t.Fatalf("TotalDuration, Expected %v, Actual %v", 3900*time.Millisecond, actual)
	}
}

func TestSegmentsContiguous(t *testing.T) {
	msgs := []types.Message{
		{Category: types.MessageText, Text: "hello there"},
		{Category: types.MessageTyping, Text: "typing something"},
		{Category: types.MessagePause, Delay: "long"},
		{Category: types.MessageImage},
		{Category: types.MessageVoice, VoiceLength: "0:05"},
		{Category: types.MessageRecall, RecallOf: 0},
	}
	idx := NewIndex(msgs)
	segments := idx.Segments()
	if len(segments) != len(msgs) {
		t.Fatalf("segment count, Expected %d, Actual %d", len(msgs), len(segments))
	}
	if segments[0].Start != 0 {
		t.Errorf("first segment start, Expected 0, Actual %v", segments[0].Start)
	}
	for i := 1; i < len(segments); i++ {
		if segments[i].Start != segments[i-1].End {
			t.Errorf("segment %d start %v does not touch previous end %v", i, segments[i].Start, segments[i-1].End)
		}
	}
	if last := segments[len(segments)-1]; last.End != idx.TotalDuration() {
		t.Errorf("last segment end, Expected %v, Actual %v", idx.TotalDuration(), last.End)
	}
}

func TestIndexOfTimeOfRoundTrip(t *testing.T) {
	idx := NewIndex(threeMessages())
	for i := 0; i < idx.Len(); i++ {
		if actual := idx.IndexOf(idx.TimeOf(i)); actual != i {
			t.Errorf("IndexOf(TimeOf(%d)), Expected %d, Actual %d", i, i, actual)
		}
	}
}

func TestIndexOfBoundaries(t *testing.T) {
	idx := NewIndex(threeMessages())
	if actual := idx.IndexOf(-time.Second); actual != -1 {
		t.Errorf("IndexOf(-1s), Expected -1, Actual %d", actual)
	}
	// Time zero addresses the first message, the blank state is only reachable
	// by an explicit rewind.
	if actual := idx.IndexOf(0); actual != 0 {
		t.Errorf("IndexOf(0), Expected 0, Actual %d", actual)
	}
	if actual := idx.IndexOf(idx.TotalDuration()); actual != 2 {
		t.Errorf("IndexOf(total), Expected 2, Actual %d", actual)
	}
	if actual := idx.IndexOf(idx.TotalDuration() + time.Hour); actual != 2 {
		t.Errorf("IndexOf(past end), Expected 2, Actual %d", actual)
	}
	if actual := idx.IndexOf(time.Second); actual != 1 {
		t.Errorf("IndexOf(1s), Expected 1, Actual %d", actual)
	}
}

func TestTimeOfClamps(t *testing.T) {
	idx := NewIndex(threeMessages())
	if actual := idx.TimeOf(-1); actual != 0 {
		t.Errorf("TimeOf(-1), Expected 0, Actual %v", actual)
	}
	if actual := idx.TimeOf(-7); actual != 0 {
		t.Errorf("TimeOf(-7), Expected 0, Actual %v", actual)
	}
	if actual := idx.TimeOf(3); actual != idx.TotalDuration() {
		t.Errorf("TimeOf(len), Expected %v, Actual %v", idx.TotalDuration(), actual)
	}
	if actual := idx.TimeOf(99); actual != idx.TotalDuration() {
		t.Errorf("TimeOf(99), Expected %v, Actual %v", idx.TotalDuration(), actual)
	}
}

func TestProgressClamps(t *testing.T) {
	idx := NewIndex(threeMessages())
	if actual := idx.ProgressOf(-time.Second); actual != 0 {
		t.Errorf("ProgressOf(-1s), Expected 0, Actual %f", actual)
	}
	if actual := idx.ProgressOf(idx.TotalDuration() * 2); actual != 1 {
		t.Errorf("ProgressOf(2x total), Expected 1, Actual %f", actual)
	}
	half := idx.TotalDuration() / 2
	if actual := idx.TimeOfProgress(idx.ProgressOf(half)); actual != half {
		t.Errorf("TimeOfProgress round trip, Expected %v, Actual %v", half, actual)
	}
	if actual := idx.TimeOfProgress(-2); actual != 0 {
		t.Errorf("TimeOfProgress(-2), Expected 0, Actual %v", actual)
	}
	if actual := idx.TimeOfProgress(7); actual != idx.TotalDuration() {
		t.Errorf("TimeOfProgress(7), Expected %v, Actual %v", idx.TotalDuration(), actual)
	}
}

func TestEmptyIndex(t *testing.T) {
	idx := NewIndex(nil)
	if actual := idx.Len(); actual != 0 {
		t.Errorf("Len, Expected 0, Actual %d", actual)
	}
	if actual := idx.TotalDuration(); actual != 0 {
		t.Errorf("TotalDuration, Expected 0, Actual %v", actual)
	}
	if actual := idx.IndexOf(0); actual != -1 {
		t.Errorf("IndexOf(0), Expected -1, Actual %d", actual)
	}
	if actual := idx.IndexOf(time.Minute); actual != -1 {
		t.Errorf("IndexOf(1m), Expected -1, Actual %d", actual)
	}
	if actual := idx.TimeOf(0); actual != 0 {
		t.Errorf("TimeOf(0), Expected 0, Actual %v", actual)
	}
	if actual := idx.ProgressOf(time.Second); actual != 0 {
		t.Errorf("ProgressOf, Expected 0, Actual %f", actual)
	}
}

func TestUpdateRebuildsEverything(t *testing.T) {
	idx := NewIndex(threeMessages())
	oldTotal := idx.TotalDuration()
	idx.Update([]types.Message{{Category: types.MessageText, Text: "0123456789"}})
	if actual := idx.Len(); actual != 1 {
		t.Fatalf("Len after update, Expected 1, Actual %d", actual)
	}
	if actual := idx.TotalDuration(); actual != 950*time.Millisecond {
		t.Errorf("TotalDuration after update, Expected %v, Actual %v", 950*time.Millisecond, actual)
	}
	if idx.TotalDuration() == oldTotal {
		t.Error("update did not change the timeline")
	}
	if actual := idx.IndexOf(time.Hour); actual != 0 {
		t.Errorf("IndexOf past end after update, Expected 0, Actual %d", actual)
	}
}

func TestSegmentLookup(t *testing.T) {
	idx := NewIndex(threeMessages())
	seg, ok := idx.Segment(1)
	if !ok {
		t.Fatal("Segment(1) not found")
	}
	if seg.Category != types.MessagePause || seg.Duration() != 2*time.Second {
		t.Errorf("Segment(1), Expected 2s pause, Actual %v %v", seg.Category, seg.Duration())
	}
	if _, ok = idx.Segment(-1); ok {
		t.Error("Segment(-1) should not exist")
	}
	if _, ok = idx.Segment(3); ok {
		t.Error("Segment(3) should not exist")
	}
}
