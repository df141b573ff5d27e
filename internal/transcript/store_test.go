package transcript

import "testing"

func TestStore_EmptyRendersEmpty(t *testing.T) {
	s := New()
	if got := s.String(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
	if s.Count() != 0 {
		t.Fatalf("expected count 0, got %d", s.Count())
	}
}

func TestStore_SingleCompleteSequence(t *testing.T) {
	s := New()
	s.Add(Response{SequenceNumber: 0, SegmentNumber: 0, NumSegments: 2, Text: "hello "})
	s.Add(Response{SequenceNumber: 0, SegmentNumber: 1, NumSegments: 2, Text: "world"})

	want := "hello world"
	if got := s.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if s.Count() != 1 {
		t.Fatalf("expected count 1, got %d", s.Count())
	}
}

func TestStore_MissingSegmentFillsEllipsis(t *testing.T) {
	s := New()
	s.Add(Response{SequenceNumber: 0, SegmentNumber: 0, NumSegments: 3, Text: "one "})
	s.Add(Response{SequenceNumber: 0, SegmentNumber: 2, NumSegments: 3, Text: "three"})

	want := "one  ... three"
	if got := s.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestStore_MissingSequenceFillsEllipsis(t *testing.T) {
	s := New()
	s.Add(Response{SequenceNumber: 0, SegmentNumber: 0, NumSegments: 1, Text: "first"})
	s.Add(Response{SequenceNumber: 2, SegmentNumber: 0, NumSegments: 1, Text: "third"})

	want := "first .... third"
	if got := s.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if s.Count() != 2 {
		t.Fatalf("expected count 2, got %d", s.Count())
	}
}

func TestStore_OutOfOrderArrival(t *testing.T) {
	s := New()
	s.Add(Response{SequenceNumber: 1, SegmentNumber: 1, NumSegments: 2, Text: "b"})
	s.Add(Response{SequenceNumber: 0, SegmentNumber: 0, NumSegments: 1, Text: "a"})
	s.Add(Response{SequenceNumber: 1, SegmentNumber: 0, NumSegments: 2, Text: "x"})

	want := "axb"
	if got := s.String(); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
