// Package transcript holds the sparse, order-preserving store of translation
// responses that backs a session's rendered transcript.
package transcript

import (
	"sort"
	"strings"
	"sync"
)

// Response is one immutable segment of a transcription result.
type Response struct {
	SequenceNumber int
	SegmentNumber  int
	NumSegments    int
	SegmentStart   int64
	SegmentEnd     int64
	Text           string
	UUID           string
}

// sequence holds the segments received so far for one SequenceNumber. Total
// is the segment count reported by the first segment to arrive for this
// sequence; it is zero until that first arrival.
type sequence struct {
	total    int
	segments map[int]Response
}

// Store is a sparse two-level structure indexed by (sequence_number,
// segment_number). It is safe for concurrent use: inference workers add
// responses from worker goroutines while the connection writer reads the
// rendered transcript concurrently.
type Store struct {
	mu        sync.RWMutex
	sequences map[int]*sequence
}

// New returns an empty Store.
func New() *Store {
	return &Store{sequences: make(map[int]*sequence)}
}

// Add inserts resp into slot (resp.SequenceNumber, resp.SegmentNumber),
// growing either axis sparsely. The segment count recorded for a sequence is
// fixed by whichever response for that sequence arrives first.
func (s *Store) Add(resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[resp.SequenceNumber]
	if !ok {
		seq = &sequence{total: resp.NumSegments, segments: make(map[int]Response)}
		s.sequences[resp.SequenceNumber] = seq
	}
	seq.segments[resp.SegmentNumber] = resp
}

// Count returns the number of populated sequences.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sequences)
}

// String renders sequences in order, each sequence's segments concatenated
// in order. A sequence number with no entry at all renders as " .... "; a
// segment slot missing within a present sequence renders as " ... ".
func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.sequences) == 0 {
		return ""
	}

	keys := make([]int, 0, len(s.sequences))
	for k := range s.sequences {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	maxSeq := keys[len(keys)-1]

	var b strings.Builder
	for seqNum := 0; seqNum <= maxSeq; seqNum++ {
		seq, ok := s.sequences[seqNum]
		if !ok {
			b.WriteString(" .... ")
			continue
		}
		b.WriteString(renderSequence(seq))
	}
	return b.String()
}

// renderSequence concatenates a sequence's segments in order, filling any
// gap up to its recorded total with " ... ".
func renderSequence(seq *sequence) string {
	total := seq.total
	if total == 0 {
		total = maxSegmentNumber(seq.segments) + 1
	}

	var b strings.Builder
	for i := 0; i < total; i++ {
		resp, ok := seq.segments[i]
		if !ok {
			b.WriteString(" ... ")
			continue
		}
		b.WriteString(resp.Text)
	}
	return b.String()
}

func maxSegmentNumber(segments map[int]Response) int {
	max := -1
	for n := range segments {
		if n > max {
			max = n
		}
	}
	return max
}
