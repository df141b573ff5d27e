// Package segment finds utterance boundaries in a streaming PCM buffer.
//
// A session accumulates float32 samples as they arrive from the client. This
// package decides when enough audio has built up to cut the buffer into a
// completed utterance (to be dispatched for transcription) and a remainder
// (retained for the next utterance), based on a trailing run of low-energy
// samples.
package segment

const (
	// MinUtteranceSeconds is the minimum duration, in seconds, a buffer must
	// reach before a silence boundary is even considered. This keeps
	// inference batch sizes healthy by bounding utterance length from below.
	MinUtteranceSeconds = 15

	// SilenceWindowSeconds is the length, in seconds, of a trailing
	// low-energy run required to call it silence.
	SilenceWindowSeconds = 0.2

	// AmplitudeThreshold is the absolute-amplitude mean below which a run of
	// samples is considered silent.
	AmplitudeThreshold = 0.005
)

// FindSilence scans buffer for a trailing silence window and returns the
// index splitting it into "utterance up to pivot" and "retain after pivot".
// ok is false when no such boundary exists yet (including when buffer is
// shorter than MinUtteranceSeconds of audio at sampleRate).
//
// The scan starts at the minimum-utterance floor and maintains a running
// arithmetic mean of |sample| over the current candidate silence run. A
// sample that pushes the mean above 2*AmplitudeThreshold resets the run
// (hysteresis against a single loud sample breaking an otherwise-silent
// stretch); once the run is at least SilenceWindowSeconds long and its mean
// is at or below AmplitudeThreshold, the pivot is the middle of that window,
// leaving ramp-in headroom for the next utterance.
func FindSilence(buffer []float32, sampleRate int) (pivot int, ok bool) {
	minSamples := MinUtteranceSeconds * sampleRate
	length := len(buffer)
	if length < minSamples {
		return 0, false
	}

	silenceWindow := int(float64(sampleRate) * SilenceWindowSeconds)

	var total float32
	numSamples := 1
	idx := minSamples
	for idx < length {
		sample := abs32(buffer[idx])
		idx++
		total += sample
		avg := total / float32(numSamples)
		numSamples++

		switch {
		case avg > 2*AmplitudeThreshold:
			// A loud sample breaks the candidate silence run.
			total = sample
			numSamples = 1
		case avg <= AmplitudeThreshold && numSamples > silenceWindow:
			return idx - silenceWindow/2, true
		}
	}
	return 0, false
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
