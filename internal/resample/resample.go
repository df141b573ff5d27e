// Package resample converts PCM audio to the 16 kHz mono rate whisper.cpp
// expects, regardless of the rate a client captured at.
package resample

import "math"

const (
	// TargetRate is the sample rate all audio is resampled to before it is
	// handed to a worker for inference.
	TargetRate = 16000

	// sincHalfWidth is half the length, in input samples, of the windowed
	// sinc kernel used on each side of an output sample's source position.
	// A wider kernel trades CPU for a sharper cutoff; 128 on each side
	// (256 total taps) matches the quality used by the reference
	// implementation's fixed-ratio resampler.
	sincHalfWidth = 128

	// cutoff is the normalized cutoff frequency of the low-pass sinc,
	// relative to the smaller of the two sample rates' Nyquist frequency.
	// Kept slightly under 1.0 to leave transition-band headroom and avoid
	// aliasing at the rolloff edge.
	cutoff = 0.95
)

// To16kHz resamples mono float32 samples from srcRate to TargetRate using a
// windowed-sinc (Blackman-Harris) filter. If srcRate already equals
// TargetRate, samples is returned unchanged with no allocation.
func To16kHz(samples []float32, srcRate int) []float32 {
	return To(samples, srcRate, TargetRate)
}

// To resamples mono float32 samples from srcRate to dstRate using a
// windowed-sinc filter evaluated at each output sample's fractional source
// position. Equal rates are a no-op fast path.
func To(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	outLen := int(math.Ceil(float64(len(samples)) / ratio))
	out := make([]float32, outLen)

	// When downsampling, the sinc's own cutoff must additionally be scaled
	// by 1/ratio to reject content above the new, lower Nyquist frequency.
	filterCutoff := cutoff
	filterScale := 1.0
	if ratio > 1 {
		filterScale = 1.0 / ratio
		filterCutoff *= filterScale
	}

	for i := range out {
		srcPos := float64(i) * ratio
		out[i] = float32(convolveAt(samples, srcPos, filterCutoff, filterScale))
	}
	return out
}

// convolveAt evaluates the windowed-sinc reconstruction filter at a
// fractional source sample position, pulling in sincHalfWidth taps on
// either side (scaled by filterScale when downsampling, which widens the
// kernel in proportion to the rate reduction).
func convolveAt(samples []float32, srcPos float64, filterCutoff, filterScale float64) float64 {
	center := int(math.Floor(srcPos))
	halfWidth := int(math.Ceil(sincHalfWidth / filterScale))

	var sum, weightSum float64
	for k := center - halfWidth; k <= center+halfWidth; k++ {
		if k < 0 || k >= len(samples) {
			continue
		}
		x := srcPos - float64(k)
		w := sincKernel(x, filterCutoff) * blackmanHarris(x, float64(halfWidth))
		sum += w * float64(samples[k])
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

// sincKernel is the normalized sinc function scaled by the filter's cutoff
// frequency: cutoff * sin(pi*cutoff*x) / (pi*cutoff*x), which equals cutoff
// at x = 0.
func sincKernel(x, filterCutoff float64) float64 {
	px := math.Pi * filterCutoff * x
	if px == 0 {
		return filterCutoff
	}
	return filterCutoff * math.Sin(px) / px
}

// blackmanHarris is a four-term Blackman-Harris window, evaluated over
// [-halfWidth, halfWidth] and zero outside it. It tapers the sinc kernel to
// a finite support while keeping stopband ripple low.
func blackmanHarris(x, halfWidth float64) float64 {
	if halfWidth <= 0 || x < -halfWidth || x > halfWidth {
		return 0
	}
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	// Map x in [-halfWidth, halfWidth] to n in [0, 1].
	n := (x + halfWidth) / (2 * halfWidth)
	return a0 - a1*math.Cos(2*math.Pi*n) + a2*math.Cos(4*math.Pi*n) - a3*math.Cos(6*math.Pi*n)
}
