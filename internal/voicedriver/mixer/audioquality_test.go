package mixer_test

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/mjibson/go-dsp/fft"
	"github.com/stretchr/testify/assert"

	"github.com/Raikerian/voxd/internal/voicedriver/mixer"
)

// measureTHD is a trimmed version of the teacher's FFT-based
// AudioQualityAnalyzer.MeasureTHD (internal/voice/audio_mixer_test.go),
// adapted to check that SoftClip's knee doesn't introduce gross harmonic
// distortion on a signal that never reaches the knee, while allowing the
// (expected) rise in distortion once it does.
func measureTHD(samples []float64, fundamental, sampleRate float64) float64 {
	fftData := fft.FFTReal(samples)
	magnitudes := make([]float64, len(fftData))
	for i, c := range fftData {
		magnitudes[i] = cmplx.Abs(c)
	}

	power := func(freq float64) float64 {
		bin := int(freq * float64(len(magnitudes)) / sampleRate)
		if bin < 0 || bin >= len(magnitudes)/2 {
			return 0
		}
		var p float64
		for i := bin - 2; i <= bin+2; i++ {
			if i >= 0 && i < len(magnitudes)/2 {
				p += magnitudes[i] * magnitudes[i]
			}
		}
		return p
	}

	fundamentalPower := power(fundamental)
	if fundamentalPower == 0 {
		return 1.0
	}
	var harmonicPower float64
	for h := 2; h <= 5; h++ {
		harmonicPower += power(fundamental * float64(h))
	}
	return math.Sqrt(harmonicPower/fundamentalPower) * 100
}

func sineWave(frequency, amplitude, sampleRate float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return out
}

func toFloat64(samples []float32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}

func TestSoftClipLeavesLowAmplitudeSignalUndistorted(t *testing.T) {
	const sampleRate = 48000.0
	const freq = 440.0
	quiet := sineWave(freq, 0.5, sampleRate, 2048) // stays under the 0.7 knee throughout

	clipped := mixer.SoftClip(quiet)

	// measureTHD uses an unwindowed FFT, so spectral leakage alone reads
	// a few percent on a pure sine; compare against that baseline.
	baseline := measureTHD(toFloat64(quiet), freq, sampleRate)
	thd := measureTHD(toFloat64(clipped), freq, sampleRate)
	assert.InDelta(t, baseline, thd, 0.01, "a signal that never reaches the knee should pass through without added harmonic distortion")
}

func TestSoftClipBoundsDistortionForLoudSignal(t *testing.T) {
	const sampleRate = 48000.0
	const freq = 440.0
	loud := sineWave(freq, 0.95, sampleRate, 2048) // well past the 0.7 knee on every peak

	clipped := mixer.SoftClip(loud)

	thd := measureTHD(toFloat64(clipped), freq, sampleRate)
	// The knee trades some harmonic content for headroom; it should never
	// approach the ~100% distortion of a hard clip at this amplitude.
	assert.Less(t, thd, 40.0)
}
