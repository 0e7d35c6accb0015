package analysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

const (
	fftWindowSize      = 8192
	maxAnalysisSeconds = 10
	minWindows         = 10

	referenceStartHz = 14000.0
	referenceEndHz   = 16000.0
	checkStartHz     = 17000.0
	checkBandWidthHz = 1000.0
	numCheckBands    = 6

	significantDropDB = 18.0
	minReliableDB     = -100.0
	magnitudeFloor    = 1e-10
)

// Outcome classifies a spectral analysis
type Outcome string

const (
	CutoffDetected                 Outcome = "cutoff_detected"
	NoCutoffDetected               Outcome = "no_cutoff_detected"
	InconclusiveNotEnoughWindows   Outcome = "inconclusive_not_enough_windows"
	InconclusiveReferenceBandError Outcome = "inconclusive_reference_band_error"
	InconclusiveLowReferenceLevel  Outcome = "inconclusive_low_reference_level"
)

// Inconclusive reports whether the analysis could not determine quality
func (o Outcome) Inconclusive() bool {
	return o != CutoffDetected && o != NoCutoffDetected
}

// QualityResult is the outcome of a spectral analysis together with its
// score and human readable assessment.
type QualityResult struct {
	Outcome Outcome

	CutoffHz      float64 // CutoffDetected
	BandDB        float64 // CutoffDetected
	ReferenceDB   float64 // all but NotEnoughWindows and ReferenceBandError
	MaxAnalyzedHz float64 // NoCutoffDetected

	Windows         int
	RequiredWindows int

	Score      float64
	Assessment string
}

// AnalyzeQuality decodes up to ten seconds of path and estimates its lossy
// encoder cutoff.
func AnalyzeQuality(ctx context.Context, dec Decoder, path string) (*QualityResult, error) {
	stream, err := dec.Open(ctx, path, maxAnalysisSeconds*time.Second)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return AnalyzeStream(ctx, stream)
}

// AnalyzeStream runs the spectral analysis over an open PCM stream
func AnalyzeStream(ctx context.Context, stream PCMStream) (*QualityResult, error) {
	rate, channels := stream.SampleRate(), stream.Channels()
	if rate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid stream: %d Hz, %d channels", rate, channels)
	}

	spectrum, windows, err := averageSpectrum(ctx, stream, rate, channels)
	if err != nil {
		return nil, err
	}

	result := classify(windows, spectrum, rate)
	result.Score, result.Assessment = Score(result)
	return result, nil
}

// averageSpectrum mixes to mono, runs Hann-windowed FFTs over consecutive
// non-overlapping windows and averages the per-bin dB levels.
func averageSpectrum(ctx context.Context, stream PCMStream, rate, channels int) ([]float64, int, error) {
	fft := fourier.NewFFT(fftWindowSize)
	bins := fftWindowSize / 2
	acc := make([]float64, bins)
	frame := make([]float64, 0, fftWindowSize)
	var coeffs []complex128

	maxFrames := maxAnalysisSeconds * rate
	frames := 0
	windows := 0

	buf := make([]float32, 4096*channels)
	for frames < maxFrames {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		n, err := stream.Read(buf)
		for i := 0; i+channels <= n && frames < maxFrames; i += channels {
			var sum float32
			for ch := 0; ch < channels; ch++ {
				sum += buf[i+ch]
			}
			frame = append(frame, float64(sum/float32(channels)))
			frames++

			if len(frame) == fftWindowSize {
				window.Hann(frame)
				coeffs = fft.Coefficients(coeffs, frame)
				for b := 0; b < bins; b++ {
					acc[b] += 20 * math.Log10(math.Max(cmplx.Abs(coeffs[b]), magnitudeFloor))
				}
				windows++
				frame = frame[:0]
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, 0, err
		}
	}

	if windows > 0 {
		for b := range acc {
			acc[b] /= float64(windows)
		}
	}
	return acc, windows, nil
}

func classify(windows int, spectrum []float64, rate int) *QualityResult {
	if windows < minWindows {
		return &QualityResult{Outcome: InconclusiveNotEnoughWindows, Windows: windows, RequiredWindows: minWindows}
	}
	if len(spectrum) == 0 {
		return &QualityResult{Outcome: InconclusiveReferenceBandError, Windows: windows}
	}

	nyquist := float64(rate) / 2
	freqPerBin := nyquist / float64(len(spectrum))

	// The reference band must fit below Nyquist, clamped bins would
	// compare the top bin with itself.
	if referenceEndHz > nyquist {
		return &QualityResult{Outcome: InconclusiveReferenceBandError, Windows: windows}
	}

	reference, ok := bandAverage(referenceStartHz, referenceEndHz, freqPerBin, spectrum)
	if !ok {
		return &QualityResult{Outcome: InconclusiveReferenceBandError, Windows: windows}
	}
	if reference < minReliableDB {
		return &QualityResult{Outcome: InconclusiveLowReferenceLevel, ReferenceDB: reference, Windows: windows}
	}

	maxAnalyzed := referenceEndHz
	for i := 0; i < numCheckBands; i++ {
		start := checkStartHz + float64(i)*checkBandWidthHz
		if start >= nyquist {
			break
		}
		end := math.Min(start+checkBandWidthHz, nyquist)
		maxAnalyzed = end

		level, ok := bandAverage(start, end, freqPerBin, spectrum)
		if ok && reference-level > significantDropDB {
			return &QualityResult{
				Outcome:     CutoffDetected,
				CutoffHz:    start,
				ReferenceDB: reference,
				BandDB:      level,
				Windows:     windows,
			}
		}
	}

	return &QualityResult{Outcome: NoCutoffDetected, ReferenceDB: reference, MaxAnalyzedHz: maxAnalyzed, Windows: windows}
}

// bandAverage averages the dB level of the bins covering [lo, hi]
func bandAverage(lo, hi, freqPerBin float64, spectrum []float64) (float64, bool) {
	last := len(spectrum) - 1
	start := min(int(math.Round(lo/freqPerBin)), last)
	end := min(int(math.Round(hi/freqPerBin)), last)
	if start > end || start < 0 {
		return 0, false
	}

	sum := 0.0
	for _, db := range spectrum[start : end+1] {
		sum += db
	}
	return sum / float64(end-start+1), true
}

// ScoreForCutoff maps a detected cutoff frequency onto a 3..9.8 score
func ScoreForCutoff(hz float64) float64 {
	switch {
	case hz >= 21500:
		return 9.8
	case hz >= 20500:
		return 9.0
	case hz >= 19500:
		return 8.0
	case hz >= 18500:
		return 7.0
	case hz >= 17500:
		return 6.0
	case hz >= 16500:
		return 5.0
	case hz >= 15500:
		return 4.0
	default:
		return 3.0
	}
}

// AssessmentFor names a cutoff score
func AssessmentFor(score float64) string {
	switch {
	case score >= 9.5:
		return "Excellent"
	case score >= 8.5:
		return "Very High"
	case score >= 7.5:
		return "High"
	case score >= 6.5:
		return "Good"
	case score >= 5.5:
		return "Medium-High"
	case score >= 4.5:
		return "Medium"
	case score >= 3.5:
		return "Medium-Low"
	default:
		return "Low"
	}
}

// Score returns the quality score and assessment for a result. Inconclusive
// outcomes score 0 and explain themselves in the assessment.
func Score(r *QualityResult) (float64, string) {
	switch r.Outcome {
	case CutoffDetected:
		score := ScoreForCutoff(r.CutoffHz)
		return score, AssessmentFor(score)
	case NoCutoffDetected:
		return 10.0, "Perfect"
	case InconclusiveNotEnoughWindows:
		return 0, fmt.Sprintf("Incomplete analysis (insufficient windows %d/%d). Quality not determined.", r.Windows, r.RequiredWindows)
	case InconclusiveReferenceBandError:
		return 0, "Incomplete analysis (error in reference band). Quality not determined."
	case InconclusiveLowReferenceLevel:
		return 0, fmt.Sprintf("Analysis inconclusive (low reference level %.1f dB). Quality not determined.", r.ReferenceDB)
	}
	return 0, "Analysis inconclusive"
}
