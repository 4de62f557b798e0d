package dsp

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// response evaluates the filter frequency response at f Hz.
func response(b, a []float64, f, fs float64) float64 {
	z := cmplx.Exp(complex(0, -2*math.Pi*f/fs))
	var num, den complex128
	zk := complex(1, 0)
	for i := range b {
		num += complex(b[i], 0) * zk
		if i < len(a) {
			den += complex(a[i], 0) * zk
		}
		zk *= z
	}
	return cmplx.Abs(num / den)
}

func TestButter_Response(t *testing.T) {
	tests := []struct {
		order  int
		cutoff float64
		fs     float64
	}{
		{3, 2000, 1e6},
		{3, 20000, 1e6},
		{1, 100, 1000},
		{4, 250, 1000},
	}

	for _, tt := range tests {
		b, a, err := Butter(tt.order, tt.cutoff, tt.fs)
		require.NoError(t, err)
		require.Len(t, b, tt.order+1)
		require.Len(t, a, tt.order+1)
		assert.InDelta(t, 1.0, a[0], 1e-12)

		assert.InDelta(t, 1.0, response(b, a, 0, tt.fs), 1e-9, "DC gain")
		assert.InDelta(t, 1/math.Sqrt2, response(b, a, tt.cutoff, tt.fs), 1e-6, "gain at cutoff")
		assert.InDelta(t, 0.0, response(b, a, tt.fs/2, tt.fs), 1e-9, "gain at Nyquist")
	}
}

func TestButter_FirstOrderCoefficients(t *testing.T) {
	// Quarter-band first order: b = [0.5, 0.5], a = [1, 0]
	b, a, err := Butter(1, 250, 1000)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, b, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 0}, a, 1e-12)
}

func TestButter_Invalid(t *testing.T) {
	_, _, err := Butter(0, 100, 1000)
	assert.ErrorIs(t, err, ErrBadFilter)
	_, _, err = Butter(3, 500, 1000)
	assert.ErrorIs(t, err, ErrBadFilter)
	_, _, err = Butter(3, -1, 1000)
	assert.ErrorIs(t, err, ErrBadFilter)
}

func TestLFilter_ImpulseResponse(t *testing.T) {
	x := []complex128{1, 0, 0, 0, 0}

	y, _, err := LFilter([]float64{0.5, 0.5}, []float64{1}, x, nil)
	require.NoError(t, err)
	assert.Equal(t, []complex128{0.5, 0.5, 0, 0, 0}, y)

	y, _, err = LFilter([]float64{1}, []float64{1, -0.5}, x, nil)
	require.NoError(t, err)
	assert.Equal(t, []complex128{1, 0.5, 0.25, 0.125, 0.0625}, y)

	// Leading coefficient normalisation
	y, _, err = LFilter([]float64{2}, []float64{2, -1}, x, nil)
	require.NoError(t, err)
	assert.Equal(t, []complex128{1, 0.5, 0.25, 0.125, 0.0625}, y)
}

func TestLFilter_StateCarriesAcrossBlocks(t *testing.T) {
	b, a, err := Butter(3, 20000, 1e6)
	require.NoError(t, err)

	x := make([]complex128, 200)
	for i := range x {
		x[i] = cmplx.Rect(1, float64(i)*0.1)
	}

	whole, _, err := LFilter(b, a, x, nil)
	require.NoError(t, err)

	first, zf, err := LFilter(b, a, x[:73], nil)
	require.NoError(t, err)
	second, _, err := LFilter(b, a, x[73:], zf)
	require.NoError(t, err)

	joined := append(first, second...)
	for i := range whole {
		assert.InDelta(t, 0, cmplx.Abs(whole[i]-joined[i]), 1e-12)
	}
}

func TestLFilter_BadState(t *testing.T) {
	_, _, err := LFilter([]float64{1, 1}, []float64{1, 0.5}, []complex128{1}, []complex128{0, 0, 0})
	assert.ErrorIs(t, err, ErrBadFilter)
	_, _, err = LFilter([]float64{1}, []float64{0, 1}, []complex128{1}, nil)
	assert.ErrorIs(t, err, ErrBadFilter)
}

func TestLowPass_CriticallyInitialised(t *testing.T) {
	x := make([]complex128, 500)
	for i := range x {
		x[i] = complex(0.3, -0.7)
	}

	y, err := LowPass(x, 3, 2000, 1e6)
	require.NoError(t, err)
	for i, v := range y {
		require.InDelta(t, 0, cmplx.Abs(v-x[i]), 1e-6, "sample %d", i)
	}
}

func TestLowPass_RejectsOutOfBand(t *testing.T) {
	const fs = 1e6
	x := make([]complex128, 20000)
	for i := range x {
		x[i] = cmplx.Rect(1, 2*math.Pi*200e3*float64(i)/fs)
	}

	y, err := LowPass(x, 3, 20000, fs)
	require.NoError(t, err)

	var tail float64
	for _, v := range y[10000:] {
		tail = math.Max(tail, cmplx.Abs(v))
	}
	assert.Less(t, tail, 1e-2)
}

func TestMix_ShiftsFrequency(t *testing.T) {
	const (
		fs    = 1e6
		shift = 50000.0
	)
	x := make([]complex64, 1000)
	for i := range x {
		x[i] = complex64(cmplx.Rect(1, -2*math.Pi*shift*float64(i)/fs))
	}

	y := Mix(x, shift, fs)
	for i, v := range y {
		require.InDelta(t, 1, real(v), 1e-5, "sample %d", i)
		require.InDelta(t, 0, imag(v), 1e-5, "sample %d", i)
	}
}

func TestPhaseCorrect(t *testing.T) {
	x := make([]complex128, 1000)
	for i := range x {
		x[i] = cmplx.Rect(1+0.001*float64(i), 2.1+0.0005*float64(i))
	}

	rot := PhaseCorrect(x, 177, 197)
	assert.NotZero(t, rot)
	assert.InDelta(t, 0, MeanPhase(x, 177, 197), 1e-12)
	assert.InDelta(t, 1.5, cmplx.Abs(x[500]), 1e-12)
}

func TestPhaseCorrect_WindowClipped(t *testing.T) {
	x := []complex128{1i, 1i, 1i}
	rot := PhaseCorrect(x, 2, 10)
	assert.InDelta(t, -math.Pi/2, rot, 1e-12)
	assert.InDelta(t, 1, real(x[0]), 1e-12)

	y := []complex128{1i}
	assert.Zero(t, PhaseCorrect(y, 5, 10))
	assert.Equal(t, complex128(1i), y[0])
}

func TestDownsample_NoDownsampling(t *testing.T) {
	src := []float64{1.0, 1.1, 1.2}

	result := Downsample(nil, src, 10)
	require.Equal(t, 3, len(result))
	assert.Equal(t, src, result)

	dst := make([]float64, 0, 10)
	result = Downsample(dst, src, 10)
	assert.Equal(t, src, result)
	// Should reuse dst
	assert.Equal(t, cap(dst), cap(result))
}

func TestDownsample_WithDownsampling(t *testing.T) {
	src := make([]complex128, 100)
	for i := range src {
		src[i] = complex(float64(i), 0)
	}

	dst := make([]complex128, 0, 20)
	result := Downsample(dst, src, 10)
	require.Equal(t, 10, len(result))
	assert.Equal(t, src[0], result[0])
	assert.GreaterOrEqual(t, real(result[len(result)-1]), 80.0)

	idx := DownsampleIndex(len(src), 10)
	require.Len(t, idx, 10)
	for i, j := range idx {
		assert.Equal(t, src[j], result[i])
	}
}

func TestDownsampleIndex(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		maxPoints int
		want      []int
	}{
		{"fewer than max", 3, 10, []int{0, 1, 2}},
		{"exact", 4, 4, []int{0, 1, 2, 3}},
		{"halved", 8, 4, []int{0, 2, 4, 6}},
		{"uneven", 10, 4, []int{0, 2, 5, 7}},
		{"no limit", 3, 0, []int{0, 1, 2}},
		{"empty", 0, 4, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DownsampleIndex(tt.n, tt.maxPoints))
		})
	}
}

func TestAbs(t *testing.T) {
	assert.Equal(t, []float64{5, 1, 0}, Abs([]complex128{3 + 4i, -1i, 0}))
}
