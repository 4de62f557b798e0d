package plot

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/sdmrr/pkg/analysis"
	"github.com/itohio/sdmrr/pkg/history"
)

func assertImage(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestDecay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Figures", "cpmg.png")

	const tr = 500e-6
	times := make([]float64, 200)
	mags := make([]float64, 200)
	for i := range mags {
		times[i] = float64(i) * tr
		mags[i] = math.Exp(-times[i] / 0.05)
	}
	fit, err := analysis.FitT2Points(times, mags)
	require.NoError(t, err)

	require.NoError(t, Decay(path, times, mags, fit, 22.05e6))
	assertImage(t, path)
}

func TestDecay_Mismatch(t *testing.T) {
	err := Decay(filepath.Join(t.TempDir(), "x.png"), []float64{0}, []float64{1, 2}, analysis.Fit{}, 0)
	assert.Error(t, err)
}

func TestHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BR1_T2.png")

	s := &history.Series{}
	t0 := time.Unix(1700000000, 0)
	for i := 0; i < 10; i++ {
		s.Append(t0.Add(time.Duration(i)*10*time.Minute), 1+0.1*float64(i))
	}

	require.NoError(t, History(path, "BR1 Culture T2", s))
	assertImage(t, path)
}

func TestTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.svg")

	trace := make([]complex128, 20000)
	for i := range trace {
		trace[i] = complex(math.Cos(float64(i)/100), math.Sin(float64(i)/100))
	}

	require.NoError(t, Trace(path, trace, 1e6))
	assertImage(t, path)

	assert.Error(t, Trace(path, trace, 0))
}
