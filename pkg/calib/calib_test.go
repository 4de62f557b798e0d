package calib

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_LoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "cal.json"))

	rec, found, err := s.Load()
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Default(), rec)
}

func TestStore_RoundTripPrecision(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "cal.json"))

	recs := []Record{
		{F0: 22050900.123456789, T90: 6.0000000000000001e-05, LastCal: 1700000000.123456},
		{F0: 22055500.0, T90: 1.0 / 3.0 * 1e-4, LastCal: 0},
		{F0: 21999999.999999996, T90: 4.9999999999999996e-06, LastCal: 1234.5},
	}

	for _, rec := range recs {
		require.NoError(t, s.Save(rec))
		got, found, err := s.Load()
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, rec.F0, got.F0)
		assert.Equal(t, rec.T90, got.T90)
		assert.Equal(t, rec.LastCal, got.LastCal)
	}
}

func TestStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	s := NewStore(path)
	require.NoError(t, s.Save(Record{F0: 22e6, T90: 6e-5, LastCal: 10}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"f0": 22000000, "t90": 0.00006, "lastcal": 10}`, string(data))
	assert.Contains(t, string(data), "\n    \"f0\"")
}

func TestStore_LoadPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"f0": 21000000}`), 0644))

	rec, found, err := NewStore(path).Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 21e6, rec.F0)
	assert.Equal(t, DefaultT90, rec.T90)
	assert.Equal(t, float64(0), rec.LastCal)
}

func TestStore_LoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"f0": `), 0644))

	_, _, err := NewStore(path).Load()
	assert.Error(t, err)
}

func TestRecord_Stale(t *testing.T) {
	last := time.Unix(1700000000, 0)
	rec := Record{F0: 22e6, T90: 6e-5}
	rec.Touch(last)
	maxAge := 300 * time.Second

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"just calibrated", last, false},
		{"one minute", last.Add(time.Minute), false},
		{"exactly at boundary", last.Add(maxAge), false},
		{"one second past", last.Add(maxAge + time.Second), true},
		{"a day later", last.Add(24 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rec.Stale(tt.now, maxAge))
		})
	}
}

func TestRecord_NeverCalibratedIsStale(t *testing.T) {
	assert.True(t, Default().Stale(time.Now(), 5*time.Minute))
}

func TestRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"default", Default(), false},
		{"zero t90", Record{F0: 22e6, T90: 0}, true},
		{"negative t90", Record{F0: 22e6, T90: -1e-6}, true},
		{"zero f0", Record{F0: 0, T90: 6e-5}, true},
		{"beyond range", Record{F0: 6e9, T90: 6e-5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate(120e6)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecord_LastCalTime(t *testing.T) {
	now := time.Unix(1700000000, 500000000)
	var rec Record
	rec.Touch(now)
	assert.WithinDuration(t, now, rec.LastCalTime(), time.Microsecond)
}
