// Package calib persists the spectrometer calibration record.
package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

const (
	// DefaultF0 is used until the first calibration.
	DefaultF0 = 22e6
	// DefaultT90 is used until the first calibration.
	DefaultT90 = 300e-6
	// MaxTunable is the upper tuning limit of the front end, after the LO offset.
	MaxTunable = 6e9
)

// ErrInvalidRecord is returned for records that cannot drive an acquisition.
var ErrInvalidRecord = errors.New("invalid calibration record")

// Record is the persisted calibration.
type Record struct {
	F0      float64 `json:"f0"`      // Resonance frequency, Hz
	T90     float64 `json:"t90"`     // 90 degree pulse width, seconds
	LastCal float64 `json:"lastcal"` // Unix seconds of the last measured calibration
}

// Default returns the record used when no calibration file exists.
func Default() Record {
	return Record{F0: DefaultF0, T90: DefaultT90}
}

// Validate checks t90 > 0 and that f0 plus the LO offset is tunable.
func (r Record) Validate(loOffset float64) error {
	if !(r.T90 > 0) || math.IsInf(r.T90, 0) {
		return fmt.Errorf("%w: t90 %g must be positive", ErrInvalidRecord, r.T90)
	}
	if !(r.F0 > 0) || r.F0+loOffset > MaxTunable {
		return fmt.Errorf("%w: f0 %g out of tunable range", ErrInvalidRecord, r.F0)
	}
	return nil
}

// LastCalTime returns LastCal as a time.
func (r Record) LastCalTime() time.Time {
	sec, frac := math.Modf(r.LastCal)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Stale reports whether more than maxAge passed since the last calibration.
// A record exactly maxAge old is still fresh.
func (r Record) Stale(now time.Time, maxAge time.Duration) bool {
	return unixSeconds(now)-r.LastCal > maxAge.Seconds()
}

// Touch sets LastCal to now.
func (r *Record) Touch(now time.Time) {
	r.LastCal = unixSeconds(now)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Store reads and writes a record at a fixed path.
type Store struct {
	Path string
}

// NewStore creates a store for path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the record. A missing file yields the default record and found=false.
func (s *Store) Load() (Record, bool, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), false, nil
		}
		return Record{}, false, fmt.Errorf("failed to read calibration file: %w", err)
	}

	rec := Default()
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("failed to parse calibration file: %w", err)
	}

	return rec, true, nil
}

// Save writes the record as indented JSON.
func (s *Store) Save(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration: %w", err)
	}

	if err := os.WriteFile(s.Path, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}

	return nil
}
