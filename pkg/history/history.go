// Package history keeps the per channel T2 time series and the raw data
// files of each measurement.
package history

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sbinet/npyio"
)

// ErrMisaligned is returned when the stored times and values differ in length.
var ErrMisaligned = errors.New("history: times and values differ in length")

// Series is a T2 history. Times are Unix seconds, values T2 in seconds.
type Series struct {
	Times  []float64
	Values []float64
}

// Append adds one accepted measurement.
func (s *Series) Append(t time.Time, t2 float64) {
	s.Times = append(s.Times, float64(t.UnixNano())/1e9)
	s.Values = append(s.Values, t2)
}

// Len returns the number of points.
func (s *Series) Len() int {
	return len(s.Values)
}

// Time returns the time of point i.
func (s *Series) Time(i int) time.Time {
	sec, frac := math.Modf(s.Times[i])
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}

// Store reads and writes series as numpy files in Dir.
type Store struct {
	Dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// DataPath returns the file holding the T2 values of name.
func (s *Store) DataPath(name string) string {
	return filepath.Join(s.Dir, "t2data_"+name+".npy")
}

// TimesPath returns the file holding the measurement times of name.
func (s *Store) TimesPath(name string) string {
	return filepath.Join(s.Dir, "t2times_"+name+".npy")
}

// Load reads the series of name. Missing files yield an empty series.
func (s *Store) Load(name string) (*Series, error) {
	values, err := readFloats(s.DataPath(name))
	if err != nil {
		return nil, err
	}
	times, err := readFloats(s.TimesPath(name))
	if err != nil {
		return nil, err
	}
	if len(values) != len(times) {
		return nil, fmt.Errorf("%w: %s has %d times for %d values", ErrMisaligned, name, len(times), len(values))
	}
	return &Series{Times: times, Values: values}, nil
}

// Save writes the series of name.
func (s *Store) Save(name string, series *Series) error {
	if len(series.Times) != len(series.Values) {
		return fmt.Errorf("%w: %s", ErrMisaligned, name)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := writeNpy(s.DataPath(name), series.Values); err != nil {
		return err
	}
	return writeNpy(s.TimesPath(name), series.Times)
}

func readFloats(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var v []float64
	if err := npyio.Read(f, &v); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return v, nil
}

func writeNpy(path string, v interface{}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := npyio.Write(f, v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// SaveTraces writes raw complex traces to path as one numpy array, the
// traces concatenated in order.
func SaveTraces(path string, traces [][]complex128) error {
	n := 0
	for _, tr := range traces {
		n += len(tr)
	}
	flat := make([]complex128, 0, n)
	for _, tr := range traces {
		flat = append(flat, tr...)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return writeNpy(path, flat)
}

// LoadTraces reads a file written by SaveTraces and splits it into traces of
// length n.
func LoadTraces(path string, n int) ([][]complex128, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var flat []complex128
	if err := npyio.Read(f, &flat); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if n <= 0 || len(flat)%n != 0 {
		return nil, fmt.Errorf("%w: %d samples are not traces of %d", ErrMisaligned, len(flat), n)
	}

	traces := make([][]complex128, 0, len(flat)/n)
	for i := 0; i < len(flat); i += n {
		traces = append(traces, flat[i:i+n])
	}
	return traces, nil
}
