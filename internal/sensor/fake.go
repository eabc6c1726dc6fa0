package sensor

import (
	"errors"
	"sync"
)

// Sample is one scripted reading. A non-nil Err makes Read fail.
type Sample struct {
	Measurement
	Err error
}

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	mu sync.Mutex

	// Samples are consumed one per Read. Once exhausted the last sample repeats.
	Samples []Sample

	index  int
	reads  int
	closed bool
}

// NewFakeReader creates a FakeReader returning the given temperatures in order.
func NewFakeReader(temps ...float64) *FakeReader {
	f := &FakeReader{}
	for _, t := range temps {
		f.Samples = append(f.Samples, Sample{Measurement: Measurement{Temperature: t, Humidity: 40}})
	}
	return f
}

// Push appends a scripted sample.
func (f *FakeReader) Push(s Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Samples = append(f.Samples, s)
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() (Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if len(f.Samples) == 0 {
		return Measurement{}, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s.Measurement, s.Err
}

// Close marks the reader closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Reads returns how many times Read was called.
func (f *FakeReader) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}
