package reading

// FakeSource is a test double that returns scripted samples.
type FakeSource struct {
	// Samples contains scripted readings to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int
}

// NewFakeSource creates a FakeSource with the given samples.
func NewFakeSource(samples ...Sample) *FakeSource {
	return &FakeSource{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
// With no samples configured it returns the zero Sample.
func (f *FakeSource) Read() Sample {
	if len(f.Samples) == 0 {
		return Sample{}
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample
}

// Reset resets the source to the beginning of samples.
func (f *FakeSource) Reset() {
	f.index = 0
}
