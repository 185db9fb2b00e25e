package gpio

// FakeOutput is a test double that records every write.
type FakeOutput struct {
	// High is the current electrical level (true = driven high).
	High bool

	// Writes contains every level written, in order (true = Assert).
	Writes []bool

	// WriteError, if set, is returned by Assert and Deassert. The level is
	// not changed when a write fails.
	WriteError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeOutput creates a FakeOutput driven low.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Assert records a high write.
func (f *FakeOutput) Assert() error {
	return f.write(true)
}

// Deassert records a low write.
func (f *FakeOutput) Deassert() error {
	return f.write(false)
}

func (f *FakeOutput) write(high bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	f.High = high
	f.Writes = append(f.Writes, high)
	return nil
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// Edges returns the number of recorded writes that changed the level,
// starting from low.
func (f *FakeOutput) Edges() int {
	n := 0
	prev := false
	for _, w := range f.Writes {
		if w != prev {
			n++
			prev = w
		}
	}
	return n
}

// Reset clears recorded writes and errors.
func (f *FakeOutput) Reset() {
	f.High = false
	f.Writes = nil
	f.WriteError = nil
	f.Closed = false
}
