// Package tracker follows media sequence numbers across playlist refreshes and
// detects server-side numbering resets.
package tracker

// State is the externally visible tracker state. A nil pointer means unset.
type State struct {
	PreviousWindowStart *uint64
	NextExpected        *uint64
	Epoch               uint64
}

// Window is the result of observing one playlist snapshot.
type Window struct {
	// First is the index of the first segment not seen before.
	First int
	// Epoch is the overflow epoch new segments belong to.
	Epoch uint64
	// Reset is true when this snapshot started a new epoch.
	Reset bool
}

// Tracker is not safe for concurrent use; it is owned by the playlist poller.
type Tracker struct {
	state State
}

// New creates a tracker with no history.
func New() *Tracker {
	return &Tracker{}
}

// Observe diffs a snapshot starting at sequenceStart with count segments
// against the tracker state and advances it.
func (t *Tracker) Observe(sequenceStart uint64, count int) Window {
	w := Window{}

	// A window that starts before the previous one means the server reset its numbering.
	if prev := t.state.PreviousWindowStart; prev != nil && sequenceStart < *prev {
		t.state.Epoch++
		t.state.NextExpected = nil
		w.Reset = true
	}
	t.state.PreviousWindowStart = ptr(sequenceStart)

	if next := t.state.NextExpected; next != nil && sequenceStart < *next {
		skip := *next - sequenceStart
		if skip > uint64(count) {
			skip = uint64(count)
		}
		w.First = int(skip)
	}

	t.state.NextExpected = ptr(sequenceStart + uint64(count))
	w.Epoch = t.state.Epoch
	return w
}

// Epoch returns the current overflow epoch.
func (t *Tracker) Epoch() uint64 {
	return t.state.Epoch
}

// State returns a copy of the tracker state.
func (t *Tracker) State() State {
	return State{
		PreviousWindowStart: copyPtr(t.state.PreviousWindowStart),
		NextExpected:        copyPtr(t.state.NextExpected),
		Epoch:               t.state.Epoch,
	}
}

// Restore replaces the tracker state with s. The epoch never moves backwards:
// if s carries an older epoch than the tracker already reached, the current
// epoch is kept and the sequence history is dropped.
func (t *Tracker) Restore(s State) {
	if s.Epoch < t.state.Epoch {
		t.state.PreviousWindowStart = nil
		t.state.NextExpected = nil
		return
	}
	t.state = State{
		PreviousWindowStart: copyPtr(s.PreviousWindowStart),
		NextExpected:        copyPtr(s.NextExpected),
		Epoch:               s.Epoch,
	}
}

func ptr(v uint64) *uint64 {
	return &v
}

func copyPtr(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	return ptr(*p)
}
