package tracker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func u(v uint64) *uint64 { return &v }

func TestTracker_Observe(t *testing.T) {
	type obs struct {
		start uint64
		count int
		want  Window
	}

	tests := []struct {
		name      string
		steps     []obs
		wantState State
	}{
		{
			name: "first snapshot emits everything",
			steps: []obs{
				{start: 10, count: 3, want: Window{First: 0, Epoch: 0}},
			},
			wantState: State{PreviousWindowStart: u(10), NextExpected: u(13)},
		},
		{
			name: "overlapping window skips seen indices",
			steps: []obs{
				{start: 10, count: 3, want: Window{First: 0}},
				{start: 12, count: 3, want: Window{First: 1}},
			},
			wantState: State{PreviousWindowStart: u(12), NextExpected: u(15)},
		},
		{
			name: "identical snapshot emits nothing",
			steps: []obs{
				{start: 10, count: 3, want: Window{First: 0}},
				{start: 10, count: 3, want: Window{First: 3}},
			},
			wantState: State{PreviousWindowStart: u(10), NextExpected: u(13)},
		},
		{
			name: "window jumping ahead emits everything",
			steps: []obs{
				{start: 10, count: 3, want: Window{First: 0}},
				{start: 20, count: 2, want: Window{First: 0}},
			},
			wantState: State{PreviousWindowStart: u(20), NextExpected: u(22)},
		},
		{
			name: "shrunken window never skips past its end",
			steps: []obs{
				{start: 10, count: 5, want: Window{First: 0}},
				{start: 11, count: 2, want: Window{First: 2}},
			},
			wantState: State{PreviousWindowStart: u(11), NextExpected: u(13)},
		},
		{
			name: "reset bumps epoch once and re-emits the window",
			steps: []obs{
				{start: 10, count: 3, want: Window{First: 0}},
				{start: 12, count: 3, want: Window{First: 1}},
				{start: 2, count: 2, want: Window{First: 0, Epoch: 1, Reset: true}},
				{start: 3, count: 2, want: Window{First: 1, Epoch: 1}},
			},
			wantState: State{PreviousWindowStart: u(3), NextExpected: u(5), Epoch: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New()
			for i, step := range tt.steps {
				got := tr.Observe(step.start, step.count)
				if got != step.want {
					t.Errorf("step %d: Observe(%d, %d) = %+v, want %+v", i, step.start, step.count, got, step.want)
				}
			}
			if diff := cmp.Diff(tt.wantState, tr.State()); diff != "" {
				t.Errorf("State() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTracker_EpochMonotonic(t *testing.T) {
	tr := New()
	starts := []uint64{100, 50, 60, 10, 10, 5, 200, 1}
	var last uint64
	for _, s := range starts {
		w := tr.Observe(s, 4)
		if w.Epoch < last {
			t.Fatalf("epoch decreased from %d to %d", last, w.Epoch)
		}
		last = w.Epoch
	}
	if tr.Epoch() != 4 {
		t.Errorf("Epoch() = %d, want 4", tr.Epoch())
	}
}

func TestTracker_Restore(t *testing.T) {
	tr := New()
	tr.Restore(State{PreviousWindowStart: u(40), NextExpected: u(45), Epoch: 2})

	w := tr.Observe(43, 4)
	if w.First != 2 || w.Epoch != 2 {
		t.Errorf("Observe after restore = %+v, want First=2 Epoch=2", w)
	}

	// An older checkpoint must not move the epoch back.
	tr.Restore(State{PreviousWindowStart: u(1), NextExpected: u(2), Epoch: 1})
	if tr.Epoch() != 2 {
		t.Errorf("Epoch() = %d after stale restore, want 2", tr.Epoch())
	}
	if w := tr.Observe(0, 2); w.First != 0 || w.Reset {
		t.Errorf("Observe after stale restore = %+v, want fresh window", w)
	}
}

func TestTracker_StateIsCopy(t *testing.T) {
	tr := New()
	tr.Observe(5, 1)
	s := tr.State()
	*s.NextExpected = 1000

	if got := *tr.State().NextExpected; got != 6 {
		t.Errorf("mutating State() leaked into tracker: NextExpected = %d", got)
	}
}
