package runstate_test

import (
	"sync"
	"testing"

	"rpanode/internal/runstate"
)

func TestBoardStartsIdle(t *testing.T) {
	var zero runstate.Board
	if zero.Snapshot().Status != runstate.StatusIdle {
		t.Fatal("zero board should read idle")
	}
	if runstate.NewBoard().Snapshot().Status != runstate.StatusIdle {
		t.Fatal("new board should be idle")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := runstate.NewBoard()
	b.Publish(runstate.Snapshot{Status: runstate.StatusRunning, Flow: "steward_patient_list", DoctorName: "Dr. Who"})

	snap := b.Snapshot()
	snap.Flow = "mutated"
	if b.Snapshot().Flow != "steward_patient_list" {
		t.Fatal("mutating a snapshot changed the board")
	}

	b.SetStep("login")
	if got := b.Snapshot(); got.Step != "login" || got.Flow != "steward_patient_list" || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected snapshot after SetStep: %+v", got)
	}

	b.Reset()
	if got := b.Snapshot(); got.Status != runstate.StatusIdle || got.Step != "" || got.DoctorName != "" {
		t.Fatalf("reset left state behind: %+v", got)
	}
}

func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	b := runstate.NewBoard()
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := b.Snapshot()
				if s.Status == runstate.StatusIdle && s.Flow != "" {
					t.Error("torn read: idle snapshot with a flow")
					return
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		b.Publish(runstate.Snapshot{Status: runstate.StatusRunning, Flow: "batch"})
		b.Reset()
	}
	close(stop)
	wg.Wait()
}
