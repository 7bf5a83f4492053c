package store

import (
	"errors"
	"testing"
	"time"

	corelib "github.com/gridfetch/gridfetch/pkg/corelib"
)

var errDeliberate = errors.New("deliberate rollback")

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTaskInsertFetchSave(t *testing.T) {
	s := openTestStore(t)

	task := &Task{
		ID:              corelib.NewID(),
		SourceURL:       "https://example.com/file.bin",
		DestinationPath: "/tmp/file.bin",
		TotalSize:       1024,
		Status:          corelib.StatusPending,
		Priority:        5,
		CreatedAt:       time.Now(),
	}
	if err := s.InsertTask(task); err != nil {
		t.Fatalf("InsertTask: %v", err)
	}

	got, err := s.FetchTaskByID(task.ID)
	if err != nil {
		t.Fatalf("FetchTaskByID: %v", err)
	}
	if got.SourceURL != task.SourceURL || got.TotalSize != task.TotalSize {
		t.Fatalf("fetched task mismatch: %+v", got)
	}

	got.Status = corelib.StatusRunning
	if err := s.SaveTask(got); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	reloaded, err := s.FetchTaskByID(task.ID)
	if err != nil {
		t.Fatalf("FetchTaskByID reload: %v", err)
	}
	if reloaded.Status != corelib.StatusRunning {
		t.Fatalf("status not persisted: got %s", reloaded.Status)
	}
}

func TestFetchTaskByIDNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.FetchTaskByID(corelib.NewID()); err == nil {
		t.Fatal("expected error for missing task")
	}
}

func TestSegmentsByTaskOrdered(t *testing.T) {
	s := openTestStore(t)
	taskID := corelib.NewID()

	offsets := []int64{200, 0, 100}
	for _, off := range offsets {
		seg := &Segment{
			ID:          corelib.NewID(),
			TaskID:      taskID,
			StartOffset: off,
			EndOffset:   off + 99,
		}
		if err := s.InsertSegment(seg); err != nil {
			t.Fatalf("InsertSegment: %v", err)
		}
	}

	segs, err := s.FetchSegmentsByTask(taskID)
	if err != nil {
		t.Fatalf("FetchSegmentsByTask: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i := 1; i < len(segs); i++ {
		if segs[i-1].StartOffset > segs[i].StartOffset {
			t.Fatalf("segments not ordered by start_offset: %+v", segs)
		}
	}
}

func TestDeleteSegmentsByTask(t *testing.T) {
	s := openTestStore(t)
	taskID := corelib.NewID()
	seg := &Segment{ID: corelib.NewID(), TaskID: taskID, StartOffset: 0, EndOffset: 10}
	if err := s.InsertSegment(seg); err != nil {
		t.Fatalf("InsertSegment: %v", err)
	}
	if err := s.DeleteSegmentsByTask(taskID); err != nil {
		t.Fatalf("DeleteSegmentsByTask: %v", err)
	}
	segs, err := s.FetchSegmentsByTask(taskID)
	if err != nil {
		t.Fatalf("FetchSegmentsByTask: %v", err)
	}
	if len(segs) != 0 {
		t.Fatalf("expected 0 segments after delete, got %d", len(segs))
	}
}

func TestQueueCRUD(t *testing.T) {
	s := openTestStore(t)
	q := &Queue{
		ID:            corelib.NewID(),
		Name:          "Default",
		IsActive:      true,
		MaxConcurrent: 3,
		Mode:          corelib.ModeParallel,
	}
	if err := s.InsertQueue(q); err != nil {
		t.Fatalf("InsertQueue: %v", err)
	}
	got, err := s.FetchQueueByID(q.ID)
	if err != nil {
		t.Fatalf("FetchQueueByID: %v", err)
	}
	if got.Name != "Default" || got.MaxConcurrent != 3 {
		t.Fatalf("queue mismatch: %+v", got)
	}

	got.MaxConcurrent = 5
	if err := s.SaveQueue(got); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}

	all, err := s.FetchAllQueues()
	if err != nil {
		t.Fatalf("FetchAllQueues: %v", err)
	}
	if len(all) != 1 || all[0].MaxConcurrent != 5 {
		t.Fatalf("unexpected queues: %+v", all)
	}

	if err := s.DeleteQueue(q.ID); err != nil {
		t.Fatalf("DeleteQueue: %v", err)
	}
	all, err = s.FetchAllQueues()
	if err != nil {
		t.Fatalf("FetchAllQueues after delete: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected 0 queues after delete, got %d", len(all))
	}
}

func TestTransactRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	taskID := corelib.NewID()

	err := s.Transact(func(tx *Store) error {
		task := &Task{ID: taskID, SourceURL: "https://example.com/x", Status: corelib.StatusPending, CreatedAt: time.Now()}
		if err := tx.InsertTask(task); err != nil {
			return err
		}
		return errDeliberate
	})
	if err == nil {
		t.Fatal("expected Transact to return the inner error")
	}
	if _, err := s.FetchTaskByID(taskID); err == nil {
		t.Fatal("expected task to be rolled back")
	}
}
