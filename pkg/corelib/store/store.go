package store

import (
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	corelib "github.com/gridfetch/gridfetch/pkg/corelib"
	"github.com/gridfetch/gridfetch/pkg/corelib/errs"
)

// Store is the Persistent Store (C1): the single point of durable state
// for Tasks, Segments, and Queues. One Store is shared by every Task
// Coordinator and the Queue Manager through internal/app.Root.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a SQLite database at path and runs
// AutoMigrate for the three row types.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open store at %s: %v", errs.ErrIO, path, err)
	}
	if err := db.AutoMigrate(&TaskRow{}, &SegmentRow{}, &QueueRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate store at %s: %v", errs.ErrIO, path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}

// Transact runs fn inside a single database transaction, rolling back on
// any returned error. Used by internal/app's segment-store adapter to
// replace a task's segment rows atomically.
func (s *Store) Transact(fn func(tx *Store) error) error {
	return s.db.Transaction(func(gtx *gorm.DB) error {
		return fn(&Store{db: gtx})
	})
}

// --- Task operations ---

func (s *Store) InsertTask(t *Task) error {
	row := t.toRow()
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("%w: insert task %s: %v", errs.ErrIO, t.ID, err)
	}
	return nil
}

func (s *Store) SaveTask(t *Task) error {
	row := t.toRow()
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("%w: save task %s: %v", errs.ErrIO, t.ID, err)
	}
	return nil
}

func (s *Store) FetchTaskByID(id corelib.ID) (*Task, error) {
	var row TaskRow
	if err := s.db.First(&row, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: task %s", errs.ErrIO, id)
		}
		return nil, fmt.Errorf("%w: fetch task %s: %v", errs.ErrIO, id, err)
	}
	return taskFromRow(row), nil
}

// FetchTasksWhere runs a raw SQL condition (e.g. "queue_id = ?") against
// the tasks table.
func (s *Store) FetchTasksWhere(cond string, args ...interface{}) ([]*Task, error) {
	var rows []TaskRow
	if err := s.db.Where(cond, args...).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: fetch tasks where %s: %v", errs.ErrIO, cond, err)
	}
	out := make([]*Task, len(rows))
	for i, r := range rows {
		out[i] = taskFromRow(r)
	}
	return out, nil
}

func (s *Store) DeleteTask(id corelib.ID) error {
	if err := s.db.Delete(&TaskRow{}, "id = ?", string(id)).Error; err != nil {
		return fmt.Errorf("%w: delete task %s: %v", errs.ErrIO, id, err)
	}
	return nil
}

// --- Segment operations ---

func (s *Store) InsertSegment(seg *Segment) error {
	row := seg.toRow()
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("%w: insert segment %s: %v", errs.ErrIO, seg.ID, err)
	}
	return nil
}

func (s *Store) SaveSegment(seg *Segment) error {
	row := seg.toRow()
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("%w: save segment %s: %v", errs.ErrIO, seg.ID, err)
	}
	return nil
}

func (s *Store) FetchSegmentsByTask(taskID corelib.ID) ([]*Segment, error) {
	var rows []SegmentRow
	if err := s.db.Where("task_id = ?", string(taskID)).Order("start_offset asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: fetch segments for task %s: %v", errs.ErrIO, taskID, err)
	}
	out := make([]*Segment, len(rows))
	for i, r := range rows {
		out[i] = segmentFromRow(r)
	}
	return out, nil
}

func (s *Store) DeleteSegmentsByTask(taskID corelib.ID) error {
	if err := s.db.Delete(&SegmentRow{}, "task_id = ?", string(taskID)).Error; err != nil {
		return fmt.Errorf("%w: delete segments for task %s: %v", errs.ErrIO, taskID, err)
	}
	return nil
}

// --- Queue operations ---

func (s *Store) InsertQueue(q *Queue) error {
	row := q.toRow()
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("%w: insert queue %s: %v", errs.ErrIO, q.ID, err)
	}
	return nil
}

func (s *Store) SaveQueue(q *Queue) error {
	row := q.toRow()
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("%w: save queue %s: %v", errs.ErrIO, q.ID, err)
	}
	return nil
}

func (s *Store) FetchQueueByID(id corelib.ID) (*Queue, error) {
	var row QueueRow
	if err := s.db.First(&row, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: queue %s", errs.ErrIO, id)
		}
		return nil, fmt.Errorf("%w: fetch queue %s: %v", errs.ErrIO, id, err)
	}
	return queueFromRow(row), nil
}

func (s *Store) FetchAllQueues() ([]*Queue, error) {
	var rows []QueueRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: fetch queues: %v", errs.ErrIO, err)
	}
	out := make([]*Queue, len(rows))
	for i, r := range rows {
		out[i] = queueFromRow(r)
	}
	return out, nil
}

func (s *Store) DeleteQueue(id corelib.ID) error {
	if err := s.db.Delete(&QueueRow{}, "id = ?", string(id)).Error; err != nil {
		return fmt.Errorf("%w: delete queue %s: %v", errs.ErrIO, id, err)
	}
	return nil
}
