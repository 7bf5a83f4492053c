// Package store implements the Persistent Store: ACID, indexed storage
// of Tasks, Segments, and Queues, via gorm.io/gorm over
// github.com/glebarez/sqlite (a cgo-free SQLite driver) rather than a
// single serialized blob file, since concurrent segment writers need
// transactional, row-level updates a flat encoded file can't provide.
// See DESIGN.md for the full justification.
package store

import (
	"time"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// TaskRow is the GORM row for a Task.
type TaskRow struct {
	ID               string `gorm:"primaryKey"`
	SourceURL        string
	DestinationPath  string
	TotalSize        int64
	Status           string
	ValidatorETag    string
	ValidatorLastMod string
	CredCookies      string
	CredUserAgent    string
	CredReferer      string
	Priority         int
	CreatedAt        time.Time
	QueueID          string `gorm:"index"`
	ErrorMessage     string
	MaxConnections   int
}

// SegmentRow is the GORM row for a Segment.
type SegmentRow struct {
	ID             string `gorm:"primaryKey"`
	TaskID         string `gorm:"index"`
	StartOffset    int64
	EndOffset      int64
	CurrentOffset  int64
	IsComplete     bool
}

// QueueRow is the GORM row for a Queue.
type QueueRow struct {
	ID            string `gorm:"primaryKey"`
	Name          string
	IsActive      bool
	MaxConcurrent int
	Mode          string
}

// Task is the in-memory representation handed to callers, decoupled from
// the GORM row shape.
type Task struct {
	ID              corelib.ID
	SourceURL       string
	DestinationPath string
	TotalSize       int64
	Status          corelib.TaskStatus
	Validators      corelib.Validators
	Credentials     corelib.Credentials
	Priority        int
	CreatedAt       time.Time
	QueueID         corelib.ID
	ErrorMessage    string
	MaxConnections  int
}

func (t *Task) toRow() TaskRow {
	return TaskRow{
		ID:               string(t.ID),
		SourceURL:        t.SourceURL,
		DestinationPath:  t.DestinationPath,
		TotalSize:        t.TotalSize,
		Status:           string(t.Status),
		ValidatorETag:    t.Validators.ETag,
		ValidatorLastMod: t.Validators.LastModified,
		CredCookies:      t.Credentials.Cookies,
		CredUserAgent:    t.Credentials.UserAgent,
		CredReferer:      t.Credentials.Referer,
		Priority:         t.Priority,
		CreatedAt:        t.CreatedAt,
		QueueID:          string(t.QueueID),
		ErrorMessage:     t.ErrorMessage,
		MaxConnections:   t.MaxConnections,
	}
}

func taskFromRow(r TaskRow) *Task {
	return &Task{
		ID:              corelib.ID(r.ID),
		SourceURL:       r.SourceURL,
		DestinationPath: r.DestinationPath,
		TotalSize:       r.TotalSize,
		Status:          corelib.TaskStatus(r.Status),
		Validators: corelib.Validators{
			ETag:         r.ValidatorETag,
			LastModified: r.ValidatorLastMod,
		},
		Credentials: corelib.Credentials{
			Cookies:   r.CredCookies,
			UserAgent: r.CredUserAgent,
			Referer:   r.CredReferer,
		},
		Priority:       r.Priority,
		CreatedAt:      r.CreatedAt,
		QueueID:        corelib.ID(r.QueueID),
		ErrorMessage:   r.ErrorMessage,
		MaxConnections: r.MaxConnections,
	}
}

// Segment is the in-memory representation of a Segment row.
type Segment struct {
	ID            corelib.ID
	TaskID        corelib.ID
	StartOffset   int64
	EndOffset     int64
	CurrentOffset int64
	IsComplete    bool
}

func (s *Segment) toRow() SegmentRow {
	return SegmentRow{
		ID:            string(s.ID),
		TaskID:        string(s.TaskID),
		StartOffset:   s.StartOffset,
		EndOffset:     s.EndOffset,
		CurrentOffset: s.CurrentOffset,
		IsComplete:    s.IsComplete,
	}
}

func segmentFromRow(r SegmentRow) *Segment {
	return &Segment{
		ID:            corelib.ID(r.ID),
		TaskID:        corelib.ID(r.TaskID),
		StartOffset:   r.StartOffset,
		EndOffset:     r.EndOffset,
		CurrentOffset: r.CurrentOffset,
		IsComplete:    r.IsComplete,
	}
}

// Queue is the in-memory representation of a Queue row.
type Queue struct {
	ID            corelib.ID
	Name          string
	IsActive      bool
	MaxConcurrent int
	Mode          corelib.QueueMode
}

func (q *Queue) toRow() QueueRow {
	return QueueRow{
		ID:            string(q.ID),
		Name:          q.Name,
		IsActive:      q.IsActive,
		MaxConcurrent: q.MaxConcurrent,
		Mode:          string(q.Mode),
	}
}

func queueFromRow(r QueueRow) *Queue {
	return &Queue{
		ID:            corelib.ID(r.ID),
		Name:          r.Name,
		IsActive:      r.IsActive,
		MaxConcurrent: r.MaxConcurrent,
		Mode:          corelib.QueueMode(r.Mode),
	}
}
