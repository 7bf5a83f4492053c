// Package corelib holds the shared types used across the download engine:
// task/segment/queue identifiers, HTTP headers, content-length formatting,
// and the credential blob passed verbatim to the protocol layer.
package corelib

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ID is a stable opaque identifier for a Task, Segment, or Queue.
type ID string

// NewID generates a new random opaque identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// TaskStatus is one of the task lifecycle states in the coordinator's
// state machine.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusConnecting TaskStatus = "connecting"
	StatusRunning    TaskStatus = "running"
	StatusPaused     TaskStatus = "paused"
	StatusComplete   TaskStatus = "complete"
	StatusError      TaskStatus = "error"
)

// QueueMode controls whether a queue runs tasks one at a time regardless of
// its max_concurrent setting.
type QueueMode string

const (
	ModeParallel   QueueMode = "parallel"
	ModeSequential QueueMode = "sequential"
)

// Validators are the origin-supplied identifiers used to detect that a
// resource changed between the first probe and a later resume.
type Validators struct {
	ETag         string
	LastModified string
}

// Empty reports whether neither validator was ever populated.
func (v Validators) Empty() bool {
	return v.ETag == "" && v.LastModified == ""
}

// Mismatch reports whether other disagrees with v on any validator that
// both sides actually carry.
func (v Validators) Mismatch(other Validators) bool {
	if v.ETag != "" && other.ETag != "" && v.ETag != other.ETag {
		return true
	}
	if v.LastModified != "" && other.LastModified != "" && v.LastModified != other.LastModified {
		return true
	}
	return false
}

// Header is a single key/value HTTP header.
type Header struct {
	Key   string
	Value string
}

// Set applies h to the given http.Header, overwriting any existing value.
func (h Header) Set(header http.Header) {
	header.Set(h.Key, h.Value)
}

// Headers is an ordered list of headers to be replayed verbatim against an
// origin. Order matters for servers sensitive to header casing/ordering.
type Headers []Header

// Get returns the index of the header with the given key, case-sensitive.
func (h Headers) Get(key string) (index int, found bool) {
	for i, x := range h {
		if x.Key == key {
			return i, true
		}
	}
	return 0, false
}

// InitOrUpdate adds key/value if key is absent; it never overwrites an
// existing value.
func (h *Headers) InitOrUpdate(key, value string) {
	if _, ok := h.Get(key); ok {
		return
	}
	*h = append(*h, Header{key, value})
}

// Set applies every header onto header, in order.
func (h Headers) Set(header http.Header) {
	for _, x := range h {
		x.Set(header)
	}
}

// Credentials is the "credential blob": cookies, user-agent, and referer
// associated with a task by the ingest surface. Opaque to everything but
// the protocol layer, which replays it verbatim.
type Credentials struct {
	// Cookies is a raw "k=v; k2=v2" concatenation, as handed to the core by
	// the browser-extension bridge or CLI.
	Cookies   string
	UserAgent string
	Referer   string
}

// Headers renders the credential blob as request headers.
func (c Credentials) Headers() Headers {
	var h Headers
	if c.Cookies != "" {
		h = append(h, Header{"Cookie", c.Cookies})
	}
	if c.UserAgent != "" {
		h = append(h, Header{"User-Agent", c.UserAgent})
	}
	if c.Referer != "" {
		h = append(h, Header{"Referer", c.Referer})
	}
	return h
}

// Size unit constants.
const (
	B  int64 = 1
	KB       = 1024 * B
	MB       = 1024 * KB
	GB       = 1024 * MB
	TB       = 1024 * GB
)

// FormatBytes renders n bytes as a human-readable size, e.g. "4.50 MB".
func FormatBytes(n int64) string {
	switch {
	case n >= TB:
		return formatUnit(n, TB, "TB")
	case n >= GB:
		return formatUnit(n, GB, "GB")
	case n >= MB:
		return formatUnit(n, MB, "MB")
	case n >= KB:
		return formatUnit(n, KB, "KB")
	default:
		return strconv.FormatInt(n, 10) + " Bytes"
	}
}

func formatUnit(n, unit int64, suffix string) string {
	whole := n / unit
	frac := (n % unit) * 100 / unit
	var b strings.Builder
	b.WriteString(strconv.FormatInt(whole, 10))
	b.WriteByte('.')
	if frac < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(frac, 10))
	b.WriteByte(' ')
	b.WriteString(suffix)
	return b.String()
}
