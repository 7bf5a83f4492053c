package nativehost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gridfetch/gridfetch/pkg/corelib"
)

// AddDownloadParams mirrors the extension's add_download call, the same
// ingest path browser extensions and the CLI share.
type AddDownloadParams struct {
	URL                  string `json:"url"`
	DestinationDirectory string `json:"destinationDirectory"`
	Filename             string `json:"filename,omitempty"`
	Cookies              string `json:"cookies,omitempty"`
	UserAgent            string `json:"userAgent,omitempty"`
	Referrer             string `json:"referrer,omitempty"`
	ConnectionCount      int    `json:"connectionCount,omitempty"`
	QueueID              string `json:"queueId,omitempty"`
}

// TaskIDParams carries a bare task ID, used by pause/resume/cancel/status.
type TaskIDParams struct {
	TaskID string `json:"taskId"`
}

// TaskStatusResult is the JSON shape returned for status; add_download
// returns only {"taskId": ...}.
type TaskStatusResult struct {
	ID              string  `json:"id"`
	SourceURL       string  `json:"sourceUrl"`
	DestinationPath string  `json:"destinationPath"`
	Status          string  `json:"status"`
	ErrorMessage    string  `json:"errorMessage,omitempty"`
	TotalBytes      int64   `json:"totalBytes"`
	DownloadedBytes int64   `json:"downloadedBytes"`
	BytesPerSecond  float64 `json:"bytesPerSecond"`
}

// AddOptions is the subset of internal/app.AddOptions the wire protocol
// can populate; kept as its own type so this package never imports
// internal/app's option struct directly and Client stays swappable in
// tests.
type AddOptions struct {
	SuggestedFilename    string
	Cookies              string
	UserAgent            string
	Referer              string
	ConnectionCount      int
	QueueID              corelib.ID
	DestinationDirectory string
}

// Client is the in-process capability the native host dispatches onto;
// internal/app.Root satisfies it through the adapter NewRootClient
// constructs.
type Client interface {
	AddDownload(ctx context.Context, url string, opts AddOptions) (corelib.ID, error)
	Pause(taskID corelib.ID) error
	Resume(taskID corelib.ID) error
	Cancel(taskID corelib.ID) error
	Status(taskID corelib.ID) (TaskStatusResult, error)
}

// Host is the native messaging peer: it reads Requests from stdin and
// writes Responses to stdout until stdin closes.
type Host struct {
	client Client
	stdin  io.Reader
	stdout io.Writer
}

// NewHost builds a Host over os.Stdin/os.Stdout.
func NewHost(client Client) *Host {
	return &Host{client: client, stdin: os.Stdin, stdout: os.Stdout}
}

// Run processes requests until stdin reaches EOF or an unrecoverable
// I/O error occurs.
func (h *Host) Run() error {
	for {
		err := h.processOne()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *Host) processOne() error {
	data, err := ReadMessage(h.stdin)
	if err != nil {
		return err
	}
	req, err := ParseRequest(data)
	if err != nil {
		return WriteMessage(h.stdout, MakeErrorResponse(0, fmt.Errorf("invalid request: %w", err)))
	}
	return WriteMessage(h.stdout, h.handle(req))
}

func (h *Host) handle(req *Request) []byte {
	switch req.Method {
	case "add_download":
		return h.handleAddDownload(req)
	case "pause":
		return h.handleTaskID(req, h.client.Pause)
	case "resume":
		return h.handleTaskID(req, h.client.Resume)
	case "cancel":
		return h.handleTaskID(req, h.client.Cancel)
	case "status":
		return h.handleStatus(req)
	default:
		return MakeErrorResponse(req.ID, fmt.Errorf("unknown method: %s", req.Method))
	}
}

func (h *Host) handleAddDownload(req *Request) []byte {
	var p AddDownloadParams
	if err := json.Unmarshal(req.Message, &p); err != nil {
		return MakeErrorResponse(req.ID, fmt.Errorf("invalid add_download params: %w", err))
	}
	if p.URL == "" {
		return MakeErrorResponse(req.ID, errors.New("url is required"))
	}
	id, err := h.client.AddDownload(context.Background(), p.URL, AddOptions{
		SuggestedFilename:    p.Filename,
		Cookies:              p.Cookies,
		UserAgent:            p.UserAgent,
		Referer:              p.Referrer,
		ConnectionCount:      p.ConnectionCount,
		QueueID:              corelib.ID(p.QueueID),
		DestinationDirectory: p.DestinationDirectory,
	})
	if err != nil {
		return MakeErrorResponse(req.ID, err)
	}
	return MakeSuccessResponse(req.ID, map[string]string{"taskId": string(id)})
}

func (h *Host) handleTaskID(req *Request, action func(corelib.ID) error) []byte {
	var p TaskIDParams
	if err := json.Unmarshal(req.Message, &p); err != nil {
		return MakeErrorResponse(req.ID, fmt.Errorf("invalid params: %w", err))
	}
	if p.TaskID == "" {
		return MakeErrorResponse(req.ID, errors.New("taskId is required"))
	}
	if err := action(corelib.ID(p.TaskID)); err != nil {
		return MakeErrorResponse(req.ID, err)
	}
	return MakeSuccessResponse(req.ID, map[string]bool{"success": true})
}

func (h *Host) handleStatus(req *Request) []byte {
	var p TaskIDParams
	if err := json.Unmarshal(req.Message, &p); err != nil {
		return MakeErrorResponse(req.ID, fmt.Errorf("invalid params: %w", err))
	}
	if p.TaskID == "" {
		return MakeErrorResponse(req.ID, errors.New("taskId is required"))
	}
	status, err := h.client.Status(corelib.ID(p.TaskID))
	if err != nil {
		return MakeErrorResponse(req.ID, err)
	}
	return MakeSuccessResponse(req.ID, status)
}
