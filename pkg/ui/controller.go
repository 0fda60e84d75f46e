package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/james-see/midi2wav/pkg/upload"
)

var (
	// ErrBusy is returned by BeginSubmit while an upload is in flight
	ErrBusy = errors.New("an upload is already in progress")
	// ErrNoFile is returned by BeginSubmit before a file is selected
	ErrNoFile = errors.New("no file selected")
	// ErrNotReady is returned by BeginSubmit while a download is showing
	ErrNotReady = errors.New("dismiss the current download first")
)

// Submitter performs the upload. *upload.Client satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req upload.Request) (upload.Result, error)
}

// Controller owns the form: the selected file, the two text fields and the
// state machine. It is not safe for concurrent use; only Pending.Run may be
// called from another goroutine.
type Controller struct {
	view      View
	submitter Submitter
	presenter *Presenter
	logger    log.Logger

	state      State
	file       string
	outputName string
	waveform   upload.Waveform
	pending    *Pending
}

// NewController wires a controller to its view and submitter and puts the
// view in its initial state: no file, submit disabled.
func NewController(view View, submitter Submitter, logger log.Logger) *Controller {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	c := &Controller{
		view:      view,
		submitter: submitter,
		presenter: NewPresenter(view, logger),
		logger:    log.With(logger, "component", "controller"),
		waveform:  upload.DefaultWaveform,
	}
	view.SetLoading(false)
	view.SetSubmitVisible(true)
	c.refresh()
	return c
}

// State returns the current state
func (c *Controller) State() State { return c.state }

// File returns the selected file path
func (c *Controller) File() string { return c.file }

// OutputName returns the output name field
func (c *Controller) OutputName() string { return c.outputName }

// Waveform returns the selected waveform
func (c *Controller) Waveform() upload.Waveform { return c.waveform }

// DownloadURL returns the URL bound to the download control, if any
func (c *Controller) DownloadURL() string { return c.presenter.Bound() }

// SubmitEnabled reports whether a submit would be accepted
func (c *Controller) SubmitEnabled() bool {
	return c.file != "" && (c.state == StateIdle || c.state == StateFailed)
}

// SelectFile records the chosen file. An empty path clears the selection.
func (c *Controller) SelectFile(path string) {
	c.file = path
	c.refresh()
}

// ClearFile drops the selection and disables submit
func (c *Controller) ClearFile() {
	c.SelectFile("")
}

// SetOutputName sets the requested output file name
func (c *Controller) SetOutputName(name string) {
	c.outputName = name
}

// SetWaveform sets the waveform field
func (c *Controller) SetWaveform(w upload.Waveform) error {
	if !w.Valid() {
		return fmt.Errorf("%w: %q", upload.ErrInvalidWaveform, w)
	}
	c.waveform = w
	return nil
}

// Pending is an upload started by BeginSubmit
type Pending struct {
	ctx       context.Context
	cancel    context.CancelFunc
	req       upload.Request
	file      io.Closer
	submitter Submitter
}

// Request returns the request being sent
func (p *Pending) Request() upload.Request { return p.req }

// Run performs the network call. It touches no controller state and may run
// on any goroutine; hand its return values to Controller.Finish.
func (p *Pending) Run() (upload.Result, error) {
	defer func() { _ = p.file.Close() }()
	return p.submitter.Submit(p.ctx, p.req)
}

// BeginSubmit moves the form to Submitting, disables the trigger, shows the
// loading indicator and returns the upload to run. Only one upload may be
// pending at a time. A submit from Failed acknowledges the failure once the
// upload has started; if it cannot start, the form stays Failed.
func (c *Controller) BeginSubmit(ctx context.Context) (*Pending, error) {
	switch c.state {
	case StateSubmitting:
		return nil, ErrBusy
	case StateDownloadReady:
		return nil, ErrNotReady
	}
	if c.file == "" {
		return nil, ErrNoFile
	}

	f, err := os.Open(c.file)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", c.file, err)
	}

	outputName := strings.TrimSpace(c.outputName)
	if outputName == "" {
		base := filepath.Base(c.file)
		outputName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		ctx:    ctx,
		cancel: cancel,
		req: upload.Request{
			File:       f,
			FileName:   filepath.Base(c.file),
			OutputName: outputName,
			Waveform:   c.waveform,
		},
		file:      f,
		submitter: c.submitter,
	}

	c.pending = p
	c.state = StateSubmitting
	c.view.SetLoading(true)
	c.refresh()

	_ = level.Debug(c.logger).Log("method", "BeginSubmit", "file", c.file, "output", outputName, "waveform", c.waveform)
	return p, nil
}

// Cancel aborts the pending upload, if any. The upload still completes
// through Finish, with a cancellation error.
func (c *Controller) Cancel() bool {
	if c.pending == nil {
		return false
	}
	c.pending.cancel()
	return true
}

// Finish ends the pending upload and presents its outcome. Calls outside
// Submitting are ignored.
func (c *Controller) Finish(result upload.Result, err error) State {
	if c.state != StateSubmitting {
		_ = level.Warn(c.logger).Log("method", "Finish", "state", c.state, "msg", "no upload pending")
		return c.state
	}
	c.pending.cancel()
	c.pending = nil

	c.view.SetLoading(false)
	c.state = c.presenter.Present(result, err)
	c.refresh()
	return c.state
}

// Submit runs a whole cycle on the calling goroutine
func (c *Controller) Submit(ctx context.Context) (State, error) {
	p, err := c.BeginSubmit(ctx)
	if err != nil {
		return c.state, err
	}
	return c.Finish(p.Run()), nil
}

// DismissDownload returns from DownloadReady to Idle
func (c *Controller) DismissDownload() {
	if c.state != StateDownloadReady {
		return
	}
	c.state = StateIdle
	c.presenter.Reset()
	c.refresh()
}

// AcknowledgeFailure returns from Failed to Idle once the alert is closed
func (c *Controller) AcknowledgeFailure() {
	if c.state != StateFailed {
		return
	}
	c.state = StateIdle
	c.refresh()
}

func (c *Controller) refresh() {
	c.view.SetSubmitEnabled(c.SubmitEnabled())
}
