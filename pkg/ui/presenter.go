package ui

import (
	"errors"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/james-see/midi2wav/pkg/upload"
)

// Presenter turns an upload outcome into view updates
type Presenter struct {
	view   View
	logger log.Logger

	// url currently bound to the download control, empty when hidden
	bound string
}

// NewPresenter creates a Presenter for view
func NewPresenter(view View, logger log.Logger) *Presenter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Presenter{view: view, logger: log.With(logger, "component", "presenter")}
}

// Present shows the outcome of a submit and returns the resulting state.
// Every outcome is visible: a download control for a successful result, an
// alert for anything else.
func (p *Presenter) Present(result upload.Result, err error) State {
	if err != nil {
		msg := FailureMessage(err)
		_ = level.Warn(p.logger).Log("method", "Present", "err", err)
		p.hideDownload()
		p.view.Alert(msg)
		return StateFailed
	}

	if !result.OK() {
		_ = level.Info(p.logger).Log("method", "Present", "status", result.StatusCode, "message", result.Message)
		p.hideDownload()
		p.view.Alert(result.Message)
		return StateFailed
	}

	_ = level.Info(p.logger).Log("method", "Present", "url", result.URL)
	if p.bound != result.URL {
		p.bound = result.URL
		p.view.ShowDownload(result.URL)
	}
	p.view.SetSubmitVisible(false)
	return StateDownloadReady
}

// Reset hides the download control and shows the submit control again
func (p *Presenter) Reset() {
	p.hideDownload()
	p.view.SetSubmitVisible(true)
}

// Bound returns the URL the download control points at, if shown
func (p *Presenter) Bound() string {
	return p.bound
}

func (p *Presenter) hideDownload() {
	if p.bound == "" {
		return
	}
	p.bound = ""
	p.view.HideDownload()
}

// FailureMessage renders an upload error for the user
func FailureMessage(err error) string {
	var te *upload.TransportError
	switch {
	case errors.As(err, &te) && te.Canceled():
		return "upload cancelled"
	case errors.As(err, &te) && te.Timeout():
		return "upload timed out"
	case errors.As(err, &te):
		return fmt.Sprintf("upload failed: %v", te.Err)
	default:
		return fmt.Sprintf("upload failed: %v", err)
	}
}
