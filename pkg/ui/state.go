// Package ui holds the upload form's state machine. It drives an abstract
// View so the same flow backs the terminal UI and the command line.
package ui

// State is the form's position in a submission cycle
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateDownloadReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateDownloadReady:
		return "download-ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is the visual surface the controller and presenter update. Calls are
// made from the goroutine that owns the controller.
type View interface {
	SetSubmitEnabled(enabled bool)
	SetSubmitVisible(visible bool)
	SetLoading(loading bool)
	ShowDownload(url string)
	HideDownload()
	Alert(message string)
}
