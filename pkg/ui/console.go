package ui

import (
	"fmt"
	"io"
)

// ConsoleView prints form changes as lines of text for the command line
type ConsoleView struct {
	out io.Writer

	DownloadURL string
	LastAlert   string
}

// NewConsoleView writes to out
func NewConsoleView(out io.Writer) *ConsoleView {
	return &ConsoleView{out: out}
}

func (v *ConsoleView) SetSubmitEnabled(bool) {}

func (v *ConsoleView) SetSubmitVisible(bool) {}

func (v *ConsoleView) SetLoading(loading bool) {
	if loading {
		fmt.Fprintln(v.out, "Uploading...")
	}
}

func (v *ConsoleView) ShowDownload(url string) {
	v.DownloadURL = url
	fmt.Fprintf(v.out, "Download ready: %s\n", url)
}

func (v *ConsoleView) HideDownload() {
	v.DownloadURL = ""
}

func (v *ConsoleView) Alert(message string) {
	v.LastAlert = message
	fmt.Fprintf(v.out, "Error: %s\n", message)
}
