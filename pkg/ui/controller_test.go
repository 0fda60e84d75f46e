package ui

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/james-see/midi2wav/pkg/upload"
)

// fakeView records what the controller asked the view to show
type fakeView struct {
	submitEnabled bool
	submitVisible bool
	loading       bool
	downloadShown bool
	downloadURL   string
	showCalls     int
	alerts        []string
}

func (v *fakeView) SetSubmitEnabled(enabled bool) { v.submitEnabled = enabled }
func (v *fakeView) SetSubmitVisible(visible bool) { v.submitVisible = visible }
func (v *fakeView) SetLoading(loading bool)       { v.loading = loading }
func (v *fakeView) ShowDownload(url string) {
	v.downloadShown = true
	v.downloadURL = url
	v.showCalls++
}
func (v *fakeView) HideDownload()        { v.downloadShown = false; v.downloadURL = "" }
func (v *fakeView) Alert(message string) { v.alerts = append(v.alerts, message) }

// fakeSubmitter returns a canned outcome and records the request
type fakeSubmitter struct {
	mu      sync.Mutex
	result  upload.Result
	err     error
	calls   int
	got     upload.Request
	payload string
	block   chan struct{}
}

func (s *fakeSubmitter) Submit(ctx context.Context, req upload.Request) (upload.Result, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return upload.Result{}, &upload.TransportError{Op: "POST", URL: "/upload/midi", Err: ctx.Err()}
		}
	}
	data, _ := io.ReadAll(req.File)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.got = req
	s.payload = string(data)
	return s.result, s.err
}

func writeSong(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "song.mid")
	if err := os.WriteFile(path, []byte("MThd"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubmitEnabledFollowsFileSelection(t *testing.T) {
	view := &fakeView{submitEnabled: true}
	c := NewController(view, &fakeSubmitter{}, nil)

	if view.submitEnabled {
		t.Error("submit should start disabled with no file")
	}

	c.SelectFile(writeSong(t))
	if !view.submitEnabled {
		t.Error("selecting a file should enable submit")
	}

	c.ClearFile()
	if view.submitEnabled {
		t.Error("clearing the file should disable submit")
	}

	if _, err := c.BeginSubmit(context.Background()); !errors.Is(err, ErrNoFile) {
		t.Errorf("BeginSubmit() without file: err = %v, want ErrNoFile", err)
	}
}

func TestSuccessfulSubmitShowsDownload(t *testing.T) {
	view := &fakeView{}
	sub := &fakeSubmitter{result: upload.Result{URL: "/files/abc123.wav", StatusCode: 200}}
	c := NewController(view, sub, nil)
	c.SelectFile(writeSong(t))
	c.SetOutputName("My Track")
	if err := c.SetWaveform(upload.WaveSine); err != nil {
		t.Fatal(err)
	}

	state, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if state != StateDownloadReady {
		t.Errorf("state = %v, want download-ready", state)
	}

	if sub.got.FileName != "song.mid" || sub.got.OutputName != "My Track" || sub.got.Waveform != upload.WaveSine {
		t.Errorf("request = %+v", sub.got)
	}
	if sub.payload != "MThd" {
		t.Errorf("payload = %q, want file contents", sub.payload)
	}

	if !view.downloadShown || view.downloadURL != "/files/abc123.wav" {
		t.Errorf("download shown=%v url=%q, want /files/abc123.wav", view.downloadShown, view.downloadURL)
	}
	if view.submitVisible {
		t.Error("submit should be hidden while the download is showing")
	}
	if view.loading {
		t.Error("loading indicator should be cleared")
	}
	if len(view.alerts) != 0 {
		t.Errorf("unexpected alerts %v", view.alerts)
	}
	if c.DownloadURL() != "/files/abc123.wav" {
		t.Errorf("DownloadURL() = %q", c.DownloadURL())
	}

	c.DismissDownload()
	if c.State() != StateIdle {
		t.Errorf("state after dismiss = %v, want idle", c.State())
	}
	if view.downloadShown || !view.submitVisible || !view.submitEnabled {
		t.Errorf("after dismiss: download=%v submitVisible=%v submitEnabled=%v",
			view.downloadShown, view.submitVisible, view.submitEnabled)
	}
}

func TestFailedSubmitAlertsServerMessage(t *testing.T) {
	view := &fakeView{}
	sub := &fakeSubmitter{result: upload.Result{Message: "Unsupported file", StatusCode: 200}}
	c := NewController(view, sub, nil)
	c.SelectFile(writeSong(t))

	state, err := c.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if state != StateFailed {
		t.Errorf("state = %v, want failed", state)
	}
	if len(view.alerts) != 1 || view.alerts[0] != "Unsupported file" {
		t.Errorf("alerts = %q, want [Unsupported file]", view.alerts)
	}
	if view.downloadShown || view.showCalls != 0 {
		t.Error("no download control should appear")
	}
	if !view.submitEnabled {
		t.Error("submit should be re-enabled after the failure resolves")
	}

	c.AcknowledgeFailure()
	if c.State() != StateIdle {
		t.Errorf("state after acknowledge = %v, want idle", c.State())
	}
}

func TestTransportFailureIsVisible(t *testing.T) {
	view := &fakeView{}
	sub := &fakeSubmitter{err: &upload.TransportError{
		Op:  "POST",
		URL: "http://localhost:8080/upload/midi",
		Err: &url.Error{Op: "Post", URL: "http://localhost:8080/upload/midi", Err: errors.New("connection refused")},
	}}
	c := NewController(view, sub, nil)
	c.SelectFile(writeSong(t))

	state, _ := c.Submit(context.Background())
	if state != StateFailed {
		t.Errorf("state = %v, want failed", state)
	}
	if len(view.alerts) != 1 || !strings.HasPrefix(view.alerts[0], "upload failed: ") ||
		!strings.Contains(view.alerts[0], "connection refused") {
		t.Errorf("alerts = %q, want an upload failed message", view.alerts)
	}
}

func TestPresentSameResultTwiceBindsOnce(t *testing.T) {
	view := &fakeView{}
	p := NewPresenter(view, nil)
	result := upload.Result{URL: "/files/abc123.wav", StatusCode: 200}

	p.Present(result, nil)
	p.Present(result, nil)

	if view.showCalls != 1 {
		t.Errorf("ShowDownload called %d times, want 1", view.showCalls)
	}

	p.Present(upload.Result{URL: "/files/other.wav", StatusCode: 200}, nil)
	if view.showCalls != 2 || view.downloadURL != "/files/other.wav" {
		t.Errorf("rebinding to a new URL: calls=%d url=%q", view.showCalls, view.downloadURL)
	}
}

func TestBeginSubmitFencesConcurrentUploads(t *testing.T) {
	view := &fakeView{}
	sub := &fakeSubmitter{result: upload.Result{URL: "/x.wav", StatusCode: 200}}
	c := NewController(view, sub, nil)
	c.SelectFile(writeSong(t))

	p, err := c.BeginSubmit(context.Background())
	if err != nil {
		t.Fatalf("BeginSubmit() error = %v", err)
	}
	if c.State() != StateSubmitting {
		t.Errorf("state = %v, want submitting", c.State())
	}
	if view.submitEnabled {
		t.Error("submit should be disabled while the upload is pending")
	}
	if !view.loading {
		t.Error("loading indicator should be on")
	}

	if _, err := c.BeginSubmit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second BeginSubmit() err = %v, want ErrBusy", err)
	}
	c.SelectFile(writeSong(t))
	if view.submitEnabled {
		t.Error("changing the file must not re-enable submit mid-upload")
	}

	c.Finish(p.Run())
	if sub.calls != 1 {
		t.Errorf("submitter called %d times, want 1", sub.calls)
	}
	if _, err := c.BeginSubmit(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("BeginSubmit() while download showing: err = %v, want ErrNotReady", err)
	}
}

func TestCancelPendingUpload(t *testing.T) {
	view := &fakeView{}
	sub := &fakeSubmitter{block: make(chan struct{})}
	c := NewController(view, sub, nil)
	c.SelectFile(writeSong(t))

	p, err := c.BeginSubmit(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	type outcome struct {
		result upload.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := p.Run()
		done <- outcome{r, err}
	}()

	if !c.Cancel() {
		t.Fatal("Cancel() = false with an upload pending")
	}
	out := <-done
	state := c.Finish(out.result, out.err)

	if state != StateFailed {
		t.Errorf("state = %v, want failed", state)
	}
	if len(view.alerts) != 1 || view.alerts[0] != "upload cancelled" {
		t.Errorf("alerts = %q, want [upload cancelled]", view.alerts)
	}
	if c.Cancel() {
		t.Error("Cancel() = true with nothing pending")
	}
}

func TestFinishWithoutPendingIsIgnored(t *testing.T) {
	view := &fakeView{}
	c := NewController(view, &fakeSubmitter{}, nil)

	if got := c.Finish(upload.Result{URL: "/x.wav", StatusCode: 200}, nil); got != StateIdle {
		t.Errorf("Finish() = %v, want idle", got)
	}
	if view.showCalls != 0 {
		t.Error("stale Finish should not show a download")
	}
}

func TestDefaultOutputName(t *testing.T) {
	sub := &fakeSubmitter{result: upload.Result{URL: "/x.wav", StatusCode: 200}}
	c := NewController(&fakeView{}, sub, nil)
	c.SelectFile(writeSong(t))
	c.SetOutputName("   ")

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if sub.got.OutputName != "song" {
		t.Errorf("OutputName = %q, want song", sub.got.OutputName)
	}
}

func TestResubmitAfterFailureKeepsFailedWhenOpenFails(t *testing.T) {
	view := &fakeView{}
	sub := &fakeSubmitter{result: upload.Result{Message: "Unsupported file", StatusCode: 422}}
	c := NewController(view, sub, nil)
	path := writeSong(t)
	c.SelectFile(path)

	if state, _ := c.Submit(context.Background()); state != StateFailed {
		t.Fatalf("state = %v, want failed", state)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := c.BeginSubmit(context.Background()); err == nil {
		t.Fatal("BeginSubmit() with a missing file should fail")
	}
	if c.State() != StateFailed {
		t.Errorf("state after failed open = %v, want failed", c.State())
	}
	if view.loading {
		t.Error("loading should not be shown when the upload never started")
	}

	if err := os.WriteFile(path, []byte("MThd"), 0644); err != nil {
		t.Fatal(err)
	}
	p, err := c.BeginSubmit(context.Background())
	if err != nil {
		t.Fatalf("BeginSubmit() = %v", err)
	}
	if c.State() != StateSubmitting {
		t.Errorf("state = %v, want submitting", c.State())
	}
	if got := p.Request(); got.FileName != "song.mid" || got.OutputName != "song" {
		t.Errorf("Request() = %+v", got)
	}
	c.Finish(p.Run())
}

func TestSetWaveformRejectsUnknown(t *testing.T) {
	c := NewController(&fakeView{}, &fakeSubmitter{}, nil)
	if err := c.SetWaveform("noise"); !errors.Is(err, upload.ErrInvalidWaveform) {
		t.Errorf("SetWaveform(noise) err = %v", err)
	}
	if c.Waveform() != upload.WaveSine {
		t.Errorf("Waveform() = %q, want sine", c.Waveform())
	}
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"cancelled", &upload.TransportError{Err: context.Canceled}, "upload cancelled"},
		{"timeout", &upload.TransportError{Err: context.DeadlineExceeded}, "upload timed out"},
		{"transport", &upload.TransportError{Err: errors.New("EOF")}, "upload failed: EOF"},
		{"other", errors.New("boom"), "upload failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureMessage(tt.err); got != tt.want {
				t.Errorf("FailureMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConsoleView(t *testing.T) {
	var out strings.Builder
	view := NewConsoleView(&out)
	sub := &fakeSubmitter{result: upload.Result{URL: "/files/abc123.wav", StatusCode: 200}}
	c := NewController(view, sub, nil)
	c.SelectFile(writeSong(t))

	if _, err := c.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if view.DownloadURL != "/files/abc123.wav" {
		t.Errorf("DownloadURL = %q", view.DownloadURL)
	}
	if !strings.Contains(out.String(), "Download ready: /files/abc123.wav") {
		t.Errorf("output = %q", out.String())
	}
}
