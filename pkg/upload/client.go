package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
)

// UploadPath is the conversion endpoint relative to the server base URL
const UploadPath = "/upload/midi"

// maxResponseBytes bounds the JSON reply read from the service
const maxResponseBytes = 1 << 20

// maxNameAttempts bounds the numbered names tried by Download
const maxNameAttempts = 100

// Options configures a Client
type Options struct {
	Server     string        // base URL, e.g. http://localhost:8080
	Timeout    time.Duration // per call; zero means no client-side limit
	Fields     Fields
	HTTPClient *http.Client
	Logger     log.Logger
}

// Client talks to a conversion service
type Client struct {
	base    *url.URL
	timeout time.Duration
	fields  Fields
	http    *http.Client
	logger  log.Logger
}

// New creates a Client. Empty field names fall back to DefaultFields.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.Server, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", opts.Server)
	}

	fields := opts.Fields
	if fields.OutputName == "" {
		fields.OutputName = DefaultFields.OutputName
	}
	if fields.Waveform == "" {
		fields.Waveform = DefaultFields.Waveform
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Client{
		base:    base,
		timeout: opts.Timeout,
		fields:  fields,
		http:    httpClient,
		logger:  log.With(logger, "component", "upload"),
	}, nil
}

// Endpoint returns the absolute upload URL
func (c *Client) Endpoint() string {
	return c.base.String() + UploadPath
}

// Submit uploads req and interprets the reply. Any reply with a JSON body
// yields a Result and a nil error, whatever its status; failures to reach the
// service or to decode its reply come back as *TransportError.
func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	if req.File == nil || req.FileName == "" {
		return Result{}, ErrNoFile
	}
	if req.Waveform == "" {
		req.Waveform = DefaultWaveform
	}
	if !req.Waveform.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidWaveform, req.Waveform)
	}

	body, contentType, err := c.encode(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to build upload body: %w", err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	endpoint := c.Endpoint()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	logger := log.With(c.logger, "method", "Submit", "request_id", requestID)
	_ = level.Info(logger).Log("file", req.FileName, "output", req.OutputName, "waveform", req.Waveform, "bytes", body.Len())

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		_ = level.Error(logger).Log("err", err)
		return Result{}, &TransportError{Op: "POST", URL: endpoint, Err: transportCause(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	var payload Response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		_ = level.Error(logger).Log("status", resp.StatusCode, "err", err)
		return Result{}, &TransportError{
			Op:  "POST",
			URL: endpoint,
			Err: fmt.Errorf("unreadable response (HTTP %d): %w", resp.StatusCode, transportCause(ctx, err)),
		}
	}

	result := interpret(resp.StatusCode, payload)
	_ = level.Info(logger).Log("status", resp.StatusCode, "ok", result.OK(), "url", result.URL, "took", time.Since(start))
	return result, nil
}

func (c *Client) encode(req Request) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile(FileField, filepath.Base(req.FileName))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", req.FileName, err)
	}
	if err := w.WriteField(c.fields.OutputName, req.OutputName); err != nil {
		return nil, "", err
	}
	if err := w.WriteField(c.fields.Waveform, string(req.Waveform)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// interpret applies the status-authoritative success rule
func interpret(status int, payload Response) Result {
	result := Result{URL: payload.URL, Message: payload.Message, StatusCode: status}
	if result.Message == "" {
		result.Message = payload.Error
	}
	if result.OK() {
		return result
	}
	if result.Message == "" {
		if status >= 200 && status < 300 {
			result.Message = "conversion failed"
		} else {
			result.Message = fmt.Sprintf("conversion failed (HTTP %d)", status)
		}
	}
	return result
}

// Download fetches rawURL, which may be relative to the server, into dir and
// returns the written path. The file name comes from Content-Disposition or
// else the last URL path segment; an existing file is never replaced.
func (c *Client) Download(ctx context.Context, rawURL, dir string) (string, error) {
	target, err := c.Resolve(rawURL)
	if err != nil {
		return "", err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	logger := log.With(c.logger, "method", "Download", "url", target)
	resp, err := c.http.Do(req)
	if err != nil {
		_ = level.Error(logger).Log("err", err)
		return "", &TransportError{Op: "GET", URL: target, Err: transportCause(ctx, err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = level.Warn(logger).Log("status", resp.StatusCode)
		return "", fmt.Errorf("download %s: HTTP %d", target, resp.StatusCode)
	}

	name := downloadName(resp.Header.Get("Content-Disposition"), req.URL.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}
	f, outPath, err := createUnique(dir, name)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(outPath)
		return "", &TransportError{Op: "GET", URL: target, Err: transportCause(ctx, err)}
	}

	_ = level.Info(logger).Log("path", outPath, "bytes", written)
	return outPath, nil
}

// Resolve turns a possibly relative URL from the service into an absolute one
func (c *Client) Resolve(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errors.New("empty download URL")
	}
	ref, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid download URL: %w", err)
	}
	return c.base.ResolveReference(ref).String(), nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// transportCause prefers the context's error so callers can tell timeouts
// and cancellation apart from other failures
func transportCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %v", ctxErr, err)
	}
	return err
}

func downloadName(disposition, urlPath string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			if name, ok := safeName(params["filename"]); ok {
				return name
			}
		}
	}
	if name, ok := safeName(urlPath); ok {
		return name
	}
	return "download.wav"
}

// safeName reduces a server supplied name to a plain file name
func safeName(name string) (string, bool) {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "", false
	}
	return name, true
}

// createUnique creates name in dir without replacing an existing file,
// numbering the name "song (1).wav", "song (2).wav"... on collision
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		outPath := filepath.Join(dir, candidate)
		f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, outPath, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", outPath, err)
		}
	}
	return nil, "", fmt.Errorf("failed to create %s: too many files with that name", filepath.Join(dir, name))
}
