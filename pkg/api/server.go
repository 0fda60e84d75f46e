// Package api provides a development conversion server speaking the same
// HTTP contract as the production MIDI to WAV service
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/james-see/midi2wav/pkg/midiinfo"
	"github.com/james-see/midi2wav/pkg/render"
	"github.com/james-see/midi2wav/pkg/upload"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title midi2wav API
// @version 1.0
// @description Development server converting monophonic MIDI files to WAV
// @host localhost:8080
// @BasePath /

const (
	maxUploadBytes      int64 = 10 << 20
	maxRequestBodyBytes       = maxUploadBytes + 512
)

// Options configures a Server
type Options struct {
	UploadDir string
	TTL       time.Duration
	Fields    upload.Fields
	Logger    log.Logger
}

// Server renders uploads and serves the results for a limited time
type Server struct {
	store  *fileStore
	fields upload.Fields
	logger log.Logger
	router *gin.Engine
}

// New creates a Server. Rendered files live under opts.UploadDir.
func New(opts Options) (*Server, error) {
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.UploadDir == "" {
		opts.UploadDir = filepath.Join(os.TempDir(), "midi2wav")
	}
	if opts.Fields.OutputName == "" {
		opts.Fields.OutputName = upload.DefaultFields.OutputName
	}
	if opts.Fields.Waveform == "" {
		opts.Fields.Waveform = upload.DefaultFields.Waveform
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	store, err := newFileStore(opts.UploadDir, opts.TTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:  store,
		fields: opts.Fields,
		logger: log.With(opts.Logger, "component", "api"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the server's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close removes every file still awaiting download
func (s *Server) Close() {
	s.store.close()
}

// StartServer runs a Server on the specified port until it fails
func StartServer(port int, opts Options) error {
	s, err := New(opts)
	if err != nil {
		return err
	}
	defer s.Close()

	_ = level.Info(s.logger).Log("msg", "listening", "port", port, "upload_dir", opts.UploadDir)
	return s.router.Run(fmt.Sprintf(":%d", port))
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	// CORS middleware
	r.Use(corsMiddleware())

	r.GET("/health", healthCheck)
	r.POST(upload.UploadPath, s.handleUpload)
	r.GET("/download/:name", s.handleDownload)

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		_ = level.Info(s.logger).Log(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"request_id", c.GetHeader("X-Request-ID"),
			"took", time.Since(start),
		)
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "midi2wav",
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, upload.Response{
		Message: message,
		Created: time.Now(),
		Success: false,
	})
}

// handleUpload godoc
// @Summary Convert MIDI to WAV
// @Description Upload a monophonic MIDI file and receive a download URL for the rendered WAV
// @Tags convert
// @Accept multipart/form-data
// @Produce json
// @Param myMIDIFile formData file true "MIDI file to convert"
// @Param wavFileName formData string false "Output file name"
// @Param myWaveForm formData string false "sine, triangle, square or saw"
// @Success 200 {object} upload.Response
// @Failure 400 {object} upload.Response
// @Failure 422 {object} upload.Response
// @Router /upload/midi [post]
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes)
	logger := log.With(s.logger, "method", "handleUpload", "request_id", c.GetHeader("X-Request-ID"))

	file, header, err := c.Request.FormFile(upload.FileField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, "File exceeds the 10 MB limit")
			return
		}
		fail(c, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		fail(c, http.StatusBadRequest, "Failed to read file")
		return
	}

	wave, err := upload.ParseWaveform(c.Request.FormValue(s.fields.Waveform))
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Sprintf("Unsupported waveform %q", c.Request.FormValue(s.fields.Waveform)))
		return
	}
	userName := cleanName(c.Request.FormValue(s.fields.OutputName), cleanName(header.Filename, "converted"))

	_ = level.Debug(logger).Log("file", header.Filename, "size", header.Size, "output", userName, "waveform", wave)

	sum, err := midiinfo.Inspect(data)
	if err != nil {
		_ = level.Warn(logger).Log("err", err)
		fail(c, http.StatusUnprocessableEntity, "Conversion failed: not a readable MIDI file")
		return
	}

	key, path := s.store.create(userName, ".wav")
	if err := s.renderTo(path, sum, wave); err != nil {
		s.store.discard(path)
		_ = level.Warn(logger).Log("err", err)
		fail(c, http.StatusUnprocessableEntity, "Conversion failed: "+err.Error())
		return
	}
	expires := s.store.commit(key, path, userName+".wav")

	_ = level.Info(logger).Log("msg", "converted", "key", key, "notes", len(sum.Notes), "expires", expires)
	c.Header("Expires", expires.UTC().Format(http.TimeFormat))
	c.JSON(http.StatusOK, upload.Response{
		URL:     "/download/" + url.PathEscape(key),
		Message: "File converted",
		Created: time.Now(),
		Success: true,
	})
}

func (s *Server) renderTo(path string, sum *midiinfo.Summary, wave upload.Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := render.Render(sum, wave, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// handleDownload godoc
// @Summary Download a rendered WAV
// @Description Serves a converted file as an attachment until it expires
// @Tags convert
// @Produce audio/wav
// @Param name path string true "Key returned in the upload URL"
// @Success 200 {file} binary
// @Failure 404 {object} upload.Response
// @Router /download/{name} [get]
func (s *Server) handleDownload(c *gin.Context) {
	path, userName, err := s.store.lookup(c.Param("name"))
	if err != nil {
		fail(c, http.StatusNotFound, "Requested file does not exist or has expired")
		return
	}
	c.FileAttachment(path, userName)
}
