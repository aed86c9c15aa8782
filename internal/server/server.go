package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	objectcounter "github.com/menta2k/object-counter"
	"github.com/menta2k/object-counter/internal/config"
	"github.com/menta2k/object-counter/pkg/detection"
	"github.com/menta2k/object-counter/pkg/processing"
	"github.com/menta2k/object-counter/pkg/types"
)

const (
	requestIDHeader = "X-Request-ID"
	encodeQuality   = 90
)

// contentTypes lists the image formats a caller can ask for with ?format=
var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// Analyzer is the part of the counter the HTTP layer needs
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, objects []string) (*objectcounter.Result, error)
	Processor() *processing.Processor
}

// Server exposes the counter over HTTP
type Server struct {
	analyzer  Analyzer
	cfg       config.ServerConfig
	log       zerolog.Logger
	maxUpload int64
	engine    *gin.Engine
}

// AnalyzeResponse is the JSON body of a successful analysis
type AnalyzeResponse struct {
	RequestID  string              `json:"request_id"`
	Counts     []types.ObjectCount `json:"counts"`
	Detections []types.RenderedBox `json:"detections"`
	Image      string              `json:"image"`
}

// ErrorResponse is the JSON body of a failed request
type ErrorResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
}

// New creates a server with its routes registered
func New(a Analyzer, cfg config.ServerConfig, log zerolog.Logger) *Server {
	s := &Server{
		analyzer:  a,
		cfg:       cfg,
		log:       log,
		maxUpload: int64(cfg.MaxUploadMB) << 20,
	}

	e := gin.New()
	e.Use(gin.Recovery(), s.requestID(), s.accessLog())
	e.GET("/healthz", s.health)
	v1 := e.Group("/api").
		Group("/v1")
	v1.POST("/analyze", s.analyze)

	s.engine = e
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Handler:      s.engine,
		Addr:         s.cfg.Addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("request_id", c.GetString(requestIDHeader)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": objectcounter.GetVersion()})
}

func (s *Server) analyze(c *gin.Context) {
	reqID := c.GetString(requestIDHeader)
	log := s.log.With().Str("request_id", reqID).Logger()

	format := strings.ToLower(c.Query("format"))
	contentType, binary := contentTypes[format]
	if format != "" && format != "json" && !binary {
		s.fail(c, http.StatusBadRequest, "invalid_request", "Unsupported format (use json, png, jpg or webp)", nil)
		return
	}
	if !binary {
		format = "png"
	}

	if s.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	}

	file, err := c.FormFile("file")
	if err != nil {
		log.Err(err).Msg("read file from form")
		s.fail(c, uploadStatus(err), "invalid_request", "Failed to read form file", err)
		return
	}

	objects := detection.ParseObjectList(c.PostForm("objects"))
	if len(objects) == 0 {
		s.fail(c, http.StatusBadRequest, "invalid_input", "No objects to detect", nil)
		return
	}

	f, err := file.Open()
	if err != nil {
		log.Err(err).Msg("open file")
		s.fail(c, http.StatusBadRequest, "invalid_request", "Failed to open form file", err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Err(err).Msg("read upload")
		s.fail(c, uploadStatus(err), "invalid_request", "Failed to read upload", err)
		return
	}

	result, err := s.analyzer.Analyze(c.Request.Context(), data, objects)
	if err != nil {
		log.Warn().Err(err).Str("filename", file.Filename).Msg("analyze image")
		status, code := StatusFor(err)
		s.fail(c, status, code, "Failed to analyze image", err)
		return
	}

	var buf bytes.Buffer
	if err := s.analyzer.Processor().EncodeImage(&buf, result.Image, format, encodeQuality, false); err != nil {
		log.Err(err).Str("format", format).Msg("encode result")
		s.fail(c, http.StatusInternalServerError, "internal", "Failed to encode image", err)
		return
	}

	if binary {
		counts, _ := json.Marshal(result.CountMap())
		c.Header("X-Object-Counts", string(counts))
		c.Data(http.StatusOK, contentType, buf.Bytes())
		return
	}

	c.JSON(http.StatusOK, AnalyzeResponse{
		RequestID:  reqID,
		Counts:     result.Counts,
		Detections: result.Boxes,
		Image:      base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

func (s *Server) fail(c *gin.Context, status int, code, message string, err error) {
	resp := ErrorResponse{
		RequestID: c.GetString(requestIDHeader),
		Code:      code,
		Message:   message,
	}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

func uploadStatus(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// StatusFor maps a pipeline error to an HTTP status and error code
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, types.ErrParse):
		return http.StatusUnprocessableEntity, "parse_error"
	case errors.Is(err, types.ErrMalformedDetection):
		return http.StatusUnprocessableEntity, "malformed_detection"
	case errors.Is(err, types.ErrNetwork):
		if types.IsRetryable(err) {
			return http.StatusServiceUnavailable, "model_unavailable"
		}
		return http.StatusBadGateway, "model_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
