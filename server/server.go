// Package server exposes the consultation pipeline over HTTP.
package server

import (
	"context"
	"log/slog"
	"mime/multipart"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrsingh-rishi/voice-doctor/audio"
	"github.com/mrsingh-rishi/voice-doctor/metrics"
	"github.com/mrsingh-rishi/voice-doctor/model"
	"github.com/mrsingh-rishi/voice-doctor/output"
	"github.com/mrsingh-rishi/voice-doctor/pipeline"
	"github.com/mrsingh-rishi/voice-doctor/storage"
	"github.com/mrsingh-rishi/voice-doctor/vision"
	"github.com/mrsingh-rishi/voice-doctor/workers"
)

// RetryHint accompanies every failed consultation.
const RetryHint = "Please ensure both audio and image are properly uploaded and try again."

const eventWriteTimeout = 5 * time.Second

// Consultations runs a request and waits for its result.
type Consultations interface {
	SubmitAndWait(ctx context.Context, req model.Request) (*model.Result, error)
}

// Config contains HTTP server configuration
type Config struct {
	Address        string
	MaxUploadBytes int
	InputsDir      string
	ImagesDir      string
	OutputsDir     string
}

// consultationResponse is the body of a successful consultation.
type consultationResponse struct {
	RequestID  string `json:"request_id"`
	Transcript string `json:"transcript"`
	Response   string `json:"response"`
	AudioURL   string `json:"audio_url"`
	Degraded   bool   `json:"degraded"`
}

// Server wires the HTTP routes to the consultation worker.
type Server struct {
	app           *fiber.App
	config        Config
	consultations Consultations
	events        *output.Broadcaster
	gatherer      prometheus.Gatherer
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// New builds the Fiber app and registers every route.
func New(cfg Config, consultations Consultations, events *output.Broadcaster, gatherer prometheus.Gatherer, m *metrics.Metrics, logger *slog.Logger) (*Server, error) {
	if consultations == nil {
		return nil, errors.New("consultations runner is required")
	}
	if events == nil {
		return nil, errors.New("event broadcaster is required")
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	fiberCfg := fiber.Config{DisableStartupMessage: true}
	if cfg.MaxUploadBytes > 0 {
		fiberCfg.BodyLimit = cfg.MaxUploadBytes
	}

	s := &Server{
		app:           fiber.New(fiberCfg),
		config:        cfg,
		consultations: consultations,
		events:        events,
		gatherer:      gatherer,
		metrics:       m,
		logger:        logger,
	}
	s.setupRoutes()
	return s, nil
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) setupRoutes() {
	s.app.Use(s.withMetrics)

	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.app.Group("/api")
	api.Post("/consultations", s.handleConsultation)
	api.Get("/audio/:name", s.handleAudio)

	// Middleware to require WebSocket upgrade on /ws
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/events", websocket.New(s.handleEvents))
}

// withMetrics records the status and duration of every request.
func (s *Server) withMetrics(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	s.metrics.RecordHTTPRequest(c.Route().Path, strconv.Itoa(status), time.Since(start))
	return err
}

func (s *Server) handleConsultation(c *fiber.Ctx) error {
	audioFile, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "`audio` file is required"})
	}
	if !audio.IsSupported(audioFile.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unsupported audio format"})
	}

	// image is optional
	imageFile, err := c.FormFile("image")
	if err != nil {
		imageFile = nil
	}
	if imageFile != nil && !vision.IsSupported(imageFile.Filename) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "image must be a .jpg, .jpeg or .png file"})
	}

	req := model.Request{ID: uuid.NewString()}
	logger := s.logger.With(slog.String("request_id", req.ID))

	req.AudioPath, err = saveUpload(s.config.InputsDir, req.ID, audioFile)
	if err != nil {
		logger.Error("Failed to store audio upload", slog.String("error", err.Error()))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store audio"})
	}
	if imageFile != nil {
		req.ImagePath, err = saveUpload(s.config.ImagesDir, req.ID, imageFile)
		if err != nil {
			logger.Error("Failed to store image upload", slog.String("error", err.Error()))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store image"})
		}
	}

	logger.Info("Consultation received",
		slog.String("audio_path", req.AudioPath),
		slog.String("image_path", req.ImagePath),
	)

	result, err := s.consultations.SubmitAndWait(c.UserContext(), req)
	if err != nil {
		return s.consultationError(c, logger, err)
	}

	return c.JSON(consultationResponse{
		RequestID:  result.RequestID,
		Transcript: result.Transcript,
		Response:   result.ResponseText,
		AudioURL:   "/api/audio/" + filepath.Base(result.AudioPath),
		Degraded:   result.Degraded,
	})
}

func (s *Server) consultationError(c *fiber.Ctx, logger *slog.Logger, err error) error {
	logger.Error("Consultation failed", slog.String("error", err.Error()))

	switch {
	case errors.Is(err, workers.ErrQueueFull):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "too many consultations in progress", "hint": "Please try again shortly."})
	case errors.Is(err, workers.ErrWorkerStopped):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service is shutting down"})
	case errors.Is(err, pipeline.ErrTranscription), errors.Is(err, pipeline.ErrSynthesis):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error(), "hint": RetryHint})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error(), "hint": RetryHint})
	}
}

// handleAudio serves a synthesized reply. The file is read on every request
// because the default output name is overwritten by each run.
func (s *Server) handleAudio(c *fiber.Ctx) error {
	name := storage.SanitizeName(c.Params("name"))
	if name == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	data, err := os.ReadFile(filepath.Join(s.config.OutputsDir, name))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	}
	c.Type(strings.TrimPrefix(filepath.Ext(name), "."))
	return c.Send(data)
}

func (s *Server) handleEvents(conn *websocket.Conn) {
	sub := &eventConn{conn: conn, timeout: eventWriteTimeout}
	done := s.events.Subscribe(sub)
	defer func() {
		// The conn is released once the handler returns.
		s.events.Unsubscribe(sub)
		<-done
	}()
	s.logger.Info("Event stream connected")

	// Incoming messages are ignored; reading detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	select {
	case <-closed:
	case <-done:
		conn.Close()
		<-closed
	}
	s.logger.Info("Event stream disconnected")
}

// eventConn bounds every event write so a client that stops reading is
// dropped instead of holding its writer forever.
type eventConn struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (e *eventConn) WriteJSON(v interface{}) error {
	if err := e.conn.SetWriteDeadline(time.Now().Add(e.timeout)); err != nil {
		return err
	}
	return e.conn.WriteJSON(v)
}

// Listen serves on the configured address until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info("Starting HTTP server", slog.String("address", s.config.Address))
	return s.app.Listen(s.config.Address)
}

// Listener serves on ln until Shutdown is called.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server...")
	return s.app.ShutdownWithContext(ctx)
}

func saveUpload(dir, requestID string, header *multipart.FileHeader) (string, error) {
	f, err := header.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer f.Close()
	return storage.SaveUpload(dir, requestID+"_"+storage.SanitizeName(header.Filename), f)
}
