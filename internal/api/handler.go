// Package api exposes the agent over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-statement-agent/internal/artifact"
	"github.com/insightdelivered/bank-statement-agent/internal/executor"
	"github.com/insightdelivered/bank-statement-agent/internal/models"
	"github.com/insightdelivered/bank-statement-agent/internal/table"
	"github.com/insightdelivered/bank-statement-agent/internal/target"
)

// maxAttemptsLimit bounds what a request may ask for.
const maxAttemptsLimit = 10

// RunFunc runs the agent loop for a target with the given attempt budget
// (0 means the configured default).
type RunFunc func(ctx context.Context, target string, maxAttempts int) *models.LoopResult

// History lists recorded runs.
type History interface {
	List(ctx context.Context, target string, limit int) ([]*models.LoopResult, error)
}

// Artifacts reads accepted parsers.
type Artifacts interface {
	Read(target string) (models.Artifact, error)
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Run       RunFunc
	History   History
	Artifacts Artifacts
	Executor  executor.Executor
	Version   string
	Logger    zerolog.Logger
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// RunRequest is the body of POST /api/runs.
type RunRequest struct {
	Target      string `json:"target"`
	MaxAttempts int    `json:"max_attempts"`
}

// ConvertResponse is the body of a successful convert request.
type ConvertResponse struct {
	Success bool       `json:"success"`
	Target  string     `json:"target"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Count   int        `json:"count"`
	CSV     string     `json:"csv"`
	Warning string     `json:"warning,omitempty"`
}

// NewApp builds the fiber app with all routes registered.
func NewApp(h *Handler, bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "bank-statement-agent",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/health", h.handleHealth)
	api.Post("/runs", h.handleRun)
	api.Get("/runs", h.handleListRuns)
	api.Get("/parsers/:target", h.handleGetParser)
	api.Post("/parsers/:target/convert", h.handleConvert)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

func fail(code int, format string, args ...any) error {
	return fiber.NewError(code, fmt.Sprintf(format, args...))
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"engine":  "fiber",
		"version": h.Version,
	})
}

func (h *Handler) handleRun(c *fiber.Ctx) error {
	var req RunRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(fiber.StatusBadRequest, "invalid request body: %v", err)
	}
	id, err := target.Normalize(req.Target)
	if err != nil {
		return fail(fiber.StatusBadRequest, "%v", err)
	}
	if req.MaxAttempts < 0 || req.MaxAttempts > maxAttemptsLimit {
		return fail(fiber.StatusBadRequest, "max_attempts must be between 1 and %d", maxAttemptsLimit)
	}

	res := h.Run(c.UserContext(), id, req.MaxAttempts)
	h.Logger.Info().Str("target", id).Str("status", string(res.Status)).Msg("run requested over HTTP")

	switch res.Status {
	case models.StatusSuccess:
		return c.JSON(res)
	case models.StatusExhausted:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(res)
	}
}

func (h *Handler) handleListRuns(c *fiber.Ctx) error {
	if h.History == nil {
		return fail(fiber.StatusNotFound, "run history is disabled")
	}
	var id string
	if q := c.Query("target"); q != "" {
		n, err := target.Normalize(q)
		if err != nil {
			return fail(fiber.StatusBadRequest, "%v", err)
		}
		id = n
	}
	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 0 {
		return fail(fiber.StatusBadRequest, "limit must be a non-negative integer")
	}

	runs, err := h.History.List(c.UserContext(), id, limit)
	if err != nil {
		return err
	}
	return c.JSON(runs)
}

func (h *Handler) handleGetParser(c *fiber.Ctx) error {
	art, err := h.readArtifact(c.Params("target"))
	if err != nil {
		return err
	}
	return c.JSON(art)
}

func (h *Handler) handleConvert(c *fiber.Ctx) error {
	art, err := h.readArtifact(c.Params("target"))
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fail(fiber.StatusBadRequest, "no file uploaded, use form field 'file'")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if ext != ".pdf" && ext != ".txt" {
		return fail(fiber.StatusBadRequest, "only PDF or text statements are supported")
	}

	dir, err := os.MkdirTemp("", "statement-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "statement"+ext)
	if err := c.SaveFile(fh, path); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}

	result, err := h.Executor.Execute(c.UserContext(), art, path)
	if err != nil {
		var ee *executor.ExecutionError
		if errors.As(err, &ee) {
			return fail(fiber.StatusUnprocessableEntity, "parsing failed: %s", ee.Detail)
		}
		return err
	}

	var buf bytes.Buffer
	if err := table.Write(&buf, result); err != nil {
		return err
	}
	return c.JSON(ConvertResponse{
		Success: true,
		Target:  art.Target,
		Columns: result.Columns,
		Rows:    result.Rows,
		Count:   len(result.Rows),
		CSV:     buf.String(),
		Warning: h.acceptanceWarning(c.UserContext(), art.Target),
	})
}

func (h *Handler) acceptanceWarning(ctx context.Context, id string) string {
	if h.History == nil {
		return ""
	}
	runs, err := h.History.List(ctx, id, 1)
	if err != nil || len(runs) == 0 {
		return ""
	}
	warning := models.UnacceptedWarning(runs[0])
	if warning != "" {
		h.Logger.Warn().Str("target", id).Msg(warning)
	}
	return warning
}

func (h *Handler) readArtifact(raw string) (models.Artifact, error) {
	id, err := target.Normalize(raw)
	if err != nil {
		return models.Artifact{}, fail(fiber.StatusBadRequest, "%v", err)
	}
	art, err := h.Artifacts.Read(id)
	if errors.Is(err, artifact.ErrNotFound) {
		return models.Artifact{}, fail(fiber.StatusNotFound, "no parser generated for %s yet", id)
	}
	return art, err
}
