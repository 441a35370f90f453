// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"shortform-studio/internal/config"
	"shortform-studio/internal/logging"
	"shortform-studio/internal/pipeerr"
	"shortform-studio/internal/pipeline"
	"shortform-studio/internal/storage"
	"shortform-studio/internal/types"
)

// Runner is the part of the pipeline the handlers drive.
type Runner interface {
	NewJob() (*pipeline.Job, error)
	Generate(ctx context.Context, job *pipeline.Job, brief types.Brief) (*pipeline.Result, error)
	Edit(ctx context.Context, job *pipeline.Job, req types.EditRequest) (*pipeline.Result, error)
}

type RenderLister interface {
	List(ctx context.Context, limit int) ([]storage.Render, error)
}

type Server struct {
	app     *fiber.App
	run     Runner
	renders RenderLister
	cfg     config.ServerConfig
	log     *zap.Logger
}

// New builds the fiber app. renders may be nil. When filesDir is set it is
// served under /files for the local storage backend.
func New(run Runner, renders RenderLister, cfg config.ServerConfig, filesDir string, log *zap.Logger) *Server {
	s := &Server{run: run, renders: renders, cfg: cfg, log: logging.OrNop(log).Named("server")}

	s.app = fiber.New(fiber.Config{
		BodyLimit:             cfg.MaxUploadMB * 1024 * 1024,
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	s.app.Use(recover.New())
	s.app.Use(logger.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	s.app.Get("/health-check", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Post("/v1/generate-video", s.generate)
	s.app.Post("/v1/edit-video", s.edit)
	s.app.Get("/v1/renders", s.listRenders)
	if filesDir != "" {
		s.app.Static("/files", filesDir)
	}
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info("server starting", zap.String("addr", addr))
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error { return s.app.Shutdown() }

func (s *Server) generate(c *fiber.Ctx) error {
	brief := types.Brief{
		Title:         strings.TrimSpace(c.FormValue("title")),
		Description:   strings.TrimSpace(c.FormValue("description")),
		Template:      strings.TrimSpace(c.FormValue("template")),
		Duration:      strings.TrimSpace(c.FormValue("duration")),
		Orientation:   strings.ToLower(strings.TrimSpace(c.FormValue("orientation"))),
		UseStockMedia: parseBool(c.FormValue("use_stock_media")),
	}
	if missing := brief.Missing(); len(missing) > 0 {
		return s.fail(c, pipeerr.Wrap("brief", pipeerr.NoScene, pipeerr.ErrInvalidBrief,
			fmt.Errorf("missing %s", strings.Join(missing, ", "))))
	}

	job, err := s.run.NewJob()
	if err != nil {
		return s.fail(c, err)
	}
	defer s.closeJob(job)

	files, err := s.saveMedia(c, job, pipeerr.ErrInvalidBrief)
	if err != nil {
		return s.fail(c, err)
	}
	brief.MediaFiles = files
	if !brief.UseStockMedia && len(files) == 0 {
		return s.fail(c, pipeerr.Wrap("brief", pipeerr.NoScene, pipeerr.ErrInvalidBrief,
			errors.New("no media uploaded and stock media disabled")))
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	res, err := s.run.Generate(ctx, job, brief)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(response(res))
}

func (s *Server) edit(c *fiber.Ctx) error {
	job, err := s.run.NewJob()
	if err != nil {
		return s.fail(c, err)
	}
	defer s.closeJob(job)

	var req types.EditRequest
	if isMultipart(c) {
		if err := json.Unmarshal([]byte(c.FormValue("payload")), &req); err != nil {
			return s.fail(c, fmt.Errorf("%w: payload: %v", pipeerr.ErrInvalidEditTarget, err))
		}
		files, err := s.saveMedia(c, job, pipeerr.ErrInvalidEditTarget)
		if err != nil {
			return s.fail(c, err)
		}
		if len(files) > 0 {
			attachMedia(req.Scenes, files[0])
		}
	} else if err := json.Unmarshal(c.Body(), &req); err != nil {
		return s.fail(c, fmt.Errorf("%w: body: %v", pipeerr.ErrInvalidEditTarget, err))
	}
	req.Orientation = strings.ToLower(strings.TrimSpace(req.Orientation))

	ctx, cancel := s.requestContext(c)
	defer cancel()
	res, err := s.run.Edit(ctx, job, req)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(response(res))
}

func (s *Server) listRenders(c *fiber.Ctx) error {
	if s.renders == nil {
		return c.JSON([]storage.Render{})
	}
	list, err := s.renders.List(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(list)
}

// saveMedia stores every non-empty "media" part in the job's media dir and
// returns the stored file names. An unreadable form or file is reported as kind.
func (s *Server) saveMedia(c *fiber.Ctx, job *pipeline.Job, kind error) ([]string, error) {
	if !isMultipart(c) {
		return nil, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, pipeerr.Wrap("upload", pipeerr.NoScene, kind, err)
	}

	var names []string
	for _, fh := range form.File["media"] {
		if fh.Size == 0 {
			continue
		}
		name := filepath.Base(fh.Filename)
		if _, _, ok := types.FormForFile(name); !ok {
			return nil, pipeerr.Wrap("upload", pipeerr.NoScene, kind,
				fmt.Errorf("unsupported media file %q", name))
		}
		if err := c.SaveFile(fh, filepath.Join(job.MediaDir(), name)); err != nil {
			return nil, fmt.Errorf("save %s: %w", name, err)
		}
		names = append(names, name)
	}
	return lo.Uniq(names), nil
}

// attachMedia points the edited user scene at the uploaded replacement when
// the payload left its media field empty.
func attachMedia(scenes []types.Scene, name string) {
	for i := range scenes {
		if scenes[i].Edited && !scenes[i].Type.IsStock() && scenes[i].Media == "" {
			scenes[i].Media = name
		}
	}
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.cfg.RequestTimeoutS) * time.Second
	if timeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), timeout)
}

func (s *Server) closeJob(job *pipeline.Job) {
	if err := job.Close(); err != nil {
		s.log.Warn("failed to remove work dir", zap.String("job", job.ID), zap.Error(err))
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	pub := pipeerr.ToPublic(err)
	if pub.Status >= 500 {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.String("code", pub.Code), zap.Error(err))
	} else {
		s.log.Info("request rejected", zap.String("path", c.Path()), zap.String("code", pub.Code), zap.Error(err))
	}
	return c.Status(pub.Status).JSON(pub)
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(pipeerr.Public{Code: "ERR_HTTP_" + strconv.Itoa(fe.Code), Message: fe.Message})
	}
	return s.fail(c, err)
}

func response(res *pipeline.Result) fiber.Map {
	m := fiber.Map{
		"id":          res.ID,
		"signed_url":  res.SignedURL,
		"scenes":      res.Script.Scenes,
		"music":       res.Script.Music,
		"orientation": res.Script.Orientation,
		"total_sec":   res.Script.TotalSec,
	}
	if res.YouTube != nil {
		m["youtube"] = res.YouTube
	}
	return m
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return strings.EqualFold(strings.TrimSpace(s), "on") || strings.EqualFold(strings.TrimSpace(s), "yes")
	}
	return b
}
