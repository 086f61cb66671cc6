package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/andesco/unblocker/pkg/ladderlib"
)

// NewApp wires the injection host routes: engine assets, the HTML and raw
// proxies, and the referer fallback for everything else.
func NewApp(l *ladderlib.Ladder, logger zerolog.Logger) *fiber.App {
	cfg := l.Config
	s := NewServer(l, logger)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})

	app.Static(strings.TrimSuffix(cfg.AssetPath, "/"), cfg.AssetDir)
	app.Get("/", s.Index)
	app.All(cfg.HTMLPrefix+"*", s.HTMLProxy)
	app.All(cfg.RawPrefix+"*", s.RawProxy)
	app.Use(s.RelativeFallback)

	return app
}
