package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andesco/unblocker/pkg/ladderlib"
	"github.com/andesco/unblocker/pkg/unblocker"
)

// Server holds the fiber handlers of the injection host.
type Server struct {
	ladder *ladderlib.Ladder
	logger zerolog.Logger
}

func NewServer(l *ladderlib.Ladder, logger zerolog.Logger) *Server {
	return &Server{ladder: l, logger: logger}
}

// HTMLProxy proxies a page and injects the engine into HTML responses.
// Other methods and non-HTML content pass through unchanged.
func (s *Server) HTMLProxy(c *fiber.Ctx) error {
	return s.proxy(c, s.ladder.Config.HTMLPrefix, c.Method() == fiber.MethodGet)
}

// RawProxy forwards any request without touching the response body.
func (s *Server) RawProxy(c *fiber.Ctx) error {
	return s.proxy(c, s.ladder.Config.RawPrefix, false)
}

func (s *Server) proxy(c *fiber.Ctx, prefix string, inject bool) error {
	log := s.logger.With().Str("request_id", uuid.NewString()).Logger()

	targetURL, err := extractURL(c, prefix)
	if err != nil {
		log.Warn().Err(err).Msg("could not extract url")
		return c.Status(fiber.StatusBadRequest).SendString("Could not extract URL")
	}

	// Convert Fiber headers to http.Header
	headers := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers.Add(string(key), string(value))
	})

	resp, err := s.ladder.ProcessRequest(c.UserContext(), ladderlib.Request{
		Method: c.Method(),
		Target: targetURL,
		Header: headers,
		Body:   append([]byte(nil), c.Body()...),
	})
	if err != nil {
		log.Error().Err(err).Str("url", targetURL).Msg("failed to process request")
		return c.Status(statusFor(err)).SendString(err.Error())
	}

	for key, values := range resp.Header {
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}

	body := resp.Body
	if inject && resp.IsHTML() {
		rewritten, err := s.ladder.RewriteHTML(body, resp.URL, resp.Rule)
		if err != nil {
			log.Warn().Err(err).Str("url", targetURL).Msg("serving page without engine")
		} else {
			body = rewritten
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
	}

	return c.Status(resp.Status).Send(body)
}

// RelativeFallback catches requests for paths that escaped rewriting. The
// real site is recovered from the referer and the client is redirected to
// the proxied location.
func (s *Server) RelativeFallback(c *fiber.Ctx) error {
	target, err := s.resolveFromReferer(c)
	if err != nil {
		s.logger.Debug().Err(err).Str("path", c.Path()).Msg("no fallback target")
		return c.Status(fiber.StatusNotFound).SendString("Not Found")
	}

	if s.ladder.Config.LogURLs {
		s.logger.Info().Str("path", c.OriginalURL()).Str("url", target).Msg("resolved relative url")
	}
	return c.Redirect(s.ladder.Config.HTMLPrefix+target, fiber.StatusTemporaryRedirect)
}

func (s *Server) resolveFromReferer(c *fiber.Ctx) (string, error) {
	referer := c.Get(fiber.HeaderReferer)
	if referer == "" {
		return "", fmt.Errorf("cannot resolve relative path without a referer: %s", c.Path())
	}

	var base string
	for _, prefix := range []string{s.ladder.Config.HTMLPrefix, s.ladder.Config.RawPrefix} {
		if i := strings.Index(referer, prefix); i >= 0 {
			if decoded, ok := unblocker.DecodeTarget(referer[i+len(prefix):]); ok {
				base = decoded
				break
			}
		}
	}
	if base == "" {
		return "", fmt.Errorf("referer is not a proxied url: %s", referer)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("error parsing real target from referer '%s': %w", base, err)
	}
	ref, err := url.Parse(c.OriginalURL())
	if err != nil {
		return "", fmt.Errorf("error parsing request path '%s': %w", c.OriginalURL(), err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// Index redirects ?url=... to the proxied page.
func (s *Server) Index(c *fiber.Ctx) error {
	target := strings.TrimSpace(c.Query("url"))
	if target == "" {
		return c.SendString("usage: " + s.ladder.Config.HTMLPrefix + "https://example.com/")
	}
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	return c.Redirect(s.ladder.Config.HTMLPrefix+target, fiber.StatusFound)
}

// extractURL returns the target URL carried after prefix in the raw request
// URI. The raw form is used because path normalisation would collapse the
// "//" after the scheme.
func extractURL(c *fiber.Ctx, prefix string) (string, error) {
	raw := string(c.Request().Header.RequestURI())
	i := strings.Index(raw, prefix)
	if i < 0 {
		return "", fmt.Errorf("request '%s' is not under '%s'", raw, prefix)
	}

	target, ok := unblocker.DecodeTarget(raw[i+len(prefix):])
	if !ok {
		return "", fmt.Errorf("error parsing target from '%s'", raw)
	}
	return target, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ladderlib.ErrInvalidTarget):
		return fiber.StatusBadRequest
	case errors.Is(err, ladderlib.ErrDomainNotAllowed):
		return fiber.StatusForbidden
	default:
		return fiber.StatusBadGateway
	}
}
