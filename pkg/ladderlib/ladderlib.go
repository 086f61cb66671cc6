package ladderlib

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidTarget    = errors.New("invalid target url")
	ErrDomainNotAllowed = errors.New("domain not allowed")
)

// #############################################################################
// # Rulesets
// #############################################################################

type RuleSet []Rule

type Rule struct {
	Domain  string   `yaml:"domain,omitempty"`
	Domains []string `yaml:"domains,omitempty"`
	Paths   []string `yaml:"paths,omitempty"`
	Headers struct {
		UserAgent     string `yaml:"user-agent,omitempty"`
		XForwardedFor string `yaml:"x-forwarded-for,omitempty"`
		Referer       string `yaml:"referer,omitempty"`
		Cookie        string `yaml:"cookie,omitempty"`
		CSP           string `yaml:"content-security-policy,omitempty"`
	} `yaml:"headers,omitempty"`

	Injections []Injection `yaml:"injections,omitempty"`
}

type Injection struct {
	Position string `yaml:"position,omitempty"`
	Append   string `yaml:"append,omitempty"`
	Prepend  string `yaml:"prepend,omitempty"`
	Replace  string `yaml:"replace,omitempty"`
}

// #############################################################################
// # Core Ladder Library
// #############################################################################

// Request is an incoming request to forward to Target.
type Request struct {
	Method string
	Target string
	Header http.Header
	Body   []byte
}

// Response is the upstream answer, with hop-by-hop headers removed.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	URL    *url.URL
	Rule   Rule
}

// IsHTML reports whether the response is an HTML document.
func (r *Response) IsHTML() bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "text/html")
}

type Ladder struct {
	Config Config
	Rules  RuleSet

	client *http.Client
	logger zerolog.Logger
}

// NewLadder creates and initializes a new Ladder instance.
func NewLadder(cfg Config, logger zerolog.Logger) (*Ladder, error) {
	rules, err := loadRuleset(cfg.Ruleset, logger)
	if err != nil {
		return nil, err
	}

	return &Ladder{
		Config: cfg,
		Rules:  rules,
		client: &http.Client{
			Timeout: time.Second * time.Duration(cfg.Timeout),
		},
		logger: logger,
	}, nil
}

// headers never copied back from upstream
var excludedHeaders = []string{
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
	"Connection",
	"Keep-Alive",
}

// headers copied from the client to upstream
var forwardedHeaders = []string{
	"Accept",
	"Accept-Language",
	"Content-Type",
	"Range",
}

// ProcessRequest forwards req to its target and returns the upstream response.
func (l *Ladder) ProcessRequest(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: error parsing '%s': %v", ErrInvalidTarget, req.Target, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, req.Target)
	}

	if !l.allowed(u.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrDomainNotAllowed, u.Host)
	}

	if l.Config.LogURLs {
		l.logger.Info().Str("method", req.Method).Str("url", u.String()).Msg("proxying")
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	upstream, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("error building request: %w", err)
	}

	rule := l.fetchRule(u.Hostname(), u.Path)
	l.setHeaders(upstream, req.Header, rule, u)

	resp, err := l.client.Do(upstream)
	if err != nil {
		return nil, fmt.Errorf("error fetching site: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	header := resp.Header.Clone()
	for _, h := range excludedHeaders {
		header.Del(h)
	}
	// the injected bootstrap is an inline script
	header.Del("Content-Security-Policy")
	if rule.Headers.CSP != "" {
		header.Set("Content-Security-Policy", rule.Headers.CSP)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   bodyBytes,
		URL:    resp.Request.URL,
		Rule:   rule,
	}, nil
}

func (l *Ladder) setHeaders(req *http.Request, incoming http.Header, rule Rule, u *url.URL) {
	for _, h := range forwardedHeaders {
		if v := incoming.Get(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	// bodies are injected into, so ask for them uncompressed
	req.Header.Set("Accept-Encoding", "identity")

	if rule.Headers.UserAgent != "" {
		req.Header.Set("User-Agent", rule.Headers.UserAgent)
	} else if l.Config.UserAgent != "" {
		req.Header.Set("User-Agent", l.Config.UserAgent)
	}

	if rule.Headers.XForwardedFor != "" {
		if rule.Headers.XForwardedFor != "none" {
			req.Header.Set("X-Forwarded-For", rule.Headers.XForwardedFor)
		}
	} else if l.Config.ForwardedFor != "" {
		req.Header.Set("X-Forwarded-For", l.Config.ForwardedFor)
	}

	if rule.Headers.Referer != "" {
		if rule.Headers.Referer != "none" {
			req.Header.Set("Referer", rule.Headers.Referer)
		}
	} else {
		req.Header.Set("Referer", u.String())
	}

	if rule.Headers.Cookie != "" {
		req.Header.Set("Cookie", rule.Headers.Cookie)
	}
}

func (l *Ladder) allowed(host string) bool {
	if len(l.Config.AllowedDomains) == 0 {
		return true
	}
	for _, domain := range l.Config.AllowedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

func (l *Ladder) fetchRule(domain string, path string) Rule {
	for _, rule := range l.Rules {
		ruleDomains := append([]string{rule.Domain}, rule.Domains...)
		for _, ruleDomain := range ruleDomains {
			if ruleDomain == domain || strings.HasSuffix(domain, "."+ruleDomain) {
				if len(rule.Paths) > 0 && !hasPathPrefix(path, rule.Paths) {
					continue
				}
				return rule // Return first match
			}
		}
	}
	return Rule{}
}

func loadRuleset(rulePaths string, logger zerolog.Logger) (RuleSet, error) {
	if rulePaths == "" {
		logger.Debug().Msg("no ruleset specified")
		return RuleSet{}, nil
	}

	var ruleSet RuleSet
	var errs []error

	for _, rulePath := range strings.Split(rulePaths, ";") {
		trimmedPath := strings.TrimSpace(rulePath)
		if trimmedPath == "" {
			continue
		}

		var rules RuleSet
		err := filepath.Walk(trimmedPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && (strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")) {
				yamlFile, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read rules file '%s': %w", path, err)
				}
				var r RuleSet
				if err := yaml.Unmarshal(yamlFile, &r); err != nil {
					return fmt.Errorf("syntax error in rules file '%s': %w", path, err)
				}
				rules = append(rules, r...)
			}
			return nil
		})

		if err != nil {
			errs = append(errs, fmt.Errorf("failed to load rules from '%s': %w", trimmedPath, err))
		} else {
			ruleSet = append(ruleSet, rules...)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("errors while loading rulesets: %w", errors.Join(errs...))
	}

	logger.Info().Int("rules", ruleSet.Count()).Int("domains", ruleSet.DomainCount()).Msg("loaded ruleset")
	return ruleSet, nil
}

func (rs *RuleSet) Domains() []string {
	var domains []string
	for _, rule := range *rs {
		if rule.Domain != "" {
			domains = append(domains, rule.Domain)
		}
		domains = append(domains, rule.Domains...)
	}
	return domains
}

func (rs *RuleSet) DomainCount() int {
	return len(rs.Domains())
}

func (rs *RuleSet) Count() int {
	return len(*rs)
}

func hasPathPrefix(s string, list []string) bool {
	for _, x := range list {
		if strings.HasPrefix(s, x) {
			return true
		}
	}
	return false
}
