package unblocker

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Outcome tells why Rewrite returned the value it did.
type Outcome int

const (
	Rewritten Outcome = iota
	Empty
	AlreadyProxied
	OpaqueScheme
	Malformed
	UnsupportedScheme
)

func (o Outcome) String() string {
	switch o {
	case Rewritten:
		return "rewritten"
	case Empty:
		return "empty"
	case AlreadyProxied:
		return "already-proxied"
	case OpaqueScheme:
		return "opaque-scheme"
	case Malformed:
		return "malformed"
	case UnsupportedScheme:
		return "unsupported-scheme"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result is the outcome of a single rewrite. Value is always safe to hand
// back to page code: it is either the rewritten URL or the input itself.
type Result struct {
	Value   string
	Outcome Outcome
}

// Changed reports whether Value differs from the input.
func (r Result) Changed() bool {
	return r.Outcome == Rewritten
}

// opaque schemes never point at a proxyable network resource
var opaqueSchemes = []string{"data:", "blob:", "about:"}

// Normalizer rewrites URLs so they route through the proxy prefix.
type Normalizer struct {
	cfg *Config
}

func NewNormalizer(cfg *Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// Config returns the configuration the normalizer reads from.
func (n *Normalizer) Config() *Config {
	return n.cfg
}

// FixURL returns raw rewritten to prefix+absoluteURL, or raw itself when it
// must not be rewritten.
func (n *Normalizer) FixURL(raw string) string {
	return n.Rewrite(raw).Value
}

// FixValue is FixURL for values coming straight from page code, which may be
// nil or not strings at all. Non-string values are returned unchanged, with
// the exception of fmt.Stringer values (URL objects) which are rewritten.
func (n *Normalizer) FixValue(v any) any {
	switch t := v.(type) {
	case string:
		return n.FixURL(t)
	case fmt.Stringer:
		s, ok := stringOf(t)
		if !ok {
			return v
		}
		return n.FixURL(s)
	default:
		return v
	}
}

func stringOf(s fmt.Stringer) (str string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			str, ok = "", false
		}
	}()
	return s.String(), true
}

// Rewrite applies the rewrite policy to raw. It never panics; every reason
// for leaving the input alone is reported as an Outcome.
func (n *Normalizer) Rewrite(raw string) Result {
	if raw == "" {
		return Result{Value: raw, Outcome: Empty}
	}
	if strings.HasPrefix(raw, n.cfg.Prefix) {
		return Result{Value: raw, Outcome: AlreadyProxied}
	}

	trimmed := cleanURLString(raw)
	if trimmed == "" {
		return Result{Value: raw, Outcome: Empty}
	}
	if strings.HasPrefix(trimmed, n.cfg.Prefix) {
		return Result{Value: raw, Outcome: AlreadyProxied}
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range opaqueSchemes {
		if strings.HasPrefix(lower, scheme) {
			return Result{Value: raw, Outcome: OpaqueScheme}
		}
	}

	abs, ok := n.resolve(trimmed)
	if !ok {
		return Result{Value: raw, Outcome: Malformed}
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return Result{Value: raw, Outcome: UnsupportedScheme}
	}
	if abs.Host == "" || abs.Opaque != "" {
		return Result{Value: raw, Outcome: Malformed}
	}
	if abs.Path == "" {
		abs.Path = "/"
	}

	href := abs.String()
	if !isTargetURL(href) {
		// the rewritten form must always decode back
		return Result{Value: raw, Outcome: Malformed}
	}
	if n.isProxied(href) {
		return Result{Value: raw, Outcome: AlreadyProxied}
	}
	return Result{Value: n.cfg.Prefix + href, Outcome: Rewritten}
}

// Decode turns a rewritten URL back into the absolute URL it carries.
// Both the raw form and a percent-encoded form are accepted.
func (n *Normalizer) Decode(rewritten string) (string, bool) {
	rest, ok := n.stripPrefix(rewritten)
	if !ok {
		return "", false
	}
	return DecodeTarget(rest)
}

// some servers and path cleaners collapse "https://" into "https:/"
var collapsedScheme = regexp.MustCompile(`^(?i)(https?|wss?):/([^/])`)

// DecodeTarget decodes what follows the prefix in a rewritten URL.
func DecodeTarget(rest string) (string, bool) {
	if isTargetURL(rest) {
		return rest, true
	}
	if unescaped, err := url.PathUnescape(rest); err == nil && isTargetURL(unescaped) {
		return unescaped, true
	}
	if repaired := collapsedScheme.ReplaceAllString(rest, "$1://$2"); repaired != rest && isTargetURL(repaired) {
		return repaired, true
	}
	return "", false
}

func (n *Normalizer) resolve(ref string) (u *url.URL, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			u, ok = nil, false
		}
	}()

	ref = slashBackslashes(ref)
	parsed, err := url.Parse(ref)
	if err != nil {
		// browsers keep a stray '%' literally
		if parsed, err = url.Parse(escapeStrayPercent(ref)); err != nil {
			return nil, false
		}
	}
	base := n.cfg.baseURL()
	if base == nil {
		return nil, false
	}
	abs := base.ResolveReference(parsed)
	abs.Host = strings.ToLower(abs.Host)
	return abs, true
}

var schemePrefix = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9+.-]*):`)

// slashBackslashes reads '\' as '/' before the query, as browsers do for
// http(s) and for references relative to an http(s) base.
func slashBackslashes(ref string) string {
	if !strings.Contains(ref, `\`) {
		return ref
	}
	if m := schemePrefix.FindStringSubmatch(ref); m != nil {
		if scheme := strings.ToLower(m[1]); scheme != "http" && scheme != "https" {
			return ref
		}
	}
	end := strings.IndexAny(ref, "?#")
	if end < 0 {
		end = len(ref)
	}
	return strings.ReplaceAll(ref[:end], `\`, "/") + ref[end:]
}

// escapeStrayPercent encodes every '%' that does not start a valid escape.
func escapeStrayPercent(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && !(i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2])) {
			sb.WriteString("%25")
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

// isProxied catches absolute spellings of an already rewritten URL, such as
// the value a native src getter reports for a prefixed relative path.
func (n *Normalizer) isProxied(href string) bool {
	_, ok := n.stripPrefix(href)
	return ok
}

func (n *Normalizer) stripPrefix(s string) (string, bool) {
	prefix := n.cfg.Prefix
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	if n.cfg.Origin != "" && strings.HasPrefix(prefix, "/") {
		full := n.cfg.Origin + prefix
		if strings.HasPrefix(s, full) {
			return s[len(full):], true
		}
	}
	return "", false
}

func isTargetURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}

// cleanURLString strips what a browser's URL parser ignores: leading and
// trailing C0 controls and spaces, and tabs or newlines anywhere.
func cleanURLString(s string) string {
	s = strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })
	if strings.ContainsAny(s, "\t\n\r") {
		s = strings.NewReplacer("\t", "", "\n", "", "\r", "").Replace(s)
	}
	return s
}
