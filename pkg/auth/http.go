package auth

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/httpx"
)

// HeaderAuthorization carries the bearer token.
const HeaderAuthorization = "Authorization"

// AlwaysAllowed lists routes that never require a token in any service.
var AlwaysAllowed = []string{"/api/v1/docs/*", "/healthz"}

// Gate is the request authorization middleware. Requests whose path matches
// the allow-list pass through untouched; every other request needs an
// Authorization header that the [TokenValidator] accepts. The validated
// [Identity] is attached to the request context.
//
// Gate holds no per-request state and is safe for concurrent use.
type Gate struct {
	validator TokenValidator
	allow     []*regexp.Regexp
	logger    *slog.Logger
}

// NewGate compiles allowList, plus [AlwaysAllowed], into path matchers.
// Entries are path templates: "{param}" segments and "*" match any text,
// everything else matches literally, and the whole path must match:
//
//	/api/v1/users/{user_id}/  matches  /api/v1/users/42/
//	/api/v1/docs/*            matches  /api/v1/docs/swagger.json
func NewGate(validator TokenValidator, allowList []string) (*Gate, error) {
	if validator == nil {
		return nil, sserr.New(sserr.CodeInternalConfiguration, "auth: gate requires a token validator")
	}
	g := &Gate{validator: validator, logger: slog.Default()}
	for _, tmpl := range append(append([]string(nil), AlwaysAllowed...), allowList...) {
		tmpl = strings.TrimSpace(tmpl)
		if tmpl == "" {
			continue
		}
		re, err := regexp.Compile(templatePattern(tmpl))
		if err != nil {
			return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration, "auth: invalid allow-list entry %q", tmpl)
		}
		g.allow = append(g.allow, re)
	}
	return g, nil
}

// WithLogger sets the logger for rejected requests.
func (g *Gate) WithLogger(logger *slog.Logger) *Gate {
	g.logger = logger
	return g
}

// Allowed reports whether path bypasses authentication.
func (g *Gate) Allowed(path string) bool {
	for _, re := range g.allow {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Middleware returns the gate as chi-compatible middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Allowed(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get(HeaderAuthorization)
		if header == "" {
			g.reject(w, r, sserr.Unauthenticated(sserr.CodeAuthenticationMissing, ReasonMissingHeader))
			return
		}

		identity, err := g.validator.Validate(r.Context(), header)
		if err != nil {
			g.reject(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, err error) {
	if sserr.IsAuthentication(err) {
		g.logger.WarnContext(r.Context(), "auth: request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"code", sserr.GetCode(err).String(),
			"reason", sserr.FromError(err).Message,
		)
	}
	httpx.WriteError(w, r, err)
}

// templatePattern converts an allow-list template to an anchored regular
// expression.
func templatePattern(tmpl string) string {
	var b strings.Builder
	b.WriteString("^")
	for len(tmpl) > 0 {
		switch {
		case tmpl[0] == '*':
			b.WriteString(".*")
			tmpl = tmpl[1:]
		case tmpl[0] == '{':
			end := strings.IndexByte(tmpl, '}')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(tmpl))
				tmpl = ""
				continue
			}
			b.WriteString(".*")
			tmpl = tmpl[end+1:]
		default:
			next := strings.IndexAny(tmpl, "*{")
			if next < 0 {
				next = len(tmpl)
			}
			b.WriteString(regexp.QuoteMeta(tmpl[:next]))
			tmpl = tmpl[next:]
		}
	}
	b.WriteString("$")
	return b.String()
}
