package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

var (
	errOriginMissing   = errors.New("origin header missing")
	errOriginMalformed = errors.New("origin is not a scheme://host URL")
	errOriginForbidden = errors.New("origin not allowed")
)

// originPolicy decides which browser origins may open a WebSocket. Origins are
// compared on scheme and host only, case-insensitively. A "*" entry admits
// any well-formed origin.
type originPolicy struct {
	wildcard bool
	origins  map[string]struct{}
	logger   zerolog.Logger
}

func newOriginPolicy(configured []string, logger zerolog.Logger) *originPolicy {
	p := &originPolicy{origins: map[string]struct{}{}, logger: logger}

	for _, raw := range configured {
		raw = strings.TrimSpace(raw)
		switch raw {
		case "":
		case "*":
			p.wildcard = true
		default:
			key, err := originKey(raw)
			if err != nil {
				logger.Warn().Err(err).Str("origin", raw).Msg("ignoring configured origin")
				continue
			}
			p.origins[key] = struct{}{}
		}
	}
	return p
}

// originKey reduces an origin to its lower-cased scheme://host form.
func originKey(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errOriginMalformed
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), nil
}

func (p *originPolicy) evaluate(origin string) error {
	if origin == "" {
		return errOriginMissing
	}
	key, err := originKey(origin)
	if err != nil {
		return err
	}
	if p.wildcard {
		return nil
	}
	if _, ok := p.origins[key]; !ok {
		return errOriginForbidden
	}
	return nil
}

// check is the websocket.Upgrader CheckOrigin hook.
func (p *originPolicy) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if err := p.evaluate(origin); err != nil {
		p.logger.Warn().Err(err).Str("origin", origin).Str("remote_addr", r.RemoteAddr).
			Msg("rejected WebSocket upgrade")
		return false
	}
	return true
}
