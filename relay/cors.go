package relay

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// originPolicy holds the allowed-origin prefix list behind a mutex so it
// can be swapped at runtime when the config file changes.
type originPolicy struct {
	mu       sync.RWMutex
	prefixes []string
}

func newOriginPolicy(prefixes []string) *originPolicy {
	p := &originPolicy{}
	p.set(prefixes)
	return p
}

func (p *originPolicy) set(prefixes []string) {
	cleaned := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	p.mu.Lock()
	p.prefixes = cleaned
	p.mu.Unlock()
}

// allowed reports whether origin starts with any configured prefix.
// Requests without an Origin header never reach this check; the CORS
// middleware passes them through as same-origin/non-browser traffic.
func (p *originPolicy) allowed(origin string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, prefix := range p.prefixes {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}

	return false
}

// corsMiddleware builds the CORS handler backed by the mutable policy.
// Credentials are never included.
func corsMiddleware(policy *originPolicy) fiber.Handler {
	return cors.New(cors.Config{
		AllowOriginsFunc: policy.allowed,
		AllowMethods:     "POST, OPTIONS, GET",
	})
}
