package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/brookhq/brook/pkg/dotdir"
)

const (
	sessionFile = "session.toml"

	currentVersion = 0
)

// UpstreamKeyEnvVar is the environment variable consulted before the
// stored upstream credential.
const UpstreamKeyEnvVar = "OPENAI_API_KEY"

// SessionTokenEnvVar is the environment variable consulted before the
// stored session token.
const SessionTokenEnvVar = "BROOK_SESSION_TOKEN"

// Manager manages reading and writing session.toml in the .brook/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .brook/ directory; otherwise the standard dotdir resolution applies.
// When no .brook/ directory is found, one is created at ~/.brook/.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home dir: %w", err)
		}
		target = filepath.Join(home, ".brook")
		if err := os.MkdirAll(target, 0o755); err != nil {
			return nil, fmt.Errorf("creating brook dir: %w", err)
		}
	}

	mgr.targetPath = filepath.Join(target, sessionFile)

	return mgr, nil
}

// Load reads session.toml from the target directory.
// Returns empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{Version: currentVersion}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	return creds, nil
}

// Save writes credentials to session.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SetSessionToken stores the relay bearer token.
func (m *Manager) SetSessionToken(token string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Session.Token = token

	return m.Save(creds)
}

// SessionToken returns the relay bearer token. The BROOK_SESSION_TOKEN
// environment variable takes precedence over the stored value. Returns an
// empty string when no token is available.
func (m *Manager) SessionToken() (string, error) {
	if tok := os.Getenv(SessionTokenEnvVar); tok != "" {
		return tok, nil
	}

	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Session.Token, nil
}

// ClearSessionToken removes the stored relay bearer token.
func (m *Manager) ClearSessionToken() error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Session.Token = ""

	return m.Save(creds)
}

// SetUpstreamKey stores the model-provider API key.
func (m *Manager) SetUpstreamKey(key string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Upstream.APIKey = key

	return m.Save(creds)
}

// UpstreamKey returns the model-provider API key. The OPENAI_API_KEY
// environment variable takes precedence over the stored value.
func (m *Manager) UpstreamKey() (string, error) {
	if key := os.Getenv(UpstreamKeyEnvVar); key != "" {
		return key, nil
	}

	creds, err := m.Load()
	if err != nil {
		return "", err
	}

	return creds.Upstream.APIKey, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}
