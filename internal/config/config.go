package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

const (
	// ConfigDirName is the directory under ~/.config where state lives
	ConfigDirName = "egnyte-desktop"
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// EnvPrefix is the prefix for environment variable overrides
	EnvPrefix = "EGNYTE_"
)

// ConflictPolicy selects the winning side when both copies changed
type ConflictPolicy string

const (
	// ConflictNewest prefers the side with the later modification time
	ConflictNewest ConflictPolicy = "newest"
	// ConflictLocal always uploads the local copy
	ConflictLocal ConflictPolicy = "local"
	// ConflictRemote always downloads the remote copy
	ConflictRemote ConflictPolicy = "remote"
)

// Valid reports whether the policy names a known strategy
func (p ConflictPolicy) Valid() bool {
	switch p {
	case ConflictNewest, ConflictLocal, ConflictRemote:
		return true
	}
	return false
}

// SyncPolicy holds per-entry overrides. Unset fields fall back to the
// global defaults at resolution time.
type SyncPolicy struct {
	ConflictPolicy             ConflictPolicy `json:"conflictPolicy,omitempty"`
	DeleteLocalOnRemoteMissing *bool          `json:"deleteLocalOnRemoteMissing,omitempty"`
	DeleteRemoteOnLocalMissing *bool          `json:"deleteRemoteOnLocalMissing,omitempty"`
}

// EffectivePolicy is a fully resolved policy snapshot consumed by one
// sync operation
type EffectivePolicy struct {
	ConflictPolicy             ConflictPolicy
	DeleteLocalOnRemoteMissing bool
	DeleteRemoteOnLocalMissing bool
}

// SyncEntry pairs a local root with a remote root
type SyncEntry struct {
	LocalRoot  string
	RemoteRoot string
	Policy     SyncPolicy
}

type syncEntryJSON struct {
	Remote string     `json:"remote"`
	Policy SyncPolicy `json:"policy,omitempty"`
}

// Settings is the persisted configuration shape
type Settings struct {
	Domain       string `json:"domain,omitempty"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURI  string `json:"redirectUri,omitempty"`

	SyncPaths map[string]syncEntryJSON `json:"syncPaths,omitempty"`

	ConflictPolicy             ConflictPolicy `json:"conflictPolicy,omitempty"`
	DeleteLocalOnRemoteMissing bool           `json:"deleteLocalOnRemoteMissing,omitempty"`
	DeleteRemoteOnLocalMissing bool           `json:"deleteRemoteOnLocalMissing,omitempty"`

	RateLimitQPS          float64 `json:"rateLimitQps,omitempty"`
	RemoteIntervalSeconds int     `json:"remoteIntervalSeconds,omitempty"`
	DebounceSeconds       float64 `json:"debounceSeconds,omitempty"`

	LogLevel string `json:"logLevel,omitempty"`
	LogFile  string `json:"logFile,omitempty"`
}

// Defaults applied when a setting is absent from file and environment
const (
	DefaultRateLimitQPS          = 2.0
	DefaultRemoteIntervalSeconds = 15
	DefaultDebounceSeconds       = 2.0
	DefaultRedirectURI           = "https://localhost:8080/callback"
)

// Config manages persisted client configuration
type Config struct {
	dir      string
	filePath string
	settings Settings
}

// DefaultDir returns the standard config directory (~/.config/egnyte-desktop)
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", ConfigDirName), nil
}

// Load opens the config rooted at dir, creating the directory if needed.
// An empty dir selects the default location. A missing or unreadable
// config file yields defaults rather than an error.
func Load(dir string) (*Config, error) {
	if dir == "" {
		var err error
		dir, err = DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("cannot create config directory: %w", err)
	}

	cfg := &Config{
		dir:      dir,
		filePath: filepath.Join(dir, ConfigFileName),
	}

	data, err := os.ReadFile(cfg.filePath)
	if err == nil {
		// Corrupt config falls back to defaults, same as a missing file
		_ = json.Unmarshal(data, &cfg.settings)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(EnvPrefix + "DOMAIN"); v != "" {
		c.settings.Domain = v
	}
	if v := os.Getenv(EnvPrefix + "CLIENT_ID"); v != "" {
		c.settings.ClientID = v
	}
	if v := os.Getenv(EnvPrefix + "CLIENT_SECRET"); v != "" {
		c.settings.ClientSecret = v
	}
	if v := os.Getenv(EnvPrefix + "RATE_LIMIT_QPS"); v != "" {
		if qps, err := strconv.ParseFloat(v, 64); err == nil && qps > 0 {
			c.settings.RateLimitQPS = qps
		}
	}
	if v := os.Getenv(EnvPrefix + "REMOTE_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			c.settings.RemoteIntervalSeconds = secs
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.settings.LogLevel = v
	}
}

// Save writes the current settings to disk
func (c *Config) Save() error {
	data, err := json.MarshalIndent(c.settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0600)
}

// Dir returns the config directory, also used for persisted sync state
func (c *Config) Dir() string {
	return c.dir
}

// Domain returns the configured Egnyte domain
func (c *Config) Domain() string { return c.settings.Domain }

// SetDomain sets the Egnyte domain
func (c *Config) SetDomain(domain string) { c.settings.Domain = domain }

// ClientID returns the OAuth client ID
func (c *Config) ClientID() string { return c.settings.ClientID }

// SetClientID sets the OAuth client ID
func (c *Config) SetClientID(id string) { c.settings.ClientID = id }

// ClientSecret returns the OAuth client secret
func (c *Config) ClientSecret() string { return c.settings.ClientSecret }

// SetClientSecret sets the OAuth client secret
func (c *Config) SetClientSecret(secret string) { c.settings.ClientSecret = secret }

// RedirectURI returns the OAuth redirect URI. Egnyte requires HTTPS
// redirect URIs, so the default points at localhost with TLS.
func (c *Config) RedirectURI() string {
	if c.settings.RedirectURI == "" {
		return DefaultRedirectURI
	}
	return c.settings.RedirectURI
}

// SetRedirectURI sets the OAuth redirect URI
func (c *Config) SetRedirectURI(uri string) { c.settings.RedirectURI = uri }

// RateLimitQPS returns the API request rate in calls per second
func (c *Config) RateLimitQPS() float64 {
	if c.settings.RateLimitQPS <= 0 {
		return DefaultRateLimitQPS
	}
	return c.settings.RateLimitQPS
}

// RemoteIntervalSeconds returns the remote poll interval
func (c *Config) RemoteIntervalSeconds() int {
	if c.settings.RemoteIntervalSeconds <= 0 {
		return DefaultRemoteIntervalSeconds
	}
	return c.settings.RemoteIntervalSeconds
}

// DebounceSeconds returns the watcher debounce window
func (c *Config) DebounceSeconds() float64 {
	if c.settings.DebounceSeconds <= 0 {
		return DefaultDebounceSeconds
	}
	return c.settings.DebounceSeconds
}

// LogLevel returns the configured log level name
func (c *Config) LogLevel() string { return c.settings.LogLevel }

// LogFile returns the configured log file path, "" for none
func (c *Config) LogFile() string { return c.settings.LogFile }

// SyncConflictPolicy returns the global default conflict policy
func (c *Config) SyncConflictPolicy() ConflictPolicy {
	if !c.settings.ConflictPolicy.Valid() {
		return ConflictNewest
	}
	return c.settings.ConflictPolicy
}

// SetSyncConflictPolicy sets the global default conflict policy
func (c *Config) SetSyncConflictPolicy(p ConflictPolicy) { c.settings.ConflictPolicy = p }

// DeleteLocalOnRemoteMissing returns the global default for local
// deletion propagation
func (c *Config) DeleteLocalOnRemoteMissing() bool { return c.settings.DeleteLocalOnRemoteMissing }

// DeleteRemoteOnLocalMissing returns the global default for remote
// deletion propagation
func (c *Config) DeleteRemoteOnLocalMissing() bool { return c.settings.DeleteRemoteOnLocalMissing }

// SyncEntries returns the configured sync roots in stable order
func (c *Config) SyncEntries() []SyncEntry {
	entries := make([]SyncEntry, 0, len(c.settings.SyncPaths))
	for local, entry := range c.settings.SyncPaths {
		entries = append(entries, SyncEntry{
			LocalRoot:  local,
			RemoteRoot: entry.Remote,
			Policy:     entry.Policy,
		})
	}
	sortEntries(entries)
	return entries
}

// AddSyncPath registers a local/remote root pairing
func (c *Config) AddSyncPath(localRoot, remoteRoot string, policy SyncPolicy) {
	if c.settings.SyncPaths == nil {
		c.settings.SyncPaths = make(map[string]syncEntryJSON)
	}
	c.settings.SyncPaths[localRoot] = syncEntryJSON{Remote: remoteRoot, Policy: policy}
}

// RemoveSyncPath removes a sync root by local path; reports whether it existed
func (c *Config) RemoveSyncPath(localRoot string) bool {
	if _, ok := c.settings.SyncPaths[localRoot]; !ok {
		return false
	}
	delete(c.settings.SyncPaths, localRoot)
	return true
}

// ResolvePolicy fills unset policy fields from the global defaults
func (c *Config) ResolvePolicy(p SyncPolicy) EffectivePolicy {
	eff := EffectivePolicy{
		ConflictPolicy:             p.ConflictPolicy,
		DeleteLocalOnRemoteMissing: c.DeleteLocalOnRemoteMissing(),
		DeleteRemoteOnLocalMissing: c.DeleteRemoteOnLocalMissing(),
	}
	if !eff.ConflictPolicy.Valid() {
		eff.ConflictPolicy = c.SyncConflictPolicy()
	}
	if p.DeleteLocalOnRemoteMissing != nil {
		eff.DeleteLocalOnRemoteMissing = *p.DeleteLocalOnRemoteMissing
	}
	if p.DeleteRemoteOnLocalMissing != nil {
		eff.DeleteRemoteOnLocalMissing = *p.DeleteRemoteOnLocalMissing
	}
	return eff
}

// Get returns an arbitrary setting by its JSON key, for `config get`
func (c *Config) Get(key string) (string, bool) {
	m := c.asMap()
	v, ok := m[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
}

// Set assigns an arbitrary setting by its JSON key, for `config set`
func (c *Config) Set(key, value string) error {
	switch key {
	case "domain":
		c.settings.Domain = value
	case "clientId":
		c.settings.ClientID = value
	case "clientSecret":
		c.settings.ClientSecret = value
	case "redirectUri":
		c.settings.RedirectURI = value
	case "conflictPolicy":
		p := ConflictPolicy(value)
		if !p.Valid() {
			return fmt.Errorf("invalid conflict policy %q (newest, local, remote)", value)
		}
		c.settings.ConflictPolicy = p
	case "deleteLocalOnRemoteMissing":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		c.settings.DeleteLocalOnRemoteMissing = b
	case "deleteRemoteOnLocalMissing":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		c.settings.DeleteRemoteOnLocalMissing = b
	case "rateLimitQps":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid rate limit %q", value)
		}
		c.settings.RateLimitQPS = f
	case "remoteIntervalSeconds":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid interval %q", value)
		}
		c.settings.RemoteIntervalSeconds = n
	case "debounceSeconds":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid debounce %q", value)
		}
		c.settings.DebounceSeconds = f
	case "logLevel":
		c.settings.LogLevel = value
	case "logFile":
		c.settings.LogFile = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

// Keys lists the settable config keys
func Keys() []string {
	return []string{
		"domain", "clientId", "clientSecret", "redirectUri",
		"conflictPolicy", "deleteLocalOnRemoteMissing", "deleteRemoteOnLocalMissing",
		"rateLimitQps", "remoteIntervalSeconds", "debounceSeconds",
		"logLevel", "logFile",
	}
}

func (c *Config) asMap() map[string]interface{} {
	data, err := json.Marshal(c.settings)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func sortEntries(entries []SyncEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LocalRoot < entries[j].LocalRoot
	})
}
