package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jackzampolin/reader/internal/home"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	settings  Settings
	callbacks []func(Settings)
}

// NewManager creates a config manager and loads initial settings. cfgFile
// overrides the default lookup in the home directory.
func NewManager(cfgFile string, h *home.Dir) (*Manager, error) {
	m := &Manager{v: viper.New()}

	if err := m.initViper(cfgFile, h); err != nil {
		return nil, err
	}

	settings, err := m.load()
	if err != nil {
		return nil, err
	}
	m.settings = settings

	return m, nil
}

// initViper sets up defaults, env binding, and the config file.
func (m *Manager) initViper(cfgFile string, h *home.Dir) error {
	defaults := Default()
	m.v.SetDefault("backend", defaults.Backend)
	m.v.SetDefault("voice", defaults.Voice)
	m.v.SetDefault("speed", defaults.Speed)
	m.v.SetDefault("sample_rate", defaults.SampleRate)
	m.v.SetDefault("format", defaults.Format)
	m.v.SetDefault("chunk_chars", defaults.ChunkChars)
	m.v.SetDefault("bitrate", defaults.Bitrate)
	m.v.SetDefault("sensitivity", defaults.Sensitivity)
	m.v.SetDefault("mode", defaults.Mode)
	m.v.SetDefault("max_workers", defaults.MaxWorkers)
	m.v.SetDefault("batch_chunks", defaults.BatchChunks)
	m.v.SetDefault("checkpoint_interval", defaults.CheckpointInterval)
	m.v.SetDefault("max_retries", defaults.MaxRetries)
	m.v.SetDefault("retry_delay", defaults.RetryDelay)
	m.v.SetDefault("continue_on_error", defaults.ContinueOnError)
	m.v.SetDefault("max_cpu_percent", defaults.MaxCPUPercent)
	m.v.SetDefault("chunk_delay", defaults.ChunkDelay)

	// Environment variables with READER_ prefix.
	m.v.SetEnvPrefix("READER")
	m.v.AutomaticEnv()

	if cfgFile != "" {
		m.v.SetConfigFile(cfgFile)
	} else {
		m.v.SetConfigName("config")
		m.v.SetConfigType("yaml")
		if h != nil {
			m.v.AddConfigPath(h.Path())
		}
		m.v.AddConfigPath(".")
	}

	// The config file is optional.
	if err := m.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into Settings.
func (m *Manager) load() (Settings, error) {
	var s Settings
	if err := m.v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// Settings returns the current settings snapshot.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

// OnChange registers a callback invoked after a successful hot reload.
func (m *Manager) OnChange(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch begins watching the config file for changes. Reload failures keep
// the previous settings.
func (m *Manager) Watch() {
	m.v.OnConfigChange(func(_ fsnotify.Event) {
		settings, err := m.load()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.settings = settings
		callbacks := make([]func(Settings), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()
		for _, fn := range callbacks {
			fn(settings)
		}
	})
	m.v.WatchConfig()
}

// WriteDefault writes the default settings as YAML to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	return nil
}
