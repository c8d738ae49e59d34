package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/toolscout/internal/research"
)

// ChangeHandler is called after a reload produced a valid configuration.
type ChangeHandler func(old, updated *Config)

// Manager holds the live configuration and hot-reloads it when the file changes.
// Invalid edits are logged and ignored; the previous configuration stays active.
type Manager struct {
	v        *viper.Viper
	path     string
	logger   *zap.Logger
	mu       sync.RWMutex
	current  *Config
	handlers []ChangeHandler
}

// NewManager loads the configuration at path.
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Manager{v: v, path: path, logger: logger, current: cfg}, nil
}

// Current returns the active configuration. Callers must not mutate it.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Research returns the active research settings.
func (m *Manager) Research() research.Settings {
	return m.Current().Research.Settings
}

// RegisterHandler adds a callback for configuration changes.
func (m *Manager) RegisterHandler(h ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Watch starts watching the config file. It is a no-op without a file.
func (m *Manager) Watch() {
	if m.v.ConfigFileUsed() == "" {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		m.reload(e.Name)
	})
	m.v.WatchConfig()
	m.logger.Info("Watching configuration", zap.String("path", m.v.ConfigFileUsed()))
}

func (m *Manager) reload(file string) {
	cfg, err := decode(m.v)
	if err != nil {
		m.logger.Error("Ignoring invalid configuration change", zap.String("file", file), zap.Error(err))
		return
	}

	m.mu.Lock()
	old := m.current
	m.current = cfg
	handlers := append([]ChangeHandler(nil), m.handlers...)
	m.mu.Unlock()

	m.logger.Info("Configuration reloaded",
		zap.String("file", file),
		zap.Int("max_tools", cfg.Research.MaxTools),
		zap.Int("concurrency", cfg.Research.Concurrency),
	)
	for _, h := range handlers {
		h(old, cfg)
	}
}
