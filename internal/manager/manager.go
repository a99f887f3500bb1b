package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/internal/notify"
	"ailib/internal/plugin"
	"ailib/internal/plugins"
	"ailib/internal/queue"
	"ailib/internal/registry"
	"ailib/pkg/types"
)

// Manager is the entry point of the pipeline: it resolves models, queues
// requests and drives them through the plugin chain.
type Manager struct {
	store   *config.Store
	reg     *registry.Registry
	queue   *queue.Queue
	bus     *notify.Bus
	pub     notify.Publisher
	plugins *plugin.Manager
	monitor *plugins.PerformanceMonitoring
	adm     *admission
	log     zerolog.Logger
	sleep   plugins.SleepFunc
	now     func() time.Time
	started time.Time

	ownedRedis redis.UniversalClient

	mu      sync.Mutex
	closed  bool
	workers context.CancelFunc
	wg      sync.WaitGroup
}

// NewWithConfig constructs a Manager. Invalid configuration and plugin or
// model registration failures are reported.
func NewWithConfig(mc ManagerConfig) (*Manager, error) {
	store := mc.Store
	if store == nil {
		cfg := mc.Config
		if cfg.IsZero() {
			cfg = config.Defaults()
		}
		var err error
		if store, err = config.NewStore(cfg.WithDefaults()); err != nil {
			return nil, err
		}
	}
	cfg := store.Get()

	m := &Manager{
		store:   store,
		reg:     mc.Registry,
		bus:     notify.NewBus(),
		plugins: plugin.NewManager(),
		sleep:   mc.Sleep,
		now:     mc.Now,
	}
	if m.reg == nil {
		m.reg = registry.New()
	}
	if mc.Logger != nil {
		m.log = *mc.Logger
	} else {
		m.log = zerolog.Nop()
	}
	if m.sleep == nil {
		m.sleep = plugins.Sleep
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.started = m.now()
	m.pub = m.bus
	m.queue = queue.New(queue.Options{MaxPending: cfg.MaxPendingJobs})
	m.adm = newAdmission(cfg.MaxInflightPerModel, cfg.MaxQueueDepth, cfg.AdmissionWait())

	for _, md := range mc.Models {
		if err := m.reg.Register(md); err != nil {
			return nil, err
		}
	}

	chain := mc.Plugins
	if chain == nil {
		chain = m.defaultPlugins(cfg, mc)
	}
	for _, p := range chain {
		if err := m.plugins.Use(p); err != nil {
			m.closeRedis()
			return nil, err
		}
		if pm, ok := p.(*plugins.PerformanceMonitoring); ok && m.monitor == nil {
			m.monitor = pm
		}
	}
	return m, nil
}

// Use appends a plugin to the chain. It fails once requests have started.
func (m *Manager) Use(p plugin.Plugin) error {
	if err := m.plugins.Use(p); err != nil {
		return err
	}
	if pm, ok := p.(*plugins.PerformanceMonitoring); ok && m.monitor == nil {
		m.monitor = pm
	}
	return nil
}

// Plugin returns the registered plugin called name.
func (m *Manager) Plugin(name string) (plugin.Plugin, bool) { return m.plugins.Get(name) }

// Registry exposes the model registry for registration and fallbacks.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Register adds a model to the registry.
func (m *Manager) Register(md model.Model) error { return m.reg.Register(md) }

// Config returns the current configuration snapshot.
func (m *Manager) Config() config.Config { return m.store.Get() }

// UpdateConfig applies fn to a copy of the configuration and swaps it in.
// In-flight requests keep the snapshot they started with. Plugin enablement
// is fixed at construction.
func (m *Manager) UpdateConfig(fn func(*config.Config)) (config.Config, error) {
	return m.store.Update(fn)
}

// Subscribe registers an event listener; names filters by event name.
func (m *Manager) Subscribe(buffer int, names ...string) *notify.Subscription {
	return m.bus.Subscribe(buffer, names...)
}

// AddPublisher mirrors every event to p in addition to bus subscribers.
func (m *Manager) AddPublisher(p notify.Publisher) {
	m.mu.Lock()
	m.pub = notify.Fanout{m.pub, p}
	m.mu.Unlock()
}

func (m *Manager) publish(e types.Event) {
	m.mu.Lock()
	pub := m.pub
	m.mu.Unlock()
	if e.Time.IsZero() {
		e.Time = m.now()
	}
	pub.Publish(e)
}

// ListModels returns the metadata of every registered model, sorted by id.
func (m *Manager) ListModels() []types.ModelInfo {
	ms := m.reg.List()
	out := make([]types.ModelInfo, 0, len(ms))
	for _, md := range ms {
		out = append(out, md.Info())
	}
	return out
}

// Search returns the metadata of models matching c.
func (m *Manager) Search(c registry.Criteria) []types.ModelInfo {
	ms := m.reg.Search(c)
	out := make([]types.ModelInfo, 0, len(ms))
	for _, md := range ms {
		out = append(out, md.Info())
	}
	return out
}

// Ready reports whether the manager can serve requests.
func (m *Manager) Ready() bool { return !m.isClosed() && m.reg.Len() > 0 }

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close stops workers, closes the event bus and releases owned clients.
// Calling Close more than once is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	stop := m.workers
	m.mu.Unlock()

	if stop != nil {
		stop()
	}
	m.wg.Wait()
	m.bus.Close()
	return m.closeRedis()
}

func (m *Manager) closeRedis() error {
	if m.ownedRedis == nil {
		return nil
	}
	err := m.ownedRedis.Close()
	m.ownedRedis = nil
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
