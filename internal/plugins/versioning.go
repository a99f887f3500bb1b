package plugins

import (
	"context"
	"sync"

	"ailib/internal/config"
	"ailib/internal/errs"
	"ailib/internal/model"
	"ailib/internal/registry"
	"ailib/pkg/types"
)

// ModelLookup finds models by attributes. *registry.Registry satisfies it.
type ModelLookup interface {
	Search(c registry.Criteria) []model.Model
}

// ModelVersioning routes a request to a specific version of the requested
// model. The version comes from params["modelVersion"] or from a pin set
// for the model name.
type ModelVersioning struct {
	lookup ModelLookup

	mu   sync.RWMutex
	pins map[string]string
}

// NewModelVersioning resolves versions through lookup.
func NewModelVersioning(lookup ModelLookup) *ModelVersioning {
	return &ModelVersioning{lookup: lookup, pins: make(map[string]string)}
}

func (p *ModelVersioning) Name() string { return config.PluginModelVersioning }

// Pin routes every request for a model called name to version. An empty
// version removes the pin.
func (p *ModelVersioning) Pin(name, version string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if version == "" {
		delete(p.pins, name)
		return
	}
	p.pins[name] = version
}

// Pinned returns the version pinned for name.
func (p *ModelVersioning) Pinned(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.pins[name]
	return v, ok
}

// TransformRequest routes req to the pinned or requested version. A request
// already routed elsewhere by an earlier attempt or a fallback is left alone.
func (p *ModelVersioning) TransformRequest(_ context.Context, m model.Model, req *types.Request) (*types.Request, error) {
	if req.Target() != req.ModelID {
		return req, nil
	}
	info := m.Info()
	version := model.ParamString(req.Params, "modelVersion")
	if version == "" {
		version, _ = p.Pinned(info.Name)
	}
	if version == "" || version == info.Version {
		return req, nil
	}
	for _, cand := range p.lookup.Search(registry.Criteria{Name: info.Name, Version: version}) {
		if cand.Info().Name == info.Name {
			req.Retarget(cand.ID())
			return req, nil
		}
	}
	return nil, errs.ModelNotFound(info.Name + "@" + version)
}
