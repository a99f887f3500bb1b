package plugins

import (
	"context"
	"maps"

	"golang.org/x/sync/errgroup"

	"ailib/internal/config"
	"ailib/internal/model"
	"ailib/pkg/types"
)

// Executor runs a request through the whole pipeline and returns the full
// response text.
type Executor interface {
	Collect(ctx context.Context, modelID string, params map[string]any) (string, error)
}

var multiModelKey = annotationKey(config.PluginMultiModelInference, "results")

// MultiModelResults returns the fan-out results attached to req, in the
// order the model ids were requested.
func MultiModelResults(req *types.Request) []types.ModelResult {
	v, _ := req.Annotation(multiModelKey)
	r, _ := v.([]types.ModelResult)
	return r
}

// MultiModelInference runs params["multiModel"]["modelIds"] in parallel and
// attaches their results to the request. The primary model still runs.
type MultiModelInference struct {
	Exec Executor
	// Concurrency bounds parallel sub-requests; zero means unbounded.
	Concurrency int
}

func (p *MultiModelInference) Name() string { return config.PluginMultiModelInference }

// fanOutIDs extracts the requested model ids.
func fanOutIDs(params map[string]any) []string {
	mm, ok := params["multiModel"].(map[string]any)
	if !ok {
		return nil
	}
	return model.ParamStrings(mm, "modelIds")
}

// TransformRequest fans out once per request; re-drives reuse the results.
func (p *MultiModelInference) TransformRequest(ctx context.Context, _ model.Model, req *types.Request) (*types.Request, error) {
	ids := fanOutIDs(req.Params)
	if len(ids) == 0 || p.Exec == nil {
		return req, nil
	}
	if _, done := req.Annotation(multiModelKey); done {
		return req, nil
	}
	sub := maps.Clone(req.Params)
	delete(sub, "multiModel")

	results := make([]types.ModelResult, len(ids))
	var g errgroup.Group
	if p.Concurrency > 0 {
		g.SetLimit(p.Concurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			out, err := p.Exec.Collect(ctx, id, maps.Clone(sub))
			results[i] = types.ModelResult{ModelID: id, Response: out}
			if err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	req.Annotate(multiModelKey, results)
	return req, nil
}
