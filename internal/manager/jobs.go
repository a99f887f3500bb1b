package manager

import (
	"context"

	"github.com/google/uuid"

	"ailib/internal/errs"
	"ailib/pkg/types"
)

// Submit queues a request for asynchronous execution and returns its id.
// The model id is checked up front; a full queue yields a TooBusy error.
func (m *Manager) Submit(modelID string, params map[string]any) (string, error) {
	_, id, err := m.resolve(modelID)
	if err != nil {
		return "", err
	}
	return m.queue.Enqueue(types.NewRequest(uuid.NewString(), id, params, false))
}

// Job reports the state of a request by id, including synchronous ones
// still retained by the queue.
func (m *Manager) Job(id string) (types.JobStatus, bool) {
	req, ok := m.queue.Get(id)
	if !ok {
		return types.JobStatus{}, false
	}
	js := types.JobStatus{
		ID:          req.ID,
		ModelID:     req.ModelID,
		Status:      m.queue.Status(id),
		CreatedUnix: req.Timestamp.Unix(),
	}
	if v, ok := req.Annotation(annResponse); ok {
		js.Response, _ = v.(string)
	}
	if v, ok := req.Annotation(annError); ok {
		js.Error, _ = v.(string)
	}
	return js, true
}

// StartWorkers launches n goroutines that drain submitted jobs until ctx is
// done or the manager is closed. Only the first call has an effect.
func (m *Manager) StartWorkers(ctx context.Context, n int) {
	m.mu.Lock()
	if m.closed || m.workers != nil || n <= 0 {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.workers = cancel
	m.wg.Add(n)
	m.mu.Unlock()

	for i := 0; i < n; i++ {
		go m.work(ctx, i)
	}
}

func (m *Manager) work(ctx context.Context, n int) {
	defer m.wg.Done()
	log := m.log.With().Int("worker", n).Logger()
	log.Debug().Msg("worker started")
	for {
		req, err := m.queue.Wait(ctx)
		if err != nil {
			log.Debug().Msg("worker stopped")
			return
		}
		md, ok := m.reg.GetByID(req.ModelID)
		if !ok {
			// unregistered after Submit
			m.finish(log, req, m.now(), "", errs.ModelNotFound(req.ModelID))
			continue
		}
		_, _ = m.process(ctx, md, req, nil)
	}
}
