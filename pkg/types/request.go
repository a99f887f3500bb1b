package types

import (
	"maps"
	"sync"
	"time"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return 0
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// CanAdvance reports whether moving from s to next is a forward transition.
func (s Status) CanAdvance(next Status) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Request is one invocation of a model flowing through the plugin chain.
// ID, ModelID and Timestamp never change; plugins that route the request
// elsewhere use Retarget. Plugins attach private state with Annotate under
// their own name.
type Request struct {
	ID          string
	ModelID     string
	Params      map[string]any
	Timestamp   time.Time
	IsStreaming bool

	mu          sync.Mutex
	status      Status
	attempt     int
	target      string
	annotations map[string]any
	replay      *Replay
}

// NewRequest builds a pending request. Params are shallow-copied so callers
// may reuse their map.
func NewRequest(id, modelID string, params map[string]any, streaming bool) *Request {
	p := make(map[string]any, len(params))
	maps.Copy(p, params)
	return &Request{
		ID:          id,
		ModelID:     modelID,
		Params:      p,
		Timestamp:   time.Now(),
		IsStreaming: streaming,
		status:      StatusPending,
		annotations: make(map[string]any),
	}
}

// Status returns the current lifecycle state.
func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AdvanceStatus moves the request forward. Backward or post-terminal moves
// are ignored and reported as false.
func (r *Request) AdvanceStatus(next Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.status.CanAdvance(next) {
		return false
	}
	r.status = next
	return true
}

// Target is the id of the model that will actually be invoked: ModelID
// unless a plugin retargeted the request.
func (r *Request) Target() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.target != "" {
		return r.target
	}
	return r.ModelID
}

// Retarget routes the request to another model id. An empty id restores
// ModelID.
func (r *Request) Retarget(modelID string) {
	r.mu.Lock()
	r.target = modelID
	r.mu.Unlock()
}

// Attempt is the zero-based index of the current pipeline run.
func (r *Request) Attempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

// NextAttempt bumps the attempt counter for a re-drive.
func (r *Request) NextAttempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt++
	return r.attempt
}

// Annotate stores plugin-private state under key.
func (r *Request) Annotate(key string, v any) {
	r.mu.Lock()
	r.annotations[key] = v
	r.mu.Unlock()
}

// Annotation returns the value stored under key.
func (r *Request) Annotation(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.annotations[key]
	return v, ok
}

// DeleteAnnotation removes key.
func (r *Request) DeleteAnnotation(key string) {
	r.mu.Lock()
	delete(r.annotations, key)
	r.mu.Unlock()
}

// SetReplay attaches a precomputed response; the executor streams it instead
// of invoking the model.
func (r *Request) SetReplay(rp Replay) {
	r.mu.Lock()
	r.replay = &rp
	r.mu.Unlock()
}

// Replay returns the attached precomputed response, if any.
func (r *Request) Replay() (Replay, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replay == nil {
		return Replay{}, false
	}
	return *r.replay, true
}

// ClearReplay drops any precomputed response.
func (r *Request) ClearReplay() {
	r.mu.Lock()
	r.replay = nil
	r.mu.Unlock()
}

// Replay is a response produced outside the model invocation step, e.g. a
// cache hit or a batched dispatch.
type Replay struct {
	Source    string
	Fragments []string
	Err       error
}

// ResponseChunk is one streamed fragment. Exactly one chunk of a request has
// IsComplete set, and it is the last. A non-nil Err terminates the stream.
type ResponseChunk struct {
	RequestID         string `json:"request_id"`
	Content           string `json:"content"`
	IsComplete        bool   `json:"is_complete"`
	AggregatedContent string `json:"aggregated_content,omitempty"`
	Err               error  `json:"-"`
}

// ModelResult is one entry of a multi-model fan-out.
type ModelResult struct {
	ModelID  string `json:"model_id"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}
