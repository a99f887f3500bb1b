package types

import "time"

// InferRequest represents an inference request payload.
type InferRequest struct {
	// Model identifier. If empty, the server default is used.
	// example: echo
	Model string `json:"model,omitempty" example:"echo"`
	// Prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// If true, stream results as NDJSON chunks as they are produced.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Optional stop sequences.
	// example: ["\n\n","END"]
	Stop []string `json:"stop,omitempty"`
	// Random seed for reproducibility; 0 or omitted lets the backend choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
	// Repeat penalty applied by some backends.
	// example: 1.1
	RepeatPenalty float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Extra backend or plugin parameters, e.g. {"multiModel":{"modelIds":["a","b"]}}.
	Params map[string]any `json:"params,omitempty"`
}

// ToParams flattens the request into the opaque parameter map handed to models.
func (r InferRequest) ToParams() map[string]any {
	p := make(map[string]any, len(r.Params)+8)
	for k, v := range r.Params {
		p[k] = v
	}
	p["prompt"] = r.Prompt
	if r.MaxTokens > 0 {
		p["max_tokens"] = r.MaxTokens
	}
	if r.Temperature > 0 {
		p["temperature"] = r.Temperature
	}
	if r.TopP > 0 {
		p["top_p"] = r.TopP
	}
	if r.TopK > 0 {
		p["top_k"] = r.TopK
	}
	if len(r.Stop) > 0 {
		p["stop"] = r.Stop
	}
	if r.Seed != 0 {
		p["seed"] = r.Seed
	}
	if r.RepeatPenalty > 0 {
		p["repeat_penalty"] = r.RepeatPenalty
	}
	return p
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of registered models.
	Models []ModelInfo `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// QueueCounts summarizes the request queue by status.
type QueueCounts struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// ModelLoad reports admission usage of one model.
type ModelLoad struct {
	// Requests waiting for an execution slot.
	Waiting int `json:"waiting"`
	// Requests currently executing.
	Inflight int `json:"inflight"`
}

// ModelMetrics is the per-model performance summary.
type ModelMetrics struct {
	// Number of finished executions.
	// example: 12
	CallCount int64 `json:"call_count" example:"12"`
	// Executions that ended with an error.
	// example: 1
	Failures int64 `json:"failures" example:"1"`
	// Sum of execution times.
	TotalTime time.Duration `json:"total_time_ns"`
	// Mean execution time in milliseconds.
	// example: 180.5
	AvgTimeMS float64 `json:"avg_time_ms" example:"180.5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state (ready when at least one model is registered).
	// example: ready
	State string `json:"state" example:"ready"`
	// Number of registered models.
	// example: 3
	Models int `json:"models" example:"3"`
	// Plugin chain in registration order.
	Plugins []string `json:"plugins"`
	// Request queue counters.
	Queue QueueCounts `json:"queue"`
	// Per-model admission usage (when a concurrency limit is set).
	Load map[string]ModelLoad `json:"load,omitempty"`
	// Per-model performance metrics (when monitoring is enabled).
	Metrics map[string]ModelMetrics `json:"metrics,omitempty"`
	// Events dropped because a subscriber was too slow.
	// example: 0
	EventsDropped uint64 `json:"events_dropped" example:"0"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// JobStatus describes an asynchronous request submitted via POST /jobs.
type JobStatus struct {
	// Request id.
	// example: 6f1c7b1e-1f7c-4b8e-9d55-4c3b7d1f0a42
	ID string `json:"id"`
	// Target model.
	// example: echo
	ModelID string `json:"model_id" example:"echo"`
	// pending, processing, completed or failed.
	// example: completed
	Status Status `json:"status" example:"completed"`
	// Full response text once completed.
	Response string `json:"response,omitempty"`
	// Error message once failed.
	Error string `json:"error,omitempty"`
	// Creation time (unix seconds).
	// example: 1700000000
	CreatedUnix int64 `json:"created_unix" example:"1700000000"`
}

// InferDone is the final NDJSON line of POST /infer.
type InferDone struct {
	Done      bool   `json:"done"`
	RequestID string `json:"request_id"`
	Model     string `json:"model"`
	// Full response text.
	Content string `json:"content"`
	// Attempts used, including retries and fallback.
	Attempts int `json:"attempts"`
	// Results of a multi-model fan-out, in request order.
	MultiModel []ModelResult `json:"multi_model,omitempty"`
}

// Event is published on the notification bus.
type Event struct {
	Name      string         `json:"name"`
	RequestID string         `json:"request_id,omitempty"`
	ModelID   string         `json:"model_id,omitempty"`
	Chunk     *ResponseChunk `json:"chunk,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Time      time.Time      `json:"time"`
}
