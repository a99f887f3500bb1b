package types

import "time"

// ModelSpec describes a model discovered on disk before it is wrapped into a
// runnable model and registered.
type ModelSpec struct {
	// Stable identifier for the model.
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Human-friendly name.
	// example: tinyllama-q4
	Name string `json:"name" example:"tinyllama-q4"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Optional family (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// Optional version string.
	// example: 1.1
	Version string `json:"version,omitempty" example:"1.1"`
}

// ModelInfo is the catalog view of a registered model.
type ModelInfo struct {
	// Unique id within the registry.
	// example: echo
	ID string `json:"id" example:"echo"`
	// Display name; several versions of a model share it.
	// example: Echo
	Name string `json:"name" example:"Echo"`
	// Version string, matched exactly by search.
	// example: 1.0.0
	Version string `json:"version,omitempty" example:"1.0.0"`
	// Name of the backing source (connection descriptor).
	// example: local
	Source string `json:"source,omitempty" example:"local"`
	// Categories the model belongs to.
	// example: ["chat"]
	Categories []string `json:"categories,omitempty"`
	// Free-form tags.
	// example: ["fast","demo"]
	Tags []string `json:"tags,omitempty"`
}

// RateLimit configures a token bucket: MaxTokens capacity, refilled with
// RefillRate tokens every RefillInterval.
type RateLimit struct {
	MaxTokens      float64
	RefillRate     float64
	RefillInterval time.Duration
}

// Valid reports whether the bucket parameters can produce tokens.
func (r RateLimit) Valid() bool {
	return r.MaxTokens >= 1 && r.RefillRate > 0 && r.RefillInterval > 0
}
