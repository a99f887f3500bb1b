// Package manager is the facade of the execution pipeline. It wires the
// configuration store, model registry, request queue, notification bus and
// plugin chain, and exposes request execution. It is structured into small
// files by concern:
//
//   - manager.go: Manager type, constructor, getters and Close.
//   - config.go: ManagerConfig, package defaults and the default plugin chain.
//   - admission.go: per-model concurrency slots.
//   - execute.go: Execute/ExecuteRequest/Collect and the re-drive loop.
//   - invoke.go: model invocation with timeout and replay.
//   - infer.go: NDJSON streaming entry point used by the HTTP layer.
//   - jobs.go: asynchronous jobs drained from the queue by workers.
//   - status_report.go: Status reporting for /status.
//
// Callers should use public methods only; internal types may change.
package manager
