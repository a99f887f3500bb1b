package main

// Swagger metadata for the ailibd HTTP surface. Operations are annotated on
// the handlers in internal/httpapi:
//
//	GET  /models      list or search the registry
//	GET  /status      queue, load and plugin metrics
//	POST /infer       run a request, NDJSON response
//	POST /jobs        submit an asynchronous request
//	GET  /jobs/{id}   poll a submitted request
//	GET  /events      server-sent pipeline events
//
// The docs package is generated from these comments with
// `swag init -g cmd/ailibd/docs.go -o docs`.
//
// @title           ailib API
// @version         1.0
// @description     Model request execution pipeline: registry, plugin chain, jobs and events.
// @license.name    MIT
// @BasePath        /
// @schemes         http
// @accept          json
// @produce         json
//
// @tag.name         models
// @tag.description  Registered models and search
// @tag.name         status
// @tag.description  Pipeline health and per-model metrics
// @tag.name         inference
// @tag.description  Synchronous and streamed execution
// @tag.name         jobs
// @tag.description  Queued execution
// @tag.name         events
// @tag.description  Lifecycle event stream
