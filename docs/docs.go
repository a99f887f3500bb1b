// Package docs holds the OpenAPI description served by the Swagger UI when
// the server is built with -tags=swagger. Regenerate with
// `swag init -g cmd/ailibd/docs.go`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}",
        "license": {"name": "MIT"}
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "consumes": ["application/json"],
    "produces": ["application/json"],
    "tags": [
        {"name": "models", "description": "Registered models and search"},
        {"name": "status", "description": "Pipeline health and per-model metrics"},
        {"name": "inference", "description": "Synchronous and streamed execution"},
        {"name": "jobs", "description": "Queued execution"},
        {"name": "events", "description": "Lifecycle event stream"}
    ],
    "paths": {
        "/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["models"],
                "summary": "List or search models",
                "parameters": [
                    {"type": "string", "description": "comma-separated categories (any)", "name": "category", "in": "query"},
                    {"type": "string", "description": "comma-separated tags (any)", "name": "tag", "in": "query"},
                    {"type": "string", "description": "exact model name", "name": "name", "in": "query"},
                    {"type": "string", "description": "exact model version", "name": "version", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Pipeline status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/infer": {
            "post": {
                "description": "Streams NDJSON: {\"token\": ...} lines when stream is true, then a final done line.",
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson"],
                "tags": ["inference"],
                "summary": "Run inference",
                "parameters": [
                    {"description": "inference request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.InferDone"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/jobs": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Submit an asynchronous inference job",
                "parameters": [
                    {"description": "inference request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.InferRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/types.JobStatus"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Job status",
                "parameters": [{"type": "string", "description": "job id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.JobStatus"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/events": {
            "get": {
                "produces": ["text/event-stream"],
                "tags": ["events"],
                "summary": "Server-sent pipeline events",
                "parameters": [{"type": "string", "description": "comma-separated event names to receive", "name": "name", "in": "query"}],
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.InferRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string", "example": "echo"},
                "prompt": {"type": "string", "example": "Write a haiku about the ocean."},
                "stream": {"type": "boolean", "example": true},
                "max_tokens": {"type": "integer", "example": 128},
                "temperature": {"type": "number", "example": 0.7},
                "top_p": {"type": "number", "example": 0.9},
                "top_k": {"type": "integer", "example": 40},
                "stop": {"type": "array", "items": {"type": "string"}},
                "seed": {"type": "integer", "example": 42},
                "repeat_penalty": {"type": "number", "example": 1.1},
                "params": {"type": "object", "additionalProperties": true}
            }
        },
        "types.InferDone": {
            "type": "object",
            "properties": {
                "done": {"type": "boolean"},
                "request_id": {"type": "string"},
                "model": {"type": "string"},
                "content": {"type": "string"},
                "attempts": {"type": "integer"},
                "multi_model": {"type": "array", "items": {"$ref": "#/definitions/types.ModelResult"}}
            }
        },
        "types.ModelResult": {
            "type": "object",
            "properties": {
                "model_id": {"type": "string"},
                "response": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "types.ModelInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "version": {"type": "string"},
                "source": {"type": "string"},
                "categories": {"type": "array", "items": {"type": "string"}},
                "tags": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.ModelInfo"}}
            }
        },
        "types.JobStatus": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "model_id": {"type": "string", "example": "echo"},
                "status": {"type": "string", "example": "completed"},
                "response": {"type": "string"},
                "error": {"type": "string"},
                "created_unix": {"type": "integer", "example": 1700000000}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "models": {"type": "integer", "example": 3},
                "plugins": {"type": "array", "items": {"type": "string"}},
                "queue": {"type": "object"},
                "load": {"type": "object"},
                "metrics": {"type": "object"},
                "events_dropped": {"type": "integer", "example": 0},
                "uptime_seconds": {"type": "integer", "example": 3600},
                "server_time_unix": {"type": "integer", "example": 1700000000}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "ailib API",
	Description:      "Model request execution pipeline: registry, plugin chain, jobs and events.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
