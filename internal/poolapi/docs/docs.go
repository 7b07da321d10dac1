// Package docs registers the streampool introspection API's swagger spec
// with swaggo/swag at import time. The doc template below is hand-written
// rather than swag-generated; regenerate with `swag init` once the handler
// annotations in internal/poolapi/handlers change shape.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["system"],
                "summary": "Server statistics",
                "security": [{ "ApiKeyAuth": [] }],
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/pools/managers": {
            "get": {
                "tags": ["pools"],
                "summary": "List active attempt managers",
                "security": [{ "ApiKeyAuth": [] }],
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/pools/manager": {
            "get": {
                "tags": ["pools"],
                "summary": "Get one destination's attempt manager snapshot",
                "security": [{ "ApiKeyAuth": [] }],
                "parameters": [
                    { "type": "string", "name": "host_port", "in": "query", "required": true },
                    { "type": "string", "name": "privacy", "in": "query" },
                    { "type": "string", "name": "partition", "in": "query" }
                ],
                "responses": {
                    "200": { "description": "OK" },
                    "404": { "description": "Not Found" }
                }
            }
        },
        "/pools/events": {
            "get": {
                "tags": ["pools"],
                "summary": "Query the persisted attempt event log",
                "security": [{ "ApiKeyAuth": [] }],
                "parameters": [
                    { "type": "string", "name": "manager_key", "in": "query" },
                    { "type": "integer", "name": "limit", "in": "query" }
                ],
                "responses": {
                    "200": { "description": "OK" },
                    "503": { "description": "Service Unavailable" }
                }
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {
            "type": "apiKey",
            "name": "X-API-Key",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported swagger metadata for the streampool
// introspection API.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "streampool Introspection API",
	Description:      "Read-only REST API for observing a running streampool.Pool: live attempt managers, in-flight attempts, and historical events.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
