// Package docs registers the generated OpenAPI spec for /swagger/*; its
// content is normally produced by `swag init` from annotations on the
// httpserver handlers and checked in here so the binary serves docs
// without a build-time codegen step.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{.Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/modelcache": {
            "post": {
                "description": "Serves query, insert (single pair or batched chat_info), remove, and register operations against the semantic cache, selected by the request envelope's type field.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "summary": "Submit a cache operation",
                "responses": {
                    "200": {"description": "response envelope"}
                }
            }
        },
        "/welcome": {
            "get": {
                "description": "Plain-text liveness probe.",
                "produces": ["text/plain"],
                "summary": "Welcome text",
                "responses": {
                    "200": {"description": "welcome text"}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Scalar store connectivity and latency check.",
                "produces": ["application/json"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "healthy"},
                    "503": {"description": "unhealthy or degraded"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger metadata for http-swagger's UI.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Semantic Cache API",
	Description:      "Scope/prompt based semantic response cache for LLM interactions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
