// Package docs registers the OpenAPI document served at /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "Scoracle"},
        "license": {"name": "MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/settlement/run": {
            "post": {
                "description": "Runs one settlement pass now and returns its summary. Returns 409 if a pass is already executing; the request is not queued.",
                "produces": ["application/json"],
                "tags": ["settlement"],
                "summary": "Force a settlement pass",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/settlement.Run"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/settlement/status": {
            "get": {
                "description": "Returns scheduler state, last run summary, next scheduled run, open entries per sport, and score feed breaker states.",
                "produces": ["application/json"],
                "tags": ["settlement"],
                "summary": "Settlement status",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/settlement/runs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["settlement"],
                "summary": "Recent settlement runs",
                "parameters": [
                    {"type": "integer", "default": 20, "description": "Max runs to return (1-200)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "object", "additionalProperties": true}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/entries/{entryID}": {
            "get": {
                "description": "Returns an entry and, once settled, its outcome. Cached until the next settlement pass.",
                "produces": ["application/json"],
                "tags": ["entries"],
                "summary": "Get entry",
                "parameters": [
                    {"type": "string", "description": "Entry ID", "name": "entryID", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/settlement.Entry"}},
                    "304": {"description": "Not Modified"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        },
        "settlement.Entry": {
            "type": "object",
            "properties": {
                "entry_id": {"type": "string"},
                "owner_id": {"type": "string"},
                "date": {"type": "string", "example": "2024-03-01"},
                "selected_team": {"type": "string"},
                "opponent_team": {"type": "string"},
                "market": {"type": "string"},
                "sport": {"type": "string"},
                "status": {"type": "string", "enum": ["open", "settled"]},
                "result": {"type": "string", "enum": ["win", "loss"]},
                "settled_at": {"type": "string"}
            }
        },
        "settlement.Run": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "trigger": {"type": "string", "enum": ["scheduled", "manual", "notify"]},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "duration_ns": {"type": "integer"},
                "scores_updated": {"type": "integer"},
                "entries_checked": {"type": "integer"},
                "unmatched": {"type": "integer"},
                "already_settled": {"type": "integer"},
                "settled": {"type": "integer"},
                "wins": {"type": "integer"},
                "losses": {"type": "integer"},
                "errors": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Scoracle Settlement API",
	Description:      "Settles open moneyline entries against finalized game results, exactly once per entry.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
