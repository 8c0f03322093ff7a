// Package docs holds the OpenAPI document served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "dsfront maintainers",
            "url": "https://github.com/dspace-go/dsfront"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/assets/config.json": {
            "get": {
                "description": "The configuration the browser bundle extends its environment with.",
                "produces": ["application/json"],
                "tags": ["config"],
                "summary": "Runtime configuration",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/change-submitter": {
            "get": {
                "description": "Renders the workspace item behind a share link with its current submitter.",
                "produces": ["text/html"],
                "tags": ["pages"],
                "summary": "Change submitter page",
                "parameters": [
                    {"type": "string", "description": "Share token", "name": "share_token", "in": "query", "required": true},
                    {"type": "string", "description": "Workspace item id", "name": "workspaceitemid", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "HTML page", "schema": {"type": "string"}},
                    "404": {"description": "HTML page without a submission", "schema": {"type": "string"}}
                }
            },
            "post": {
                "description": "Makes the current user the submitter of the workspace item behind a share link.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["pages"],
                "summary": "Change submitter",
                "parameters": [
                    {"description": "Share link, when not given as query parameters", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/server.ChangeSubmitterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.ChangeSubmitterResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/server.ChangeSubmitterResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ChangeSubmitterResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/server.ChangeSubmitterResponse"}}
                }
            }
        },
        "/entities/journalvolume/{id}": {
            "get": {
                "description": "Renders the metadata fields of a journal volume entity.",
                "produces": ["text/html"],
                "tags": ["pages"],
                "summary": "Journal volume page",
                "parameters": [
                    {"type": "string", "description": "Item uuid", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "HTML page", "schema": {"type": "string"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/jobs/change-submitter": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Start a change submitter job",
                "parameters": [
                    {"description": "Share link", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/server.ChangeSubmitterRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/app.Job"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["requests"],
                "summary": "Request entry",
                "parameters": [
                    {"type": "string", "description": "Request uuid", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/server.RequestResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/server.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "app.Job": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string", "example": "change-submitter"},
                "share_token": {"type": "string"},
                "workspace_item_id": {"type": "string"},
                "status": {"type": "string", "enum": ["pending", "running", "done", "failed", "canceled"]},
                "error": {"type": "string"},
                "started_at": {"type": "string"},
                "ended_at": {"type": "string"}
            }
        },
        "server.ChangeSubmitterRequest": {
            "type": "object",
            "properties": {
                "share_token": {"type": "string", "example": "share-4f1c9b"},
                "workspaceitemid": {"type": "string", "example": "42"},
                "lang": {"type": "string", "example": "en"}
            }
        },
        "server.ChangeSubmitterResponse": {
            "type": "object",
            "properties": {
                "page": {"type": "object"},
                "notifications": {"type": "array", "items": {"type": "object"}},
                "error": {"type": "string", "example": "The submitter could not be changed."}
            }
        },
        "server.RequestResponse": {
            "type": "object",
            "properties": {
                "uuid": {"type": "string", "example": "client/3b0c1a52-8f2e-4c1e-9d7b-2a6f0e4c9b11"},
                "state": {"type": "string", "example": "Success"},
                "request": {"type": "object"},
                "response": {"type": "object"},
                "lastUpdated": {"type": "string"},
                "msToLive": {"type": "integer"},
                "cache": {
                    "type": "object",
                    "properties": {
                        "href": {"type": "string"},
                        "statusCode": {"type": "integer"},
                        "timeCompleted": {"type": "string"},
                        "msToLive": {"type": "integer"},
                        "revision": {"type": "integer"},
                        "charsAdded": {"type": "integer"},
                        "charsRemoved": {"type": "integer"}
                    }
                }
            }
        },
        "server.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "not found"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "DSpace Front API",
	Description:      "Server-rendered pages and job API for the DSpace change submitter flow.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
