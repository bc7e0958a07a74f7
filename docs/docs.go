// Package docs registers the OpenAPI description of the guard API with swag.
// Regenerate with `swag init -g cmd/server/main.go -o docs` after
// changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/messages/check": {
            "post": {
                "description": "Runs the account-wide check and then the per-user check. Rejections are 200 responses with allowed=false.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Guard"],
                "summary": "Check an inbound message",
                "operationId": "checkMessage",
                "parameters": [
                    {"description": "Message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CheckRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Decision"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/users/{id}/sent": {
            "post": {
                "description": "Stamps the user's last send and counts it against the account window. A repeated Idempotency-Key is acknowledged as a duplicate without recounting.",
                "produces": ["application/json"],
                "tags": ["Guard"],
                "summary": "Record an outbound send",
                "operationId": "recordSent",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Client key for retries", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SentResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/flood": {
            "post": {
                "description": "Logs a back-pressure signal and lowers the adaptive account ceilings.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Guard"],
                "summary": "Record a flood wait",
                "operationId": "recordFlood",
                "parameters": [
                    {"description": "Flood signal", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.FloodRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.FloodEvent"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Read a conversation context",
                "operationId": "getConversation",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ContextView"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/advance": {
            "post": {
                "description": "Classifies the message, moves the sales stage forward and returns the generation policy for the reply.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Advance the sales flow",
                "operationId": "advanceConversation",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"description": "Inbound message", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AdvanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.AdvanceResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/slots": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Merge extracted slots",
                "operationId": "patchSlots",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"description": "Slots", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PatchSlotsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SlotsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/extensions": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Merge caller-defined context keys",
                "description": "Merges keys into the stored extensions one by one; null removes a key. Stage, intent and slots are untouched. A missing context is created with defaults.",
                "operationId": "patchExtensions",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true},
                    {"description": "Keys to merge", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PatchExtensionsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ExtensionsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/status": {
            "get": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Limiter status",
                "operationId": "adminStatus",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Status"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/blocks": {
            "get": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "List blocked users",
                "operationId": "adminListBlocked",
                "parameters": [
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.BlockedUsersResponse"}}
                }
            }
        },
        "/admin/users/reset": {
            "post": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Reset every user",
                "operationId": "adminResetAllUsers",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ResetResponse"}}
                }
            }
        },
        "/admin/users/{id}": {
            "delete": {
                "security": [{"AdminToken": []}],
                "description": "Deletes limiter state, conversation context and send receipts of a user.",
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Erase a user's data",
                "operationId": "adminEraseUser",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.Erasure"}}
                }
            }
        },
        "/admin/users/{id}/reset": {
            "post": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Reset one user",
                "operationId": "adminResetUser",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ResetResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/admin/global/reset": {
            "post": {
                "security": [{"AdminToken": []}],
                "tags": ["Admin"],
                "summary": "Reset the account limiter",
                "operationId": "adminResetGlobal",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/admin/flood/stats": {
            "get": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Flood statistics",
                "operationId": "adminFloodStats",
                "parameters": [
                    {"minimum": 1, "type": "integer", "default": 24, "description": "Look-back window in hours", "name": "hours", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.FloodStatsResponse"}}
                }
            }
        },
        "/admin/flood": {
            "delete": {
                "security": [{"AdminToken": []}],
                "produces": ["application/json"],
                "tags": ["Admin"],
                "summary": "Prune the flood log",
                "operationId": "adminPruneFloods",
                "parameters": [
                    {"type": "string", "description": "Cutoff", "name": "before", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PruneResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "bad_request"},
                "message": {"type": "string"}
            }
        },
        "handlers.CheckRequest": {
            "type": "object",
            "required": ["user_id"],
            "properties": {
                "user_id": {"type": "string", "maxLength": 64, "example": "tg-1001"},
                "text": {"type": "string"},
                "chat_kind": {"type": "string", "example": "private"}
            }
        },
        "services.Decision": {
            "type": "object",
            "properties": {
                "allowed": {"type": "boolean"},
                "reason": {"type": "string"},
                "code": {"type": "string", "example": "minute_limit"},
                "scope": {"type": "string", "example": "user"}
            }
        },
        "handlers.SentResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "duplicate": {"type": "boolean"}
            }
        },
        "handlers.FloodRequest": {
            "type": "object",
            "required": ["wait_seconds"],
            "properties": {
                "wait_seconds": {"type": "integer", "example": 70},
                "chat_kind": {"type": "string", "example": "group"}
            }
        },
        "domain.FloodEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "wait_seconds": {"type": "integer"},
                "chat_kind": {"type": "string"},
                "occurred_at": {"type": "string"}
            }
        },
        "handlers.AdvanceRequest": {
            "type": "object",
            "required": ["message"],
            "properties": {
                "message": {"type": "string"}
            }
        },
        "handlers.ContextView": {
            "type": "object",
            "properties": {
                "stage": {"type": "string", "example": "needs_discovery"},
                "intent": {"type": "string"},
                "slots": {"type": "object"},
                "objections": {"type": "array", "items": {"type": "object"}},
                "presentation_turns": {"type": "integer"},
                "extensions": {"type": "object"}
            }
        },
        "handlers.AdvanceResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "previous_stage": {"type": "string"},
                "stage": {"type": "string"},
                "intent": {"type": "string"},
                "changed": {"type": "boolean"},
                "greeting_reset": {"type": "boolean"},
                "missing_slot": {"type": "string"},
                "missing_slot_prompt": {"type": "string"},
                "objection": {"type": "string"},
                "fit_score": {"type": "integer"},
                "offered_call": {"type": "boolean"},
                "merged": {"type": "array", "items": {"type": "string"}},
                "policy": {"type": "object"},
                "context": {"$ref": "#/definitions/handlers.ContextView"}
            }
        },
        "handlers.PatchSlotsRequest": {
            "type": "object",
            "required": ["slots"],
            "properties": {
                "slots": {"type": "object"}
            }
        },
        "handlers.SlotsResponse": {
            "type": "object",
            "properties": {
                "context": {"$ref": "#/definitions/handlers.ContextView"},
                "merged": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.PatchExtensionsRequest": {
            "type": "object",
            "required": ["extensions"],
            "properties": {
                "extensions": {"type": "object"}
            }
        },
        "handlers.ExtensionsResponse": {
            "type": "object",
            "properties": {
                "context": {"$ref": "#/definitions/handlers.ContextView"},
                "keys": {"type": "array", "items": {"type": "string"}}
            }
        },
        "services.Status": {
            "type": "object",
            "properties": {
                "global": {"type": "object"},
                "floods_24h": {"$ref": "#/definitions/repo.FloodStats"},
                "blocked_users": {"type": "integer"},
                "generated_at": {"type": "string"}
            }
        },
        "repo.FloodStats": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "avg_wait_seconds": {"type": "number"},
                "max_wait_seconds": {"type": "integer"}
            }
        },
        "services.Erasure": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "limits": {"type": "integer"},
                "contexts": {"type": "integer"},
                "receipts": {"type": "integer"}
            }
        },
        "handlers.BlockedUsersResponse": {
            "type": "object",
            "properties": {
                "users": {"type": "array", "items": {"type": "object"}},
                "pagination": {"type": "object"}
            }
        },
        "handlers.ResetResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "reset": {"type": "integer"}
            }
        },
        "handlers.FloodStatsResponse": {
            "type": "object",
            "properties": {
                "hours": {"type": "integer"},
                "since": {"type": "string"},
                "stats": {"$ref": "#/definitions/repo.FloodStats"}
            }
        },
        "handlers.PruneResponse": {
            "type": "object",
            "properties": {
                "before": {"type": "string"},
                "deleted": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "AdminToken": {
            "description": "Bearer <ADMIN_TOKEN>",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Sales Guard API",
	Description:      "Rate limiting, flood control and sales-stage tracking for a conversational sales assistant.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
