// Package docs holds the OpenAPI description served at /api/swagger.
// Regenerate with `swag init -g cmd/server/main.go` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/v1/conversations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Conversations"],
                "summary": "List conversations",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Conversation"}}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Conversations"],
                "summary": "Start a conversation",
                "consumes": ["application/json"],
                "produces": ["application/json", "text/event-stream"],
                "parameters": [
                    {"type": "boolean", "name": "stream", "in": "query"},
                    {"type": "string", "name": "format", "in": "query"},
                    {"name": "message", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.MessageRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/model.TurnResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/v1/conversations/ws": {
            "get": {
                "tags": ["Conversations"],
                "summary": "Stream a turn over WebSocket",
                "parameters": [{"type": "string", "name": "token", "in": "query", "required": true}],
                "responses": {
                    "101": {"description": "Switching Protocols"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/v1/conversations/{conversationID}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Conversations"],
                "summary": "Get a conversation",
                "parameters": [{"type": "string", "name": "conversationID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.FullConversation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Conversations"],
                "summary": "Delete a conversation",
                "parameters": [{"type": "string", "name": "conversationID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.StatusResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/v1/conversations/{conversationID}/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Conversations"],
                "summary": "List messages",
                "parameters": [{"type": "string", "name": "conversationID", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/model.Message"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Conversations"],
                "summary": "Send a message",
                "consumes": ["application/json"],
                "produces": ["application/json", "text/event-stream"],
                "parameters": [
                    {"type": "string", "name": "conversationID", "in": "path", "required": true},
                    {"type": "boolean", "name": "stream", "in": "query"},
                    {"type": "string", "name": "format", "in": "query"},
                    {"name": "message", "in": "body", "required": true, "schema": {"$ref": "#/definitions/api.MessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.TurnResult"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/v1/models": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Models"],
                "summary": "List upstream models",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/llm.ModelInfo"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/v1/settings": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["Settings"],
                "summary": "Get tutor settings",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.Settings"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["Settings"],
                "summary": "Update tutor settings",
                "parameters": [{"name": "settings", "in": "body", "required": true, "schema": {"$ref": "#/definitions/service.Settings"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.Settings"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}}},
        "api.StatusResponse": {"type": "object", "properties": {"status": {"type": "string"}}},
        "api.MessageRequest": {"type": "object", "properties": {"text": {"type": "string", "example": "What is photosynthesis?"}, "prompt": {"type": "string"}}},
        "llm.ModelInfo": {"type": "object", "properties": {"id": {"type": "string"}, "object": {"type": "string"}, "owned_by": {"type": "string"}, "type": {"type": "string"}}},
        "service.Settings": {"type": "object", "properties": {"persona_instructions": {"type": "string"}, "model": {"type": "string"}}},
        "model.Message": {"type": "object", "properties": {"id": {"type": "string"}, "role": {"type": "string"}, "text": {"type": "string"}, "created_at": {"type": "string"}}},
        "model.Conversation": {"type": "object", "properties": {"id": {"type": "string"}, "learner_id": {"type": "string"}, "title": {"type": "string"}, "prompt": {"type": "string"}, "created_at": {"type": "string"}, "updated_at": {"type": "string"}, "last_message": {"type": "string"}}},
        "model.FullConversation": {"type": "object", "allOf": [{"$ref": "#/definitions/model.Conversation"}], "properties": {"messages": {"type": "array", "items": {"$ref": "#/definitions/model.Message"}}}},
        "model.TurnResult": {"type": "object", "properties": {"conversation": {"$ref": "#/definitions/model.Conversation"}, "user_message": {"$ref": "#/definitions/model.Message"}, "ai_message": {"$ref": "#/definitions/model.Message"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Virtual Teacher API",
	Description:      "Conversation and tutoring API for learners, teachers, parents and admins.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
