// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/api/main.go
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
        "/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Create an account",
                "parameters": [
                    {"description": "Credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.registerRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.userResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Exchange credentials for a bearer token",
                "parameters": [
                    {"description": "Credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.loginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.tokenResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/replica": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the profile document and every day log of the caller.",
                "produces": ["application/json"],
                "tags": ["replica"],
                "summary": "Read the remote replica",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.RemoteSnapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/replica/batch": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Writes the profile and the changed day logs atomically. Entitlement fields are ignored.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["replica"],
                "summary": "Commit a replica batch",
                "parameters": [
                    {"description": "Batch", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.ReplicaBatch"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.commitResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.errorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        },
        "/entitlements/{userID}": {
            "put": {
                "description": "Called by the purchase verification service. The first premium grant adds one shield.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["entitlements"],
                "summary": "Set a verified entitlement",
                "parameters": [
                    {"type": "string", "description": "User ID", "name": "userID", "in": "path", "required": true},
                    {"type": "string", "description": "Shared verification key", "name": "X-Verification-Key", "in": "header", "required": true},
                    {"description": "Entitlement", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.entitlementRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.entitlementResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.errorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.DailyLog": {
            "type": "object",
            "properties": {
                "date": {"type": "string", "example": "2026-10-18"},
                "completed_indices": {"type": "array", "items": {"type": "integer"}},
                "completed_habit_names": {"type": "array", "items": {"type": "string"}},
                "energy": {"type": "string", "enum": ["HIGH", "MEDIUM", "LOW"]},
                "note": {"type": "string"},
                "intention": {"type": "string"},
                "daily_score": {"type": "number"},
                "updated_at": {"type": "integer"}
            }
        },
        "domain.Entitlement": {
            "type": "object",
            "properties": {
                "is_premium": {"type": "boolean"},
                "expiry": {"type": "string", "format": "date-time"}
            }
        },
        "domain.Profile": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "identity": {"type": "object"},
                "habits": {"type": "object"},
                "resilience": {"type": "object"},
                "review": {"type": "object"},
                "evolution": {"type": "object"},
                "settings": {"type": "object"},
                "entitlement": {"$ref": "#/definitions/domain.Entitlement"},
                "has_ever_been_premium": {"type": "boolean"},
                "last_rollover_date": {"type": "string"},
                "last_updated": {"type": "integer"}
            }
        },
        "domain.RemoteSnapshot": {
            "type": "object",
            "properties": {
                "profile": {"$ref": "#/definitions/domain.Profile"},
                "logs": {"type": "array", "items": {"$ref": "#/definitions/domain.DailyLog"}}
            }
        },
        "domain.ReplicaBatch": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "profile": {"$ref": "#/definitions/domain.Profile"},
                "logs": {"type": "array", "items": {"$ref": "#/definitions/domain.DailyLog"}}
            }
        },
        "http.commitResponse": {
            "type": "object",
            "properties": {
                "batch_id": {"type": "string"},
                "last_updated": {"type": "integer"},
                "logs": {"type": "integer"}
            }
        },
        "http.entitlementRequest": {
            "type": "object",
            "required": ["is_premium"],
            "properties": {
                "is_premium": {"type": "boolean"},
                "expiry": {"type": "string", "format": "date-time"}
            }
        },
        "http.entitlementResponse": {
            "type": "object",
            "properties": {
                "user_id": {"type": "string"},
                "entitlement": {"$ref": "#/definitions/domain.Entitlement"},
                "has_ever_been_premium": {"type": "boolean"},
                "shields": {"type": "integer"}
            }
        },
        "http.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        },
        "http.loginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "http.registerRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 8}
            }
        },
        "http.tokenResponse": {
            "type": "object",
            "properties": {
                "token": {"type": "string"},
                "user_id": {"type": "string"}
            }
        },
        "http.userResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
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
	Title:            "Kanso Resilience Engine API",
	Description:      "Remote replica server for the Kanso habit resilience engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
