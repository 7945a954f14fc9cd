// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/paygate/main.go -o docs
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
        "/api/v1/payments": {
            "post": {
                "security": [{"Bearer": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Start a payment",
                "parameters": [{"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/dto.CreatePaymentRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "401": {"description": "Unauthorized"}, "502": {"description": "Bad Gateway"}}
            }
        },
        "/api/v1/payments/{transaction_id}": {
            "get": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Get a payment",
                "parameters": [{"type": "string", "name": "transaction_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/payments/{transaction_id}/capture": {
            "post": {
                "security": [{"Bearer": []}],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Capture an approved payment",
                "parameters": [{"type": "string", "name": "transaction_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}, "409": {"description": "Conflict"}, "502": {"description": "Bad Gateway"}}
            }
        },
        "/callbacks/{gateway}": {
            "get": {
                "tags": ["callbacks"],
                "summary": "Receive a provider redirect",
                "parameters": [{"type": "string", "name": "gateway", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "303": {"description": "See Other"}, "400": {"description": "Bad Request"}}
            },
            "post": {
                "tags": ["callbacks"],
                "summary": "Receive a provider notification",
                "parameters": [{"type": "string", "name": "gateway", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/admin/transactions/review": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["admin"],
                "summary": "List transactions flagged for review",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/admin/transactions/{transaction_id}/events": {
            "get": {
                "security": [{"Bearer": []}],
                "tags": ["admin"],
                "summary": "Get the audit trail of a transaction",
                "parameters": [{"type": "string", "name": "transaction_id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            }
        },
        "/api/v1/admin/recovery/sweep": {
            "post": {
                "security": [{"Bearer": []}],
                "tags": ["admin"],
                "summary": "Run the abandoned-payment recovery sweep",
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Report dependency health",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}
            }
        }
    },
    "definitions": {
        "dto.CreatePaymentRequest": {
            "type": "object",
            "required": ["gateway", "order_ids", "success_url", "cancel_url"],
            "properties": {
                "gateway": {"type": "string", "example": "paypal"},
                "order_ids": {"type": "array", "items": {"type": "string"}},
                "amount": {"type": "string", "example": "25.50"},
                "currency": {"type": "string", "example": "USD"},
                "success_url": {"type": "string"},
                "cancel_url": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Paygate API",
	Description:      "Multi-gateway payment processing core.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
