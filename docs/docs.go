// Package docs holds the generated Swagger spec.
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
        "/api/commissions/validate": {
            "post": {
                "description": "Validates a subreddit/post target against a commission_type before a donor pays.",
                "produces": ["application/json"],
                "tags": ["commissions"],
                "summary": "Validate a commission target",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/api/donations/create-payment-intent": {
            "post": {
                "description": "Creates a payment intent for a new donation.",
                "produces": ["application/json"],
                "tags": ["donations"],
                "summary": "Create a payment intent",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/api/donations/webhook": {
            "post": {
                "description": "Receives payment gateway webhook events.",
                "produces": ["application/json"],
                "tags": ["donations"],
                "summary": "Payment gateway webhook",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/api/fundraising/progress": {
            "get": {
                "description": "Returns fundraising progress overall and by subreddit.",
                "produces": ["application/json"],
                "tags": ["fundraising"],
                "summary": "Get fundraising progress",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        },
        "/api/tasks": {
            "get": {
                "description": "Lists pipeline tasks, optionally filtered by status.",
                "produces": ["application/json"],
                "tags": ["tasks"],
                "summary": "List pipeline tasks",
                "responses": {
                    "200": { "description": "OK" }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/v1",
	Schemes:          []string{},
	Title:            "",
	Description:      "",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
