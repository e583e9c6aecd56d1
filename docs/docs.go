// Package docs holds the OpenAPI document served at /swagger. It follows the
// layout of `swag init -g cmd/server/main.go` and is regenerated with it.
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
        "/gifts": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Gifts"],
                "summary": "List available gifts",
                "operationId": "listGifts",
                "parameters": [
                    {"type": "string", "description": "Only gifts for this product", "name": "product_id", "in": "query"},
                    {"type": "string", "description": "ETag from a previous response", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListGiftsResponse"}, "headers": {"ETag": {"type": "string"}}},
                    "304": {"description": "Not Modified"},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Gifts"],
                "summary": "Create a gift unit",
                "operationId": "createGift",
                "parameters": [
                    {"description": "Gift to create", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.CreateGiftInput"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.GiftUnit"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Parent gift not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gifts/count": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Gifts"],
                "summary": "Count available gifts",
                "operationId": "countGifts",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CountResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gifts/discounts": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Gifts"],
                "summary": "Quote gift discounts",
                "operationId": "quoteGiftDiscounts",
                "parameters": [
                    {"description": "Gifts to redeem", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.DiscountsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.DiscountQuote"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gifts/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Gifts"],
                "summary": "Get a gift unit",
                "operationId": "getGift",
                "parameters": [
                    {"type": "string", "description": "Gift unit ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.GiftUnit"}},
                    "404": {"description": "Gift not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gifts/{id}/chain": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Gifts"],
                "summary": "Chain history of a gift",
                "operationId": "getGiftChain",
                "parameters": [
                    {"type": "string", "description": "Gift unit ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.ChainHistory"}},
                    "404": {"description": "Gift not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/gifts/{id}/claim": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Gifts"],
                "summary": "Claim a gift",
                "operationId": "claimGift",
                "parameters": [
                    {"type": "string", "description": "Gift unit ID (UUID)", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Client key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "description": "Redeeming customer", "name": "X-Customer-ID", "in": "header"},
                    {"description": "Claim payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ClaimGiftRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.GiftUnit"}, "headers": {"Idempotency-Replayed": {"type": "string", "description": "true when replayed"}}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Gift not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Gift not available", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/orders/{id}/post-payment": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Orders"],
                "summary": "Run post-payment gift effects",
                "operationId": "postPayment",
                "parameters": [
                    {"type": "string", "description": "Order ID", "name": "id", "in": "path", "required": true},
                    {"description": "Sale details", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostPaymentRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.AcceptedResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/realtime/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Realtime"],
                "summary": "Display hub status",
                "operationId": "realtimeStatus",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/realtime.Status"}}
                }
            }
        }
    },
    "definitions": {
        "domain.GiftUnit": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "product_type": {"type": "string"},
                "quantity": {"type": "integer"},
                "original_order_id": {"type": "string"},
                "gifted_by_customer_id": {"type": "string"},
                "gifted_by_name": {"type": "string"},
                "status": {"type": "string", "enum": ["AVAILABLE", "CLAIMED", "EXPIRED"]},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "claimed_at": {"type": "string"},
                "claimed_by_order_id": {"type": "string"},
                "claimed_by_customer_id": {"type": "string"},
                "expires_at": {"type": "string"},
                "continued_from_gift_unit_id": {"type": "string"},
                "continued_by_gift_unit_ids": {"type": "array", "items": {"type": "string"}},
                "continued_at": {"type": "string"},
                "chain_position": {"type": "integer"}
            }
        },
        "handlers.AcceptedResponse": {
            "type": "object",
            "properties": {
                "order_id": {"type": "string", "example": "ord_1042"},
                "status": {"type": "string", "example": "accepted"}
            }
        },
        "handlers.ClaimGiftRequest": {
            "type": "object",
            "required": ["order_id"],
            "properties": {
                "order_id": {"type": "string", "maxLength": 64, "example": "ord_1042"},
                "customer_id": {"type": "string", "example": "cust_77"}
            }
        },
        "handlers.CountResponse": {
            "type": "object",
            "properties": {
                "available": {"type": "integer", "example": 7}
            }
        },
        "handlers.DiscountsRequest": {
            "type": "object",
            "required": ["gift_ids"],
            "properties": {
                "gift_ids": {"type": "array", "maxItems": 20, "minItems": 1, "items": {"type": "string"}}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "invalid_state"},
                "message": {"type": "string", "example": "gift not available"}
            }
        },
        "handlers.ListGiftsResponse": {
            "type": "object",
            "properties": {
                "gifts": {"type": "array", "items": {"$ref": "#/definitions/domain.GiftUnit"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.PostPaymentRequest": {
            "type": "object",
            "properties": {
                "customer_id": {"type": "string", "example": "cust_77"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/services.OrderItem"}},
                "gift_metadata": {"$ref": "#/definitions/services.GiftMetadata"}
            }
        },
        "realtime.Status": {
            "type": "object",
            "properties": {
                "clients": {"type": "integer"},
                "active_chains": {"type": "integer"},
                "recent_gifts": {"type": "integer"}
            }
        },
        "services.ChainHistory": {
            "type": "object",
            "properties": {
                "gift_unit_id": {"type": "string"},
                "lineage": {"type": "array", "items": {"$ref": "#/definitions/domain.GiftUnit"}},
                "continuations": {"type": "array", "items": {"$ref": "#/definitions/domain.GiftUnit"}},
                "branching": {"type": "boolean"},
                "truncated": {"type": "boolean"}
            }
        },
        "services.CreateGiftInput": {
            "type": "object",
            "required": ["original_order_id", "product_id", "product_name"],
            "properties": {
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "product_type": {"type": "string"},
                "quantity": {"type": "integer"},
                "original_order_id": {"type": "string"},
                "gifted_by_customer_id": {"type": "string"},
                "gifted_by_name": {"type": "string"},
                "continued_from_gift_unit_id": {"type": "string"},
                "expires_at": {"type": "string"}
            }
        },
        "services.DiscountQuote": {
            "type": "object",
            "properties": {
                "discounts": {"type": "array", "items": {"$ref": "#/definitions/services.GiftDiscount"}},
                "unavailable": {"type": "array", "items": {"type": "string"}}
            }
        },
        "services.GiftDiscount": {
            "type": "object",
            "properties": {
                "gift_unit_id": {"type": "string"},
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "percent": {"type": "integer"},
                "amount": {"type": "string"},
                "priced": {"type": "boolean"}
            }
        },
        "services.GiftMetadata": {
            "type": "object",
            "properties": {
                "claimed_gift_ids": {"type": "array", "items": {"type": "string"}},
                "buy_for_next": {"type": "boolean"},
                "gifter_name": {"type": "string"}
            }
        },
        "services.OrderItem": {
            "type": "object",
            "required": ["product_id", "product_name"],
            "properties": {
                "product_id": {"type": "string"},
                "product_name": {"type": "string"},
                "product_type": {"type": "string"},
                "quantity": {"type": "integer", "minimum": 0, "maximum": 100},
                "price": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "CustomerID": {"type": "apiKey", "name": "X-Customer-ID", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Gift Chain API",
	Description:      "Pay-it-forward gift units, claims, chain history and live display updates.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
