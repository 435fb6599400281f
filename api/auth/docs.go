// Package auth holds the OpenAPI document for the shop authentication
// service. It mirrors the swag annotations in internal/auth/http; run
// `swag init -g internal/auth/http/router.go -o api/auth` after changing them.
package auth

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/shopauth"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/api/shop/signup": {
            "post": {
                "description": "Create a shop account and open its first session. The returned tokens are signed with a key pair minted for this session.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Shop"],
                "summary": "Register a shop",
                "parameters": [
                    {
                        "description": "Shop details",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.signUpRequest"}
                    }
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.authResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "409": {"description": "Already registered", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}}
                }
            }
        },
        "/v1/api/shop/login": {
            "post": {
                "description": "Verify the password and open a new session. Depending on the session policy the previous session is replaced or the login is refused.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Shop"],
                "summary": "Log in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.loginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.authResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "404": {"description": "Not registered", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "409": {"description": "Session exists", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}}
                }
            }
        },
        "/v1/api/shop/signin": {
            "post": {
                "description": "Alias of /v1/api/shop/login.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Shop"],
                "summary": "Log in",
                "parameters": [
                    {
                        "description": "Credentials",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/http.loginRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.authResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "404": {"description": "Not registered", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "409": {"description": "Session exists", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}}
                }
            }
        },
        "/v1/api/shop/refresh": {
            "post": {
                "description": "Exchange the current refresh token for a new pair. Presenting an already rotated token revokes every session of the shop.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Shop"],
                "summary": "Rotate the refresh token",
                "parameters": [
                    {"type": "string", "description": "Shop id", "name": "x-client-id", "in": "header", "required": true},
                    {"type": "string", "description": "Refresh token", "name": "x-rtoken-id", "in": "header"},
                    {
                        "description": "Refresh token when the header is absent",
                        "name": "body",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/http.refreshRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.refreshResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "403": {"description": "Refresh token reused", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "404": {"description": "Not registered", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}}
                }
            }
        },
        "/v1/api/shop/handlerRefreshToken": {
            "post": {
                "description": "Alias of /v1/api/shop/refresh.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Shop"],
                "summary": "Rotate the refresh token",
                "parameters": [
                    {"type": "string", "description": "Shop id", "name": "x-client-id", "in": "header", "required": true},
                    {"type": "string", "description": "Refresh token", "name": "x-rtoken-id", "in": "header"},
                    {
                        "description": "Refresh token when the header is absent",
                        "name": "body",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/http.refreshRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.refreshResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "403": {"description": "Refresh token reused", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "404": {"description": "Not registered", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}}
                }
            }
        },
        "/v1/api/shop/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Delete the caller's session.",
                "produces": ["application/json"],
                "tags": ["Shop"],
                "summary": "Log out",
                "parameters": [
                    {"type": "string", "description": "Shop id", "name": "x-client-id", "in": "header", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.logoutResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/httpx.ErrorBody"}}
                }
            }
        }
    },
    "definitions": {
        "domain.ShopSummary": {
            "type": "object",
            "properties": {
                "_id": {"type": "string"},
                "email": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "http.authResponse": {
            "type": "object",
            "properties": {
                "shop": {"$ref": "#/definitions/domain.ShopSummary"},
                "tokens": {"$ref": "#/definitions/jwtx.Pair"}
            }
        },
        "http.loginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "http.logoutResponse": {
            "type": "object",
            "properties": {
                "deleted": {"type": "boolean"}
            }
        },
        "http.refreshRequest": {
            "type": "object",
            "properties": {
                "refreshToken": {"type": "string"}
            }
        },
        "http.refreshResponse": {
            "type": "object",
            "properties": {
                "shop": {"$ref": "#/definitions/http.tokenOwner"},
                "tokens": {"$ref": "#/definitions/jwtx.Pair"}
            }
        },
        "http.signUpRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "name": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "http.tokenOwner": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "userId": {"type": "string"}
            }
        },
        "httpx.ErrorBody": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"}
            }
        },
        "jwtx.Pair": {
            "type": "object",
            "properties": {
                "accessExpiresAt": {"type": "string"},
                "accessToken": {"type": "string"},
                "refreshExpiresAt": {"type": "string"},
                "refreshToken": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Session access token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Shop Authentication Service API",
	Description:      "Credential issuance for shops. Every session carries its own signing key pair, so tokens are verified against the session they belong to rather than a shared key.\n\nAuthenticated calls send the shop id in x-client-id alongside the access token.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
