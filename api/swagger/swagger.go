package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "FeelLog API",
        "description": "Journaling backend: accounts, sessions and password recovery.",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Accounts, sessions and password reset"},
        {"name": "Observability", "description": "Health and metrics"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register account",
                "description": "Creates an account and opens its first session. The refresh token is set in the HttpOnly cookie refresh_token_<session_id>.",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Token"}},
                    "400": {"description": "Validation failed or email taken", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Token"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "description": "Mints a new access token. The session and its refresh token are unchanged.",
                "parameters": [
                    {"name": "X-Session-ID", "in": "header", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Token"}},
                    "400": {"description": "Missing session id or cookie", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "401": {"description": "Invalid, unknown or expired refresh token", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "X-Session-ID", "in": "header", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "401": {"description": "Not authenticated", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "404": {"description": "Session not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/forgot-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Request password reset code",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ForgotPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "404": {"description": "User not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/reset-password": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Reset password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResetPasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "400": {"description": "Invalid or expired reset code", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/UserPublic"}},
                    "401": {"description": "Not authenticated", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/metrics/summary": {
            "get": {
                "tags": ["Observability"],
                "summary": "Counter snapshot",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["email", "full_name", "password", "confirm_password"],
            "properties": {
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "password": {"type": "string"},
                "confirm_password": {"type": "string"}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ForgotPasswordRequest": {
            "type": "object",
            "required": ["email"],
            "properties": {
                "email": {"type": "string"}
            }
        },
        "ResetPasswordRequest": {
            "type": "object",
            "required": ["email", "otp", "new_password"],
            "properties": {
                "email": {"type": "string"},
                "otp": {"type": "string"},
                "new_password": {"type": "string"}
            }
        },
        "Token": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "session_id": {"type": "string"},
                "token_type": {"type": "string"}
            }
        },
        "UserPublic": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "email": {"type": "string"},
                "full_name": {"type": "string"},
                "profile_photo": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"}
            }
        },
        "MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"}
            }
        },
        "ErrorBody": {
            "type": "object",
            "properties": {
                "detail": {"type": "string"},
                "code": {"type": "string"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
