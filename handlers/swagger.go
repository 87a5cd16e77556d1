package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the identity service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>bazaar-identity Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// OpenAPI document for the token endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "bazaar-identity", "version": "v1.0.0" },
  "components": {
    "securitySchemes": { "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" } },
    "parameters": {
      "platform": { "name": "X-Platform", "in": "header", "schema": {"type":"string","enum":["ios","android","web"]} },
      "deviceModel": { "name": "X-Device-Model", "in": "header", "schema": {"type":"string"} },
      "timezone": { "name": "X-Timezone", "in": "header", "schema": {"type":"string"} },
      "appVersion": { "name": "X-App-Version", "in": "header", "schema": {"type":"string"} }
    },
    "schemas": {
      "Tokens": { "type":"object", "properties": { "success":{"type":"boolean"}, "accessToken":{"type":"string"}, "refreshToken":{"type":"string","description":"present only when the session moved to a new device fingerprint"}, "expiresIn":{"type":"integer"} } },
      "Failure": { "type":"object", "properties": { "success":{"type":"boolean"}, "message":{"type":"string"} } }
    }
  },
  "paths": {
    "/auth/refresh-token": {
      "post": {
        "summary": "Exchange a refresh token for a new access token",
        "parameters": [ {"$ref":"#/components/parameters/platform"}, {"$ref":"#/components/parameters/deviceModel"}, {"$ref":"#/components/parameters/timezone"}, {"$ref":"#/components/parameters/appVersion"} ],
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","required":["refreshToken"],"properties":{"refreshToken":{"type":"string"}}}}}},
        "responses": {
          "200": { "description": "new access token", "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Tokens"} } } },
          "400": { "description": "missing refreshToken" },
          "401": { "description": "invalid refresh token or expired session", "content": { "application/json": { "schema": {"$ref":"#/components/schemas/Failure"} } } }
        }
      }
    },
    "/auth/logout-all-devices": {
      "post": {
        "summary": "Revoke every session of the caller",
        "security": [ {"bearer": []} ],
        "responses": { "200": { "description": "logged out" }, "401": { "description": "invalid or revoked bearer token" } }
      }
    },
    "/api/v1/me": {
      "get": { "summary": "Get the caller's account", "security": [ {"bearer": []} ], "responses": { "200": { "description": "user or claims" }, "401": { "description": "invalid or revoked bearer token" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
