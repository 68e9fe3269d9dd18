// Package docs serves the OpenAPI description of the CampusFix API.
package docs

import "github.com/swaggo/swag"

const openAPI = `{
  "swagger": "2.0",
  "info": {
    "title": "CampusFix Backend",
    "description": "Campus incident lifecycle, SLA escalation and technician assignment API",
    "version": "1.0"
  },
  "basePath": "/api",
  "securityDefinitions": {
    "AdminKey": {"type": "apiKey", "in": "header", "name": "X-Admin-Key"}
  },
  "paths": {
    "/incidents": {
      "get": {"summary": "List incidents", "tags": ["incidents"]},
      "post": {"summary": "Report an incident", "tags": ["incidents"],
        "responses": {"201": {"description": "created"}, "409": {"description": "same-day duplicate"}}}
    },
    "/incidents/{id}": {"get": {"summary": "Incident details", "tags": ["incidents"]}},
    "/incidents/{id}/status": {"patch": {"summary": "Advance incident status one step", "tags": ["incidents"]}},
    "/incidents/{id}/sla": {"get": {"summary": "SLA evaluation of one incident", "tags": ["sla"]}},
    "/incidents/{id}/assign": {"post": {"summary": "Assign a technician", "tags": ["assignments"], "security": [{"AdminKey": []}]}},
    "/incidents/{id}/close": {"post": {"summary": "Close a resolved incident", "tags": ["incidents"], "security": [{"AdminKey": []}]}},
    "/sla": {"get": {"summary": "SLA board of open incidents", "tags": ["sla"]}},
    "/assignments/{id}": {"patch": {"summary": "Start or complete an assignment", "tags": ["assignments"]}},
    "/assignments/{id}/reassign": {"post": {"summary": "Move an assignment to another technician", "tags": ["assignments"], "security": [{"AdminKey": []}]}},
    "/technicians": {
      "get": {"summary": "List technicians", "tags": ["technicians"]},
      "post": {"summary": "Create or update a technician", "tags": ["technicians"], "security": [{"AdminKey": []}]}
    },
    "/technicians/import": {"post": {"summary": "Import the roster from CSV", "tags": ["technicians"], "consumes": ["multipart/form-data"], "security": [{"AdminKey": []}]}},
    "/technicians/{id}/assignments": {"get": {"summary": "Assignments of a technician", "tags": ["technicians"]}},
    "/notifications": {"get": {"summary": "List notifications", "tags": ["notifications"]}},
    "/predictions": {"get": {"summary": "Failure predictions", "tags": ["predictions"]}},
    "/predictions/health": {"get": {"summary": "Prediction scorer health", "tags": ["predictions"]}},
    "/predictions/process-critical": {"post": {"summary": "Assign critical predicted failures", "tags": ["predictions"], "security": [{"AdminKey": []}]}},
    "/escalation/tick": {"post": {"summary": "Run one escalation tick", "tags": ["sla"], "security": [{"AdminKey": []}]}}
  }
}`

type campusFixDoc struct{}

func (campusFixDoc) ReadDoc() string {
	return openAPI
}

func init() {
	swag.Register(swag.Name, campusFixDoc{})
}
