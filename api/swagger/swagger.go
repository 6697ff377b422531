package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Question Bank API",
        "description": "Course material ingestion and exam question generation",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Materials", "description": "Course material upload and processing"},
        {"name": "Generation", "description": "Question generation jobs"}
    ],
    "paths": {
        "/materials": {
            "get": {
                "tags": ["Materials"],
                "summary": "List course materials",
                "parameters": [
                    {"name": "courseId", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Materials"],
                "summary": "Upload course material",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "courseId", "in": "formData", "required": true, "type": "string"},
                    {"name": "kind", "in": "formData", "type": "string", "enum": ["SYLLABUS", "UNIT"]},
                    {"name": "unit", "in": "formData", "type": "integer"},
                    {"name": "title", "in": "formData", "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/materials/{id}": {
            "get": {
                "tags": ["Materials"],
                "summary": "Get course material",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/materials/{id}/process": {
            "post": {
                "tags": ["Materials"],
                "summary": "Extract and segment a material",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Document could not be processed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation-jobs": {
            "post": {
                "tags": ["Generation"],
                "summary": "Submit a question generation job",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GenerationRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Material not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation-jobs/{id}": {
            "get": {
                "tags": ["Generation"],
                "summary": "Generation job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation-jobs/{id}/questions": {
            "get": {
                "tags": ["Generation"],
                "summary": "Questions produced by a job",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/generation-jobs/{id}/questions/export": {
            "get": {
                "tags": ["Generation"],
                "summary": "Download a job's questions as a question paper",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv"]},
                    {"name": "answers", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "409": {"description": "Job has not completed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Quotas": {
            "type": "object",
            "properties": {
                "marks": {"type": "object", "additionalProperties": {"type": "integer"}, "example": {"2": 5, "8": 3, "16": 2}},
                "levels": {"type": "object", "additionalProperties": {"type": "integer"}, "example": {"REMEMBER": 4, "APPLY": 4, "ANALYZE": 2}},
                "styles": {"type": "object", "additionalProperties": {"type": "integer"}}
            }
        },
        "GenerationRequest": {
            "type": "object",
            "required": ["courseId", "materialId", "unit", "quotas"],
            "properties": {
                "courseId": {"type": "string"},
                "materialId": {"type": "string", "format": "uuid"},
                "unit": {"type": "integer", "minimum": 1},
                "quotas": {"$ref": "#/definitions/Quotas"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
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
