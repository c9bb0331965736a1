// Package docs registers the OpenAPI description of the HTTP API with swag.
// The server exposes it at GET /swagger/doc.json.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/ingest": {
            "post": {
                "description": "Uploads 3-10 .txt or .pdf files, splits them into chunks and indexes them",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Upload documents",
                "parameters": [
                    {"type": "file", "description": "Files to index (repeat the field)", "name": "files", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IngestResponse"}},
                    "400": {"description": "Validation failed or no text extracted", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Index is being modified by another instance", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "500": {"description": "Indexing failed", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/ask": {
            "post": {
                "description": "Answers in 3-4 lines from the indexed documents with up to 3 citations",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Questions"],
                "summary": "Ask a question",
                "parameters": [
                    {"description": "Question (1-250 characters)", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.askRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Answer"}},
                    "400": {"description": "Empty or too long question", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "503": {"description": "Generation service unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/search": {
            "get": {
                "description": "Returns the passages nearest to the query with relevance 1/(1+distance)",
                "produces": ["application/json"],
                "tags": ["Questions"],
                "summary": "Search passages",
                "parameters": [
                    {"type": "string", "description": "Query", "name": "q", "in": "query", "required": true},
                    {"type": "integer", "description": "Maximum passages (default 5)", "name": "k", "in": "query"},
                    {"type": "string", "description": "Restrict to one document", "name": "document", "in": "query"},
                    {"type": "string", "description": "Restrict to one file type (.pdf, .txt)", "name": "file_type", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SearchResponse"}},
                    "400": {"description": "Missing query or no documents indexed", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "description": "Document, chunk and vector counts computed from the live index",
                "produces": ["application/json"],
                "tags": ["Index"],
                "summary": "Index status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.IndexStatusResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "description": "Index statistics with storage and model information",
                "produces": ["application/json"],
                "tags": ["Index"],
                "summary": "Index diagnostics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatsResponse"}}
                }
            }
        },
        "/documents": {
            "delete": {
                "description": "Clears the index, the chunk mapping and the stored artifacts",
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Remove every document",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.MessageResponse"}},
                    "409": {"description": "Index is being modified by another instance", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/documents/{name}": {
            "delete": {
                "description": "Removes every chunk of a document. Indexes without point removal are rebuilt, re-embedding every remaining chunk.",
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Remove one document",
                "parameters": [
                    {"type": "string", "description": "Document name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.DeleteDocumentResponse"}},
                    "404": {"description": "Document not indexed", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Index is being modified by another instance", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/index/rebuild": {
            "post": {
                "description": "Re-embeds every indexed chunk into a fresh index. Costs one embedding per chunk.",
                "produces": ["application/json"],
                "tags": ["Index"],
                "summary": "Rebuild the index",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.RebuildResponse"}},
                    "409": {"description": "Index is being modified by another instance", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Citation": {
            "type": "object",
            "properties": {
                "document_name": {"type": "string"},
                "score": {"type": "number"},
                "text": {"type": "string"}
            }
        },
        "domain.Answer": {
            "type": "object",
            "properties": {
                "answer": {"type": "string"},
                "citations": {"type": "array", "items": {"$ref": "#/definitions/domain.Citation"}},
                "has_sufficient_context": {"type": "boolean"},
                "question": {"type": "string"}
            }
        },
        "domain.ProcessedFile": {
            "type": "object",
            "properties": {
                "chunks_count": {"type": "integer"},
                "file_size": {"type": "integer"},
                "filename": {"type": "string"}
            }
        },
        "domain.IndexStats": {
            "type": "object",
            "properties": {
                "embedding_dimension": {"type": "integer"},
                "index_exists": {"type": "boolean"},
                "source_list": {"type": "array", "items": {"type": "string"}},
                "total_documents": {"type": "integer"},
                "total_vectors": {"type": "integer"},
                "unique_sources": {"type": "integer"}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "invalid request body"}}
        },
        "http.MessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "warning": {"type": "string"}
            }
        },
        "http.askRequest": {
            "type": "object",
            "properties": {"question": {"type": "string", "maxLength": 250, "minLength": 1}}
        },
        "http.IngestResponse": {
            "type": "object",
            "properties": {
                "files_processed": {"type": "array", "items": {"$ref": "#/definitions/domain.ProcessedFile"}},
                "message": {"type": "string"},
                "skipped_files": {"type": "array", "items": {"type": "string"}},
                "total_chunks": {"type": "integer"},
                "warning": {"type": "string"}
            }
        },
        "http.SearchPassage": {
            "type": "object",
            "properties": {
                "chunk_index": {"type": "integer"},
                "document_name": {"type": "string"},
                "relevance_score": {"type": "number"},
                "text": {"type": "string"}
            }
        },
        "http.SearchResponse": {
            "type": "object",
            "properties": {
                "passages": {"type": "array", "items": {"$ref": "#/definitions/http.SearchPassage"}},
                "query": {"type": "string"},
                "total_found": {"type": "integer"}
            }
        },
        "http.IndexStatusResponse": {
            "type": "object",
            "properties": {
                "available_documents": {"type": "array", "items": {"type": "string"}},
                "indexed_documents": {"type": "integer"},
                "indexed_vectors": {"type": "integer"},
                "llm_available": {"type": "boolean"},
                "total_chunks": {"type": "integer"},
                "total_documents": {"type": "integer"}
            }
        },
        "http.StatsResponse": {
            "type": "object",
            "properties": {
                "index_stats": {"$ref": "#/definitions/domain.IndexStats"},
                "llm_available": {"type": "boolean"},
                "system_status": {
                    "type": "object",
                    "properties": {
                        "embedding_model": {"type": "string"},
                        "has_data": {"type": "boolean"},
                        "lock_backend": {"type": "string"},
                        "storage": {"type": "string"}
                    }
                }
            }
        },
        "http.DeleteDocumentResponse": {
            "type": "object",
            "properties": {
                "chunks_removed": {"type": "integer"},
                "message": {"type": "string"},
                "rebuilt": {"type": "boolean"},
                "total_vectors": {"type": "integer"},
                "warning": {"type": "string"}
            }
        },
        "http.RebuildResponse": {
            "type": "object",
            "properties": {
                "chunks_embedded": {"type": "integer"},
                "total_vectors": {"type": "integer"},
                "warning": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Sercha QA API",
	Description:      "Document question answering: upload text and PDF files, search them by meaning and ask grounded questions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
