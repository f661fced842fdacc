package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"docquery/internal/app"
	"docquery/internal/pkg/extract"
	"docquery/internal/transport/http/response"
)

const maxUploadSize = 10 << 20 // 10 MB

type DocumentHandler struct {
	ingestService *app.IngestService
}

type CreateDocumentRequest struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name" binding:"required,max=256"`
	Content    string `json:"content" binding:"required"`
}

func NewDocumentHandler(ingestService *app.IngestService) *DocumentHandler {
	return &DocumentHandler{ingestService: ingestService}
}

// Create ingests raw text supplied in the request body. A document_id
// re-ingests that existing document in place.
func (h *DocumentHandler) Create(c *gin.Context) {
	var req CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	doc, err := h.ingestService.Ingest(c.Request.Context(), app.IngestInput{
		DocumentID: req.DocumentID,
		Name:       req.Name,
		Content:    req.Content,
	})
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	response.OK(c, doc)
}

// Upload accepts a multipart form with "file" (.pdf, .txt or .md) and
// optional "name" and "document_id" fields, extracts the text and
// ingests it.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > maxUploadSize {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large (max 10MB)")
		return
	}
	if !extract.Supported(file.Filename) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only .pdf, .txt and .md files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	text, err := extract.Text(file.Filename, f)
	if err != nil {
		writeError(c, err, "failed to extract text")
		return
	}
	if strings.TrimSpace(text) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file contains no extractable text")
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
		if name == "" {
			name = "Untitled"
		}
	}

	doc, err := h.ingestService.Ingest(c.Request.Context(), app.IngestInput{
		DocumentID: strings.TrimSpace(c.PostForm("document_id")),
		Name:       name,
		Content:    text,
	})
	if err != nil {
		writeError(c, err, "ingest failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.ingestService.List()
	if err != nil {
		writeError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ingestService.Get(c.Param("id"))
	if err != nil {
		writeError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Chunks(c *gin.Context) {
	chunks, err := h.ingestService.Chunks(c.Param("id"))
	if err != nil {
		writeError(c, err, "list chunks failed")
		return
	}
	response.OK(c, chunks)
}

func (h *DocumentHandler) Events(c *gin.Context) {
	events, err := h.ingestService.Events(c.Param("id"))
	if err != nil {
		writeError(c, err, "list events failed")
		return
	}
	response.OK(c, events)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.ingestService.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}
