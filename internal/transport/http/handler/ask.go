package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docquery/internal/app"
	"docquery/internal/transport/http/response"
)

type AskHandler struct {
	askService *app.AskService
}

type AskRequest struct {
	Question   string `json:"question" binding:"required"`
	TopK       int    `json:"top_k"`
	DocumentID string `json:"document_id"`
}

func NewAskHandler(askService *app.AskService) *AskHandler {
	return &AskHandler{askService: askService}
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	answer, err := h.askService.Ask(c.Request.Context(), app.AskInput{
		Question:   req.Question,
		TopK:       req.TopK,
		DocumentID: req.DocumentID,
	})
	if err != nil {
		writeError(c, err, "ask failed")
		return
	}
	response.OK(c, answer)
}
