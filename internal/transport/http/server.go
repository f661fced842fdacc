package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"docquery/internal/ai"
	appsvc "docquery/internal/app"
	"docquery/internal/bootstrap"
	"docquery/internal/cache"
	"docquery/internal/platform/rabbitmq"
	"docquery/internal/repository"
	"docquery/internal/transport/http/handler"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	cfg := app.Config
	docRepo := repository.NewDocumentRepository(app.MySQL)
	chunkRepo := repository.NewChunkRepository(app.MySQL)
	eventRepo := repository.NewIngestionEventRepository(app.MySQL)

	aiClient := ai.NewOpenAICompatibleClient()
	embedder := ai.NewEmbedder(aiClient, ai.EmbeddingConfig{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.EmbeddingModel,
		Dimension: cfg.RAG.EmbeddingDimension,
	})
	generator := ai.NewGenerator(aiClient, ai.ChatConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	publisher := rabbitmq.NewEventPublisher(app.MQConn, cfg.RabbitMQ.EventQueue)
	answers := cache.NewAnswerCache(app.Redis, time.Duration(cfg.Redis.AnswerTTLSeconds)*time.Second)

	ingestService := appsvc.NewIngestService(
		docRepo, chunkRepo, eventRepo,
		app.VectorStore, embedder, publisher,
		cfg.RAG,
	)
	askService := appsvc.NewAskService(
		app.VectorStore, embedder, generator, answers,
		cfg.RAG,
	)
	docHandler := handler.NewDocumentHandler(ingestService)
	askHandler := handler.NewAskHandler(askService)

	v1 := router.Group("/api/v1")
	docGroup := v1.Group("/documents")
	docGroup.POST("", docHandler.Create)
	docGroup.POST("/upload", docHandler.Upload)
	docGroup.GET("", docHandler.List)
	docGroup.GET("/:id", docHandler.Get)
	docGroup.GET("/:id/chunks", docHandler.Chunks)
	docGroup.GET("/:id/events", docHandler.Events)
	docGroup.DELETE("/:id", docHandler.Delete)
	v1.POST("/ask", askHandler.Ask)

	return router
}
