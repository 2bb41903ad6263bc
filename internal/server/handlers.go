package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/YosriMlik/llm-wrapper/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// apiStatus is the API health endpoint
func (s *Server) apiStatus(c *gin.Context) {
	c.JSON(http.StatusOK, models.HealthResponse{
		Message:   "Chatbot API is running",
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, models.ModelsResponse{
		Models:  s.registry.Models(),
		Default: s.registry.Default(),
	})
}

// echo returns the posted JSON so clients can check that POST bodies arrive intact
func (s *Server) echo(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil || !json.Valid(body) {
		s.logger.Debug("Test endpoint could not parse body", zap.Int("length", len(body)), zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Failed to parse JSON"})
		return
	}

	s.logger.Debug("Test endpoint received body", zap.ByteString("body", body))
	c.JSON(http.StatusOK, gin.H{"received": json.RawMessage(body), "status": "ok"})
}
