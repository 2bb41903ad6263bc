package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/YosriMlik/llm-wrapper/internal/models"
	"github.com/YosriMlik/llm-wrapper/internal/relay"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// chat answers with the normalized {response, model} shape, or SSE when stream is set.
func (s *Server) chat(c *gin.Context) {
	s.handleChat(c, false)
}

// chatCompletions answers with the upstream body unchanged, or SSE when stream is set.
func (s *Server) chatCompletions(c *gin.Context) {
	s.handleChat(c, true)
}

func (s *Server) handleChat(c *gin.Context, verbatim bool) {
	req, model, err := s.parseChatRequest(c)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	messages := req.Conversation()

	s.logger.Debug("Dispatching chat request",
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("model", model),
		zap.Bool("stream", req.Stream),
		zap.Int("messages", len(messages)))

	if req.Stream {
		s.streamChat(c, model, messages)
		return
	}

	completion, err := s.completer.Complete(c.Request.Context(), model, messages)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	if verbatim {
		c.Data(http.StatusOK, "application/json; charset=utf-8", completion.Raw)
		return
	}
	c.JSON(http.StatusOK, completion.Normalize(model))
}

// parseChatRequest binds the payload and resolves the effective model.
func (s *Server) parseChatRequest(c *gin.Context) (*models.ChatRequest, string, error) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, "", &ValidationError{Message: "Request body is required"}
		}
		return nil, "", &ValidationError{Message: "Invalid request: " + err.Error()}
	}

	if len(req.Conversation()) == 0 {
		return nil, "", &ValidationError{Message: "Message or messages array is required"}
	}

	model := s.registry.Resolve(req.Model)
	if s.cfg.Models.Strict && !s.registry.IsValidModel(model) {
		return nil, "", &ValidationError{Message: "Unsupported model: " + model}
	}

	return &req, model, nil
}

// streamChat relays the upstream SSE stream. Errors before the first byte
// are ordinary JSON errors; after that they can only be reported in-stream.
func (s *Server) streamChat(c *gin.Context, model string, messages []models.ChatMessage) {
	body, err := s.completer.Stream(c.Request.Context(), model, messages)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	src := relay.WithIdleTimeout(body, s.cfg.OpenRouter.StreamIdleTimeout)
	defer src.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	result := relay.New(src, c.Writer, s.logger).Run()

	fields := []zap.Field{
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("model", model),
		zap.Stringer("state", result.State),
		zap.Int("frames", result.Frames),
		zap.Int("skipped", result.Skipped),
		zap.Int("content_bytes", result.ContentBytes),
	}
	if result.Model != "" && result.Model != model {
		fields = append(fields, zap.String("upstream_model", result.Model))
	}
	if result.TotalTokens > 0 {
		fields = append(fields, zap.Int64("total_tokens", result.TotalTokens))
	}

	if result.Err != nil {
		if c.Request.Context().Err() != nil {
			s.logger.Info("Client disconnected during stream", append(fields, zap.Error(result.Err))...)
			return
		}
		s.logger.Warn("Stream relay failed", append(fields, zap.Error(result.Err))...)
		return
	}
	s.logger.Info("Stream relay finished", fields...)
}
