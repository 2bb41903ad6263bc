package server

import (
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/YosriMlik/llm-wrapper/internal/embed"
	"github.com/YosriMlik/llm-wrapper/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const indexFile = "/index.html"

// setupStaticFiles serves the single page frontend from the configured
// directory, falling back to the embedded placeholder page when that
// directory is missing. Unknown non-API paths get index.html so client-side
// routes survive a reload.
func (s *Server) setupStaticFiles() {
	dir := s.cfg.Server.StaticDir
	if info, err := os.Stat(dir); dir != "" && err == nil && info.IsDir() {
		s.logger.Info("Serving frontend from directory", zap.String("dir", dir))
		s.static = http.Dir(dir)
	} else if embed.HasEmbeddedFiles() {
		publicFS, err := embed.GetPublicFS()
		if err == nil {
			s.logger.Info("Frontend build not found, serving embedded page", zap.String("dir", dir))
			s.static = http.FS(publicFS)
		} else {
			s.logger.Warn("Failed to load embedded files", zap.Error(err))
		}
	}

	s.router.NoRoute(s.notFound)
}

func (s *Server) notFound(c *gin.Context) {
	p := c.Request.URL.Path
	if p == "/api" || strings.HasPrefix(p, "/api/") || s.static == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Route not found"})
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Route not found"})
		return
	}

	name := path.Clean("/" + p)
	if s.isFile(name) && name != indexFile {
		c.FileFromFS(name, s.static)
		return
	}
	if s.isFile(indexFile) {
		// the file server redirects explicit index.html requests, so serve the root
		c.FileFromFS("/", s.static)
		return
	}

	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "Route not found"})
}

func (s *Server) isFile(name string) bool {
	f, err := s.static.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	return err == nil && !info.IsDir()
}
