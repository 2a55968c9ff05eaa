package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"PgBackuper/internal/catalog"
	"PgBackuper/internal/config"
	"PgBackuper/internal/restore"
)

type Lister interface {
	List(ctx context.Context) ([]catalog.Entry, error)
}

type Dispatcher interface {
	Start(key, databaseURL string) (uuid.UUID, error)
	Last() (restore.Task, bool)
}

type loginRequest struct {
	APIKey string `json:"apiKey"`
}

type restoreRequest struct {
	BackupKey   string `json:"backupKey"`
	DatabaseURL string `json:"databaseUrl"`
}

func (s *Server) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	token, exp, err := s.auth.Login(req.APIKey)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": exp.UTC()})
}

func (s *Server) listBackups(c *gin.Context) {
	entries, err := s.lister.List(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("listing backups failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []catalog.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"backups": entries})
}

func (s *Server) startRestore(c *gin.Context) {
	var req restoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	req.BackupKey = strings.TrimSpace(req.BackupKey)
	req.DatabaseURL = strings.TrimSpace(req.DatabaseURL)
	switch {
	case req.BackupKey == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "backupKey is required"})
		return
	case req.DatabaseURL == "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "databaseUrl is required (target Postgres connection URL)"})
		return
	case config.ValidateDatabaseURL(req.DatabaseURL) != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": "databaseUrl must be a PostgreSQL connection URL (postgresql://...)"})
		return
	}

	id, err := s.restores.Start(req.BackupKey, req.DatabaseURL)
	if errors.Is(err, restore.ErrInProgress) {
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": "a restore is already running"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Restore started in the background. It may take a few minutes; check the target database or the service logs.",
		"taskId":  id.String(),
	})
}

func (s *Server) restoreStatus(c *gin.Context) {
	task, ok := s.restores.Last()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no restore has been started"})
		return
	}
	c.JSON(http.StatusOK, task)
}
