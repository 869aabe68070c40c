package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Alsond5/Wordle-Arena/models"
)

type MatchHandler struct {
	db *gorm.DB
}

func NewMatchHandler(db *gorm.DB) *MatchHandler {
	return &MatchHandler{db: db}
}

// List returns the authenticated user's most recent finished matches.
func (h *MatchHandler) List(c *gin.Context) {
	username := c.GetString("username")

	var records []models.MatchRecord
	err := h.db.
		Where("winner_name = ? OR loser_name = ?", username, username).
		Order("created_at DESC").
		Limit(50).
		Find(&records).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"matches": records})
}
