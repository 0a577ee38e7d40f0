package user

import (
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
)

func (h *Handler) getCircuitLeaderboard(c *gin.Context) {
	circuit := c.Param("circuit")
	entries, err := h.tracker.Leaderboard(c.Request.Context(), circuit)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	util.Success(c, gin.H{
		"circuit": circuit,
		"entries": entries,
	}, "Leaderboard retrieved successfully")
}
