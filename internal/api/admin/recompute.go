package admin

import (
	"fmt"
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// recomputeCircuit re-ranks a circuit from its stored timings, repairing any
// positions left behind by a failed update.
func (h *Handler) recomputeCircuit(c *gin.Context) {
	circuit := c.Param("circuit")
	result, err := h.tracker.Recompute(c.Request.Context(), circuit, "")
	if err != nil {
		util.Error(c, http.StatusInternalServerError, fmt.Errorf("failed to recompute positions: %w", err))
		return
	}

	ranked, err := database.CountRankedTimings(h.db, circuit)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, fmt.Errorf("failed to count ranked timings: %w", err))
		return
	}

	zap.S().Infof("admin triggered position recompute for circuit %s, %d timings ranked", circuit, ranked)
	message := "Positions recomputed successfully"
	if result.Failed > 0 {
		message = fmt.Sprintf("Positions recomputed, %d of %d groups failed", result.Failed, result.Groups)
	}
	util.Success(c, gin.H{"update": result, "ranked": ranked}, message)
}
