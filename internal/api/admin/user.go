package admin

import (
	"errors"
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/auth"
	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (h *Handler) getAllUsers(c *gin.Context) {
	searchQuery := c.Query("query")
	dbQuery := h.db

	if searchQuery != "" {
		likeQuery := "%" + searchQuery + "%"
		dbQuery = dbQuery.Where("id = ? OR username LIKE ? OR nickname LIKE ?", searchQuery, likeQuery, likeQuery)
	}

	var users []models.User
	if err := dbQuery.Find(&users).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}

	util.Success(c, users, "Users retrieved successfully")
}

func (h *Handler) getUser(c *gin.Context) {
	user, err := database.GetUserByID(h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, "user not found")
		} else {
			util.Error(c, http.StatusInternalServerError, err)
		}
		return
	}

	vehicles, err := database.GetVehiclesByOwner(h.db, user.ID)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	util.Success(c, gin.H{"user": user, "vehicle_count": len(vehicles)}, "User retrieved successfully")
}

func (h *Handler) deleteUser(c *gin.Context) {
	userID := c.Param("id")
	if _, err := database.GetUserByID(h.db, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, "user not found")
		} else {
			util.Error(c, http.StatusInternalServerError, err)
		}
		return
	}
	if err := database.DeleteUser(h.db, userID); err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	zap.S().Infof("admin deleted user %s", userID)
	util.Success(c, nil, "User deleted successfully")
}

func (h *Handler) resetUserPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	user, err := database.GetUserByID(h.db, c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusNotFound, "user not found")
		} else {
			util.Error(c, http.StatusInternalServerError, err)
		}
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to hash password")
		return
	}
	if err := h.db.Model(user).Update("password_hash", hash).Error; err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}
	zap.S().Infof("admin reset password for user %s", user.ID)
	util.Success(c, nil, "Password reset successfully")
}
