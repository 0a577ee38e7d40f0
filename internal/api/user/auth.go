package user

import (
	"errors"
	"net/http"

	"github.com/ZJUSCT/slotgarage/internal/api"
	"github.com/ZJUSCT/slotgarage/internal/auth"
	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (h *Handler) getAuthStatus(c *gin.Context) {
	util.Success(c, gin.H{
		"local_auth_enabled":  h.cfg.Auth.Local.Enabled,
		"gitlab_auth_enabled": h.gitlab != nil,
	}, "Auth status retrieved")
}

func (h *Handler) localRegister(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
		Nickname string `json:"nickname"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	_, err := database.GetUserByUsername(h.db, req.Username)
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		if err == nil {
			util.Error(c, http.StatusConflict, "username already exists")
		} else {
			util.Error(c, http.StatusInternalServerError, "database error")
		}
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to hash password")
		return
	}

	newUser := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hashedPassword,
		Nickname:     req.Nickname,
	}
	if newUser.Nickname == "" {
		newUser.Nickname = newUser.Username
	}

	if err := database.CreateUser(h.db, &newUser); err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to create user")
		return
	}

	zap.S().Infof("new local user registered: %s", newUser.Username)
	util.Success(c, gin.H{"id": newUser.ID, "username": newUser.Username}, "User registered successfully")
}

func (h *Handler) localLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, err)
		return
	}

	user, err := database.GetUserByUsername(h.db, req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			util.Error(c, http.StatusUnauthorized, "invalid username or password")
		} else {
			util.Error(c, http.StatusInternalServerError, "database error")
		}
		return
	}

	if user.SSOOnly() {
		util.Error(c, http.StatusUnauthorized, "this account signs in with GitLab")
		return
	}
	if !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		util.Error(c, http.StatusUnauthorized, "invalid username or password")
		return
	}

	jwtToken, err := auth.GenerateJWT(user.ID, user.Username, h.cfg.Auth.JWT.Secret, h.cfg.Auth.JWT.ExpireHours)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to generate JWT")
		return
	}
	zap.S().Infow("local login", "user_id", user.ID, "username", user.Username)
	util.Success(c, gin.H{"token": jwtToken}, "Login successful")
}

func (h *Handler) getUserProfile(c *gin.Context) {
	user, err := database.GetUserByID(h.db, api.UserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			zap.S().Warnw("token for a deleted account", "user_id", api.UserID(c), "username", api.Username(c))
		}
		lookupError(c, err, "user")
		return
	}
	util.Success(c, user, "User profile retrieved successfully")
}
