package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ZJUSCT/slotgarage/internal/config"
	"github.com/ZJUSCT/slotgarage/internal/database"
	"github.com/ZJUSCT/slotgarage/internal/database/models"
	"github.com/ZJUSCT/slotgarage/internal/util"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const stateCookie = "garage_gitlab_state"

// GitLabHandler signs users in through GitLab's OpenID Connect endpoints and
// hands out the same JWT as the local login.
type GitLabHandler struct {
	cfg      *config.Config
	db       *gorm.DB
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// gitlabClaims are the ID token claims GitLab fills for the profile scope.
type gitlabClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Nickname          string `json:"nickname"`
	Name              string `json:"name"`
}

// NewGitLabHandler discovers the provider configuration of cfg.Auth.GitLab.URL.
func NewGitLabHandler(ctx context.Context, cfg *config.Config, db *gorm.DB) (*GitLabHandler, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Auth.GitLab.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover gitlab oidc provider: %w", err)
	}
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Auth.GitLab.ClientID})
	return newGitLabHandler(cfg, db, provider.Endpoint(), verifier), nil
}

func newGitLabHandler(cfg *config.Config, db *gorm.DB, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GitLabHandler {
	return &GitLabHandler{
		cfg: cfg,
		db:  db,
		oauth2: &oauth2.Config{
			ClientID:     cfg.Auth.GitLab.ClientID,
			ClientSecret: cfg.Auth.GitLab.ClientSecret,
			RedirectURL:  cfg.Auth.GitLab.RedirectURI,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "profile"},
		},
		verifier: verifier,
	}
}

func (h *GitLabHandler) Login(c *gin.Context) {
	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, 600, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusTemporaryRedirect, h.oauth2.AuthCodeURL(state))
}

func (h *GitLabHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	expected, err := c.Cookie(stateCookie)
	if code == "" || state == "" || err != nil || state != expected {
		util.Error(c, http.StatusBadRequest, "invalid or expired login state")
		return
	}
	c.SetCookie(stateCookie, "", -1, "/", "", c.Request.TLS != nil, true)

	ctx := c.Request.Context()
	token, err := h.oauth2.Exchange(ctx, code)
	if err != nil {
		util.Error(c, http.StatusBadGateway, fmt.Errorf("failed to exchange code: %w", err))
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		util.Error(c, http.StatusBadGateway, "no id_token in token response")
		return
	}
	idToken, err := h.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		util.Error(c, http.StatusUnauthorized, fmt.Errorf("could not verify id_token: %w", err))
		return
	}
	var claims gitlabClaims
	if err := idToken.Claims(&claims); err != nil {
		util.Error(c, http.StatusBadGateway, fmt.Errorf("failed to decode id_token claims: %w", err))
		return
	}

	user, err := h.findOrCreateUser(idToken.Subject, claims)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, err)
		return
	}

	jwtToken, err := GenerateJWT(user.ID, user.Username, h.cfg.Auth.JWT.Secret, h.cfg.Auth.JWT.ExpireHours)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, "failed to generate JWT")
		return
	}
	zap.S().Infow("gitlab login", "user_id", user.ID, "username", user.Username)

	if target := h.cfg.Auth.GitLab.FrontendCallbackURL; target != "" {
		u, err := url.Parse(target)
		if err != nil {
			util.Error(c, http.StatusInternalServerError, "invalid frontend callback url")
			return
		}
		q := u.Query()
		q.Set("token", jwtToken)
		u.RawQuery = q.Encode()
		c.Redirect(http.StatusFound, u.String())
		return
	}
	util.Success(c, gin.H{"token": jwtToken}, "Login successful")
}

// findOrCreateUser links a GitLab subject to an account, creating one on
// first login. A username already taken by a local account gets a suffix.
func (h *GitLabHandler) findOrCreateUser(subject string, claims gitlabClaims) (*models.User, error) {
	user, err := database.GetUserByGitLabID(h.db, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Nickname
	}
	if username == "" {
		username = "gitlab-" + subject
	}
	for _, candidate := range []string{username, username + "-gitlab", username + "-gitlab-" + subject} {
		_, err := database.GetUserByUsername(h.db, candidate)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			username = candidate
			break
		}
		if err != nil {
			return nil, err
		}
	}

	nickname := claims.Name
	if nickname == "" {
		nickname = username
	}
	newUser := models.User{
		ID:       uuid.NewString(),
		Username: username,
		Nickname: nickname,
		GitLabID: &subject,
	}
	if err := database.CreateUser(h.db, &newUser); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	zap.S().Infof("new gitlab user registered: %s", newUser.Username)
	return &newUser, nil
}
