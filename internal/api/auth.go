package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/lodgepole/campdesk/internal/auth"
	"github.com/lodgepole/campdesk/internal/repository"
)

// AuthHandler handles staff signup and login, the only public endpoints.
type AuthHandler struct {
	staff     repository.StaffRepository
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthHandler(staff repository.StaffRepository, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{staff: staff, jwtSecret: jwtSecret, logger: logger}
}

type signupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token string `json:"token"`
}

const tokenTTL = 24 * time.Hour

// Signup handles POST /v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("failed to hash password", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	st, err := h.staff.Create(c.Request.Context(), req.Email, req.DisplayName, string(hash))
	if err != nil {
		respondError(c, h.logger, "signup", err)
		return
	}

	token, err := auth.GenerateToken(st.ID, st.Email, h.jwtSecret, tokenTTL)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signup failed"})
		return
	}

	c.JSON(http.StatusCreated, authResponse{Token: token})
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	st, err := h.staff.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		h.logger.Error("failed to look up staff", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	// Same response for unknown email and wrong password: no account
	// enumeration through error messages.
	if st == nil || bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(st.ID, st.Email, h.jwtSecret, tokenTTL)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token})
}
