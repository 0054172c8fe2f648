package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	FullName string `json:"fullname"`
	Username string `json:"username"`
}

type loginRequest struct {
	Username   string `json:"username"`
	PrivateKey string `json:"privateKey"`
}

type logoutRequest struct {
	Username string `json:"username"`
}

type deactivateRequest struct {
	UserID int64 `json:"userId"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, "invalid request body")
		return
	}
	registration, err := h.users.Register(c.Request.Context(), request.FullName, request.Username)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "User registered successfully", gin.H{
		"privateKey": registration.PrivateKey,
		"data":       registration.User,
	})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondFailure(c, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.users.Login(c.Request.Context(), request.Username, request.PrivateKey)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "success", gin.H{
		"token":     result.Token,
		"tokenType": "Bearer",
		"expiresIn": result.ExpiresIn,
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	identity, _ := identityFrom(c)
	var request logoutRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		respondFailure(c, http.StatusBadRequest, "username is mandatory")
		return
	}
	if strings.TrimSpace(request.Username) != identity.Username {
		respondFailure(c, http.StatusForbidden, messageForbidden)
		return
	}
	if err := h.users.Logout(c.Request.Context(), request.Username); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "User logged out successfully", nil)
}

func (h *httpHandler) handleDeactivate(c *gin.Context) {
	identity, _ := identityFrom(c)
	var request deactivateRequest
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID <= 0 {
		respondFailure(c, http.StatusBadRequest, "userId is mandatory")
		return
	}
	if err := h.users.Deactivate(c.Request.Context(), identity.UserID, request.UserID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, "User successfully deactivated", nil)
}
