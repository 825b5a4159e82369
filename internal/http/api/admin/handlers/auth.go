package handlers

import (
	"net/http"
	"strings"

	"github.com/cloudbsd/admin-panel/internal/auth"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves login and the caller's own account.
type AuthHandler struct {
	gateway *auth.Gateway
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(gateway *auth.Gateway) *AuthHandler {
	return &AuthHandler{gateway: gateway}
}

// loginRequest is the login body. OTP is required once TOTP is enabled.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	OTP      string `json:"otp"`
}

// Login exchanges credentials for a session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return
	}

	session, errAuth := h.gateway.Authenticate(c.Request.Context(), auth.Credentials{
		Username: body.Username,
		Password: body.Password,
		OTP:      strings.TrimSpace(body.OTP),
		ClientIP: c.ClientIP(),
	})
	if errAuth != nil {
		RespondError(c, errAuth)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token": session.Token,
		"user":  session.User,
	})
}

// Account returns the caller's profile.
func (h *AuthHandler) Account(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	account, errAccount := h.gateway.Account(c.Request.Context(), p)
	if errAccount != nil {
		RespondError(c, errAccount)
		return
	}
	c.JSON(http.StatusOK, account)
}

// PrepareTOTP starts TOTP enrolment and returns the secret to scan.
func (h *AuthHandler) PrepareTOTP(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	key, errPrepare := h.gateway.PrepareTOTP(c.Request.Context(), p)
	if errPrepare != nil {
		RespondError(c, errPrepare)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":      key.Secret,
		"otpauth_url": key.URL,
	})
}

type totpCodeRequest struct {
	Code string `json:"code"`
}

// ConfirmTOTP enables TOTP after checking a code from the pending secret.
func (h *AuthHandler) ConfirmTOTP(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errConfirm := h.gateway.ConfirmTOTP(c.Request.Context(), p, strings.TrimSpace(body.Code)); errConfirm != nil {
		RespondError(c, errConfirm)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": true})
}

// DisableTOTP removes TOTP after checking a current code.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	p, ok := mustPrincipal(c)
	if !ok {
		return
	}
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if errDisable := h.gateway.DisableTOTP(c.Request.Context(), p, strings.TrimSpace(body.Code)); errDisable != nil {
		RespondError(c, errDisable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": false})
}
