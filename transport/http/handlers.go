package http

import (
	"errors"
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/service"
	"go.uber.org/zap"
)

// AuthHandlers contains HTTP handlers for session endpoints
type AuthHandlers struct {
	authService    *service.AuthService
	deepLinkScheme string
	log            *zap.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService, deepLinkScheme string, log *zap.Logger) *AuthHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandlers{
		authService:    authService,
		deepLinkScheme: deepLinkScheme,
		log:            log,
	}
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	Nonce     string `json:"nonce"`
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

type verifyRequest struct {
	Address   string `json:"address" form:"address"`
	Signature string `json:"signature" form:"signature"`
	Nonce     string `json:"nonce" form:"nonce"`
	SessionID string `json:"sessionId" form:"sessionId"`
}

// NewSession handles session creation
func (h *AuthHandlers) NewSession(c *gin.Context) {
	session, err := h.authService.CreateSession(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": session.ID,
		"nonce":     session.Nonce,
	})
}

// GetSession returns the public view of a session
func (h *AuthHandlers) GetSession(c *gin.Context) {
	session, err := h.authService.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, core.ErrInvalidSession) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		SessionID: session.ID,
		Nonce:     session.Nonce,
		Connected: session.Connected,
		Address:   session.Address,
	})
}

// Nonce handles the legacy nonce request
func (h *AuthHandlers) Nonce(c *gin.Context) {
	session, err := h.authService.IssueNonce(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"nonce":     session.Nonce,
		"sessionId": session.ID,
	})
}

// Verify checks a wallet signature over the session nonce
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", core.ErrMissingFields, err))
		return
	}

	result, err := h.authService.Verify(c.Request.Context(), core.VerifyRequest{
		SessionID: req.SessionID,
		Address:   req.Address,
		Signature: req.Signature,
		Nonce:     req.Nonce,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.NegotiateFormat(gin.MIMEJSON, gin.MIMEHTML) == gin.MIMEHTML {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(h.deepLinkPage(result.SessionID)))
		return
	}

	body := gin.H{
		"success": true,
		"address": result.Address,
		"message": "Authentication successful",
	}
	if result.Token != "" {
		body["token"] = result.Token
	}
	c.JSON(http.StatusOK, body)
}

// deepLinkPage hands control back to the native app that opened the signing flow
func (h *AuthHandlers) deepLinkPage(sessionID string) string {
	link := html.EscapeString(fmt.Sprintf("%s://connected?sid=%s", h.deepLinkScheme, sessionID))
	return `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="0;url=` + link + `">
<title>Wallet connected</title>
</head>
<body>
<p>Wallet connected. <a href="` + link + `">Return to the app</a></p>
</body>
</html>
`
}

// Health reports liveness and the active store backend
func (h *AuthHandlers) Health(c *gin.Context) {
	usingPrimary, sessions, err := h.authService.Stats(c.Request.Context())
	if err != nil {
		h.log.Warn("health: failed to count sessions", zap.Error(err))
	}

	backend := "secondary"
	if usingPrimary {
		backend = "primary"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"store":    backend,
		"sessions": sessions,
	})
}

// AdminSessions lists the stored session ids
func (h *AuthHandlers) AdminSessions(c *gin.Context) {
	ids, err := h.authService.SessionIDs(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count": len(ids),
		"keys":  ids,
	})
}

// Me returns the session proven by the bearer token
func (h *AuthHandlers) Me(c *gin.Context) {
	// Set by the auth middleware
	address, exists := c.Get(ctxUserAddress)
	if !exists {
		writeError(c, http.StatusInternalServerError, errors.New("user not found in context"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":   address,
		"sessionId": c.GetString(ctxSessionID),
	})
}

func (h *AuthHandlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	var mismatch *core.MismatchError
	if errors.As(err, &mismatch) {
		c.JSON(status, gin.H{
			"error":    core.Code(err),
			"message":  "Invalid signature",
			"expected": mismatch.Recovered,
			"received": mismatch.Claimed,
		})
		return
	}

	writeError(c, status, err)
}

func writeError(c *gin.Context, status int, err error) {
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":   core.Code(err),
		"message": message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrMissingFields),
		errors.Is(err, core.ErrInvalidSession),
		errors.Is(err, core.ErrMalformedSignature),
		errors.Is(err, core.ErrRecoveryFailure):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidNonce),
		errors.Is(err, core.ErrSignatureMismatch),
		errors.Is(err, core.ErrInvalidToken),
		errors.Is(err, core.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrAddressConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrStoreTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
