package auth

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Signed in</title></head>
<body>
<script>
  (function () {
    var message = {type: "OAUTH_AUTH_SUCCESS", user: {{.Session.User}}, token: {{.Session.Token}}};
    if (window.opener) {
      window.opener.postMessage(message, {{.Origin}});
    }
    window.close();
  })();
</script>
<p>You can close this window.</p>
</body>
</html>
`))

type Handler struct {
	service      *Service
	openerOrigin string
	logger       *zap.Logger
}

// ErrOpenerOrigin is returned when no concrete origin is known for the
// callback page's postMessage.
var ErrOpenerOrigin = errors.New("auth: opener origin must be a concrete origin")

// NewHandler builds the OAuth handler. openerOrigin is the target origin of
// the postMessage sent to the window that opened the popup; it may not be
// empty or "*" since the message carries the session token.
func NewHandler(service *Service, openerOrigin string, logger *zap.Logger) (*Handler, error) {
	if openerOrigin == "" || openerOrigin == "*" {
		return nil, ErrOpenerOrigin
	}
	return &Handler{service: service, openerOrigin: openerOrigin, logger: logger}, nil
}

// googleURL handles GET /api/auth/google/url
func (h *Handler) googleURL(c *gin.Context) {
	url, err := h.service.AuthURL()
	if err != nil {
		h.logger.Error("Failed to build auth url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build auth url"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// googleCallback handles GET /api/auth/google/callback
func (h *Handler) googleCallback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		c.String(http.StatusBadRequest, "Authentication cancelled: %s", msg)
		return
	}

	session, err := h.service.Callback(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			c.String(http.StatusBadRequest, "Invalid or expired state")
			return
		}
		h.logger.Error("Failed to complete oauth", zap.Error(err))
		c.String(http.StatusInternalServerError, "Authentication failed")
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := callbackPage.Execute(c.Writer, gin.H{"Session": session, "Origin": h.openerOrigin}); err != nil {
		h.logger.Error("Failed to render callback page", zap.Error(err))
	}
}

// me handles GET /api/auth/me
func (h *Handler) me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"email": c.GetString(ContextUserEmail), "name": c.GetString(ContextUserName)})
}
