package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/media"
	"github.com/coffeestaff/portal/internal/metrics"
	"github.com/coffeestaff/portal/internal/session"
)

const (
	sessionIDKey = "sid"
	portalKey    = "portal"
	libraryKey   = "library"
)

// requestID tags the request context with an id, taken from X-Request-ID
// when the caller sent one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = logging.NewRequestID()
		}
		c.Header("X-Request-ID", id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// accessLog logs and counts every request by route pattern.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(c.Request.Method, route, status, duration)

		logger := logging.WithContext(c.Request.Context())
		fields := []zap.Field{
			logging.String("method", c.Request.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Duration("duration", duration),
		}
		if status >= 500 {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request", fields...)
		}
	}
}

// loadSession attaches the portal state of the browser session, creating
// a session id on first contact.
func (s *Server) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		id, _ := sess.Get(sessionIDKey).(string)
		if id == "" {
			id = uuid.NewString()
			sess.Set(sessionIDKey, id)
			if err := sess.Save(); err != nil {
				logging.WithContext(c.Request.Context()).Error("save browser session failed", logging.Err(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session unavailable"})
				return
			}
		}
		c.Set(portalKey, s.registry.get(c.Request.Context(), id))
		c.Next()
	}
}

func portalOf(c *gin.Context) *portal {
	return c.MustGet(portalKey).(*portal)
}

func libraryOf(c *gin.Context) *media.Library {
	return c.MustGet(libraryKey).(*media.Library)
}

// redirect sends browsers to target and API callers a JSON pointer to it.
func redirect(c *gin.Context, target string) {
	if c.Request.Method == http.MethodGet && strings.Contains(c.GetHeader("Accept"), "text/html") {
		c.Redirect(http.StatusFound, target)
		c.Abort()
		return
	}
	status := http.StatusConflict
	if target == session.PathLogin {
		status = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(status, gin.H{"error": "redirect", "redirect": target})
}

// requireAuth lets only logged-in sessions through.
func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !portalOf(c).manager.LoggedIn() {
			redirect(c, session.PathLogin)
			return
		}
		c.Next()
	}
}

// guard applies the resolver's routing rules for route.
func guard(route session.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		if target := portalOf(c).manager.Resolver().Guard(route); target != "" {
			redirect(c, target)
			return
		}
		c.Next()
	}
}

// loadLibrary attaches the library of the active company. Super admins
// name the company with ?company_id=.
func (s *Server) loadLibrary() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := portalOf(c)
		companyID, err := p.manager.Resolver().ActiveCompany(c.Query("company_id"))
		if err != nil {
			fail(c, err, "")
			return
		}
		lib, err := p.library(c.Request.Context(), companyID)
		if err != nil {
			fail(c, err, "Could not load the media library")
			return
		}
		c.Set(libraryKey, lib)
		c.Next()
	}
}
