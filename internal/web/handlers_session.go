package web

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/coffeestaff/portal/internal/client"
	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/session"
)

type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type optionRequest struct {
	OptionID string `json:"option_id" form:"option_id" binding:"required"`
}

// landing returns where a freshly authenticated session goes next.
func landing(p *portal) string {
	if target := p.manager.Resolver().Guard(session.RouteResolved); target != "" {
		return target
	}
	return session.PathLanding
}

func sessionBody(p *portal) gin.H {
	return gin.H{
		"logged_in": p.manager.LoggedIn(),
		"user_id":   p.manager.UserID(),
		"context":   p.manager.Resolver().Snapshot(),
	}
}

func (s *Server) handleLoginInfo(c *gin.Context) {
	providers := make([]gin.H, 0, len(client.OAuthProviders))
	for _, pr := range client.OAuthProviders {
		providers = append(providers, gin.H{
			"id":   pr.ID,
			"name": pr.Name,
			"url":  "/login/oauth/" + pr.ID,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"logged_in": portalOf(c).manager.LoggedIn(),
		"providers": providers,
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	p := portalOf(c)
	p.closeLibraries()

	if err := p.manager.Login(c.Request.Context(), req.Username, req.Password); err != nil {
		if client.IsUnauthorized(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Incorrect username or password"})
			return
		}
		fail(c, err, "Login failed")
		return
	}
	logging.WithContext(c.Request.Context()).Info("user logged in", logging.String("user_id", p.manager.UserID()))

	body := sessionBody(p)
	body["redirect"] = landing(p)
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleOAuthStart(c *gin.Context) {
	provider := c.Param("provider")
	if _, ok := client.LookupOAuthProvider(provider); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown login provider %q", provider)})
		return
	}
	c.Redirect(http.StatusFound, portalOf(c).api.OAuthURL(provider))
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	p := portalOf(c)
	code := c.Query("code")
	if code == "" {
		c.Redirect(http.StatusFound, session.PathLogin+"?error=missing_code")
		return
	}
	p.closeLibraries()
	if err := p.manager.LoginOAuth(c.Request.Context(), c.Param("provider"), code); err != nil {
		_, msg := classify(err, "Login failed")
		c.Redirect(http.StatusFound, session.PathLogin+"?error="+url.QueryEscape(msg))
		return
	}
	c.Redirect(http.StatusFound, landing(p))
}

func (s *Server) handleLogout(c *gin.Context) {
	p := portalOf(c)
	p.closeLibraries()
	if err := p.manager.Logout(c.Request.Context()); err != nil {
		logging.WithContext(c.Request.Context()).Warn("logout cleanup failed", logging.Err(err))
	}
	s.registry.drop(p.id)

	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := sess.Save(); err != nil {
		logging.WithContext(c.Request.Context()).Warn("clear browser session failed", logging.Err(err))
	}
	c.JSON(http.StatusOK, gin.H{"redirect": session.PathLogin})
}

func (s *Server) handleSession(c *gin.Context) {
	c.JSON(http.StatusOK, sessionBody(portalOf(c)))
}

func (s *Server) handleSelectorOptions(c *gin.Context) {
	c.JSON(http.StatusOK, portalOf(c).manager.Resolver().Snapshot())
}

func (s *Server) handleSelect(c *gin.Context) {
	var req optionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "option_id is required"})
		return
	}
	p := portalOf(c)
	if _, err := p.manager.Select(c.Request.Context(), req.OptionID); err != nil {
		fail(c, err, "Could not select this context")
		return
	}
	body := sessionBody(p)
	body["redirect"] = session.PathLanding
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleRetryRoles(c *gin.Context) {
	p := portalOf(c)
	if err := p.manager.RetryRoles(c.Request.Context()); err != nil {
		fail(c, err, "Could not load your roles")
		return
	}
	c.JSON(http.StatusOK, p.manager.Resolver().Snapshot())
}

func (s *Server) handleProfile(c *gin.Context) {
	p := portalOf(c)
	info, err := p.manager.Profile(c.Request.Context())
	if err != nil {
		fail(c, err, "Could not load your profile")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    info,
		"roles":   p.manager.Roles(),
		"context": p.manager.Resolver().Snapshot(),
	})
}

func (s *Server) handleSwitchOptions(c *gin.Context) {
	c.JSON(http.StatusOK, portalOf(c).manager.Resolver().Snapshot())
}

func (s *Server) handleSwitch(c *gin.Context) {
	var req optionRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "option_id is required"})
		return
	}
	p := portalOf(c)
	role, err := p.manager.Select(c.Request.Context(), req.OptionID)
	if err != nil {
		fail(c, err, "Could not switch context")
		return
	}
	p.notes.Notify(notify.Success("switch", "Now working as "+role.String()))
	body := sessionBody(p)
	body["redirect"] = session.PathLanding
	c.JSON(http.StatusOK, body)
}

// handleEvents streams notifications as server-sent events. Recent
// notifications are replayed first.
func (s *Server) handleEvents(c *gin.Context) {
	p := portalOf(c)
	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ch := p.notes.Subscribe()
	defer p.notes.Unsubscribe(ch)

	for _, n := range p.notes.Recent() {
		writeEvent(w, n)
	}
	w.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, n)
			w.Flush()
		}
	}
}

func writeEvent(w gin.ResponseWriter, n notify.Notification) {
	data, err := notify.Marshal(n)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Level, data)
}
