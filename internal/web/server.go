// Package web is the portal's browser-facing server. Each browser session
// owns a backend client, a session manager and the media libraries it
// opened; their persisted state lives in a shared store under a per-session
// prefix.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/coffeestaff/portal/internal/media"
	"github.com/coffeestaff/portal/internal/session"
	"github.com/coffeestaff/portal/internal/store"
)

const cookieName = "portal_session"

// Options configures a Server.
type Options struct {
	BackendURL    string
	APITimeout    time.Duration
	SessionSecret []byte
	CookieSecure  bool
	CookieMaxAge  time.Duration
	// State is the shared store behind every browser session.
	State store.Store
	// Lister overrides where folder listings come from. Defaults to the
	// backend API of each session.
	Lister         media.ObjectLister
	PreviewRefresh time.Duration
	MaxUploadSize  int64
}

// Server is the portal HTTP server.
type Server struct {
	opts     Options
	registry *registry
	engine   *gin.Engine
}

// NewServer creates a server.
func NewServer(opts Options) *Server {
	if opts.APITimeout <= 0 {
		opts.APITimeout = 10 * time.Second
	}
	if opts.CookieMaxAge <= 0 {
		opts.CookieMaxAge = 24 * time.Hour
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 20 << 20
	}
	if opts.State == nil {
		opts.State = store.NewMemory()
	}
	s := &Server{opts: opts, registry: newRegistry(opts)}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Sweep closes browser sessions idle for longer than maxIdle. Their
// persisted state stays in the store and is restored on the next request.
func (s *Server) Sweep(maxIdle time.Duration) int {
	return s.registry.sweep(maxIdle)
}

// Close stops the background work of every session.
func (s *Server) Close() {
	s.registry.closeAll()
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	r.MaxMultipartMemory = s.opts.MaxUploadSize

	cookies := cookie.NewStore(s.opts.SessionSecret)
	cookies.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(s.opts.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(cookieName, cookies))

	r.GET("/health", s.handleHealth)

	public := r.Group("/", s.loadSession())
	{
		public.GET("/login", s.handleLoginInfo)
		public.POST("/login", s.handleLogin)
		public.GET("/login/oauth/:provider", s.handleOAuthStart)
		public.GET("/login/oauth/:provider/callback", s.handleOAuthCallback)
	}

	authed := r.Group("/", s.loadSession(), requireAuth())
	{
		authed.POST("/logout", s.handleLogout)
		authed.GET("/session", s.handleSession)
		authed.GET("/events", s.handleEvents)
	}

	selector := authed.Group("/select", guard(session.RouteSelector))
	{
		selector.GET("", s.handleSelectorOptions)
		selector.POST("", s.handleSelect)
		selector.POST("/retry", s.handleRetryRoles)
	}

	resolved := authed.Group("/", guard(session.RouteResolved))
	{
		resolved.GET("/profile", s.handleProfile)
		resolved.GET("/switch", s.handleSwitchOptions)
		resolved.POST("/switch", s.handleSwitch)
		resolved.GET("/companies", s.handleCompanies)
		resolved.POST("/companies", s.handleCreateCompany)
		resolved.GET("/companies/:id", s.handleCompany)
		resolved.POST("/rights", s.handleRights)
	}

	company := authed.Group("/", guard(session.RouteCompany))
	{
		company.PATCH("/companies/:id", s.handleUpdateCompany)

		lib := company.Group("/library", s.loadLibrary())
		lib.GET("", s.handleLibrary)
		lib.POST("/reload", s.handleReload)
		lib.GET("/tree", s.handleTree)
		lib.POST("/enter", s.handleEnter)
		lib.POST("/back", s.handleBack)
		lib.POST("/folders", s.handleCreateFolder)
		lib.PATCH("/folders", s.handleRenameFolder)
		lib.DELETE("/folders", s.handleDeleteFolder)
		lib.POST("/images", s.handleUpload)
		lib.PATCH("/images/:id", s.handleRenameImage)
		lib.GET("/images/:id/url", s.handleImageURL)
		lib.POST("/images/move", s.handleMoveImages)
		lib.DELETE("/images", s.handleDeleteImages)
		lib.POST("/selection", s.handleSelection)
		lib.POST("/previews", s.handlePreviews)
		lib.GET("/export", s.handleExport)
		lib.POST("/download", s.handleDownload)
	}

	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.registry.count()})
}

// detached returns a context for work that must outlive the request.
func detached(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
