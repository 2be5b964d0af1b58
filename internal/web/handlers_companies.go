package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coffeestaff/portal/internal/companies"
	"github.com/coffeestaff/portal/internal/models"
	"github.com/coffeestaff/portal/internal/notify"
	"github.com/coffeestaff/portal/internal/protocol"
	"github.com/coffeestaff/portal/internal/session"
)

type companyPatchRequest struct {
	CompanyName string `json:"company_name"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
}

type rightsRequest struct {
	Action    companies.Action `json:"action" binding:"required"`
	Role      models.RoleKind  `json:"role" binding:"required"`
	UserID    string           `json:"user_id" binding:"required"`
	CompanyID string           `json:"company_id"`
}

// canManage reports whether the session may edit companies and rights:
// company administrators within their company, super admins anywhere.
func canManage(r *session.Resolver) bool {
	switch sel := r.Selected().(type) {
	case session.SuperAdminRole:
		return true
	case session.CompanyRole:
		return sel.Level == models.RoleAdmin
	case nil:
		return r.Holds(models.RoleSuperAdmin)
	}
	return false
}

func isSuperAdmin(r *session.Resolver) bool {
	switch r.Selected().(type) {
	case session.SuperAdminRole:
		return true
	case nil:
		return r.Holds(models.RoleSuperAdmin)
	}
	return false
}

func (s *Server) handleCompanies(c *gin.Context) {
	list, err := portalOf(c).companies.List(c.Request.Context())
	if err != nil {
		fail(c, err, "Could not load companies")
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": companies.Sorted(list)})
}

func (s *Server) handleCompany(c *gin.Context) {
	co, err := portalOf(c).companies.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err, "Could not load the company")
		return
	}
	c.JSON(http.StatusOK, co)
}

func (s *Server) handleUpdateCompany(c *gin.Context) {
	p := portalOf(c)
	r := p.manager.Resolver()
	if !canManage(r) {
		fail(c, errForbidden, "")
		return
	}
	companyID, err := r.ActiveCompany(c.Param("id"))
	if err != nil {
		fail(c, err, "")
		return
	}
	var req companyPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	co, err := p.companies.Update(c.Request.Context(), companyID, companies.Patch{
		CompanyName: req.CompanyName,
		Address:     req.Address,
		Phone:       req.Phone,
	})
	if err != nil {
		status, msg := classify(err, "Could not save the company")
		p.notes.Notify(notify.Failure("update_company", msg))
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	p.notes.Notify(notify.Success("update_company", "Company saved"))
	c.JSON(http.StatusOK, co)
}

func (s *Server) handleCreateCompany(c *gin.Context) {
	p := portalOf(c)
	if !isSuperAdmin(p.manager.Resolver()) {
		fail(c, errForbidden, "")
		return
	}
	var req protocol.CompanyCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	co, err := p.companies.Create(c.Request.Context(), req)
	if err != nil {
		status, msg := classify(err, "Could not create the company")
		p.notes.Notify(notify.Failure("create_company", msg))
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	p.notes.Notify(notify.Success("create_company", "Company "+co.CompanyName+" created"))
	c.JSON(http.StatusCreated, co)
}

func (s *Server) handleRights(c *gin.Context) {
	p := portalOf(c)
	r := p.manager.Resolver()
	if !canManage(r) {
		fail(c, errForbidden, "")
		return
	}
	var req rightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "action, role and user_id are required"})
		return
	}

	d := companies.Delegation{Action: req.Action, Role: req.Role, UserID: req.UserID}
	if req.Role.CompanyScoped() {
		companyID, err := r.ActiveCompany(req.CompanyID)
		if err != nil {
			fail(c, err, "")
			return
		}
		d.CompanyID = companyID
	}

	if err := p.rights.Delegate(c.Request.Context(), d); err != nil {
		status, msg := classify(err, "Could not change rights")
		p.notes.Notify(notify.Failure("rights", msg))
		c.AbortWithStatusJSON(status, gin.H{"error": msg})
		return
	}
	p.notes.Notify(notify.Success("rights", "Rights updated"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
