package session

// Route classifies a screen by what it requires from the session.
type Route int

const (
	// RoutePublic needs nothing (login, OAuth callback).
	RoutePublic Route = iota
	// RouteSelector is the context selector screen.
	RouteSelector
	// RouteResolved needs a resolved context (profile, settings).
	RouteResolved
	// RouteCompany needs a company to operate on (media library,
	// company editing). Super admins qualify.
	RouteCompany
)

// Redirect targets.
const (
	PathLogin    = "/login"
	PathSelector = "/select"
	PathLanding  = "/profile"
)

// Guard returns where a request for route must be redirected, or "" when
// it may proceed.
func (r *Resolver) Guard(route Route) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if route == RoutePublic {
		return ""
	}
	switch r.state {
	case Uninitialized:
		return PathLogin
	case Resolving, AwaitingChoice:
		if route == RouteSelector {
			return ""
		}
		return PathSelector
	}

	// Resolved.
	switch route {
	case RouteSelector:
		return PathLanding
	case RouteCompany:
		switch r.selected.(type) {
		case CompanyRole, SuperAdminRole:
			return ""
		}
		if r.selected == nil {
			for _, role := range r.roles {
				if _, ok := role.(SuperAdminRole); ok {
					return ""
				}
			}
		}
		return PathLanding
	}
	return ""
}
