// Package access decides what the current session may navigate to. It is a
// UI affordance layer only; the server authorizes every request on its own.
package access

import (
	"go-portal-client/internal/session"
)

type Decision int

const (
	// DecisionPending means session state is still initializing: render
	// nothing, redirect nowhere.
	DecisionPending Decision = iota
	DecisionAllow
	// DecisionRedirect sends the visitor to sign-in, preserving the
	// originally requested path for the post-login return trip.
	DecisionRedirect
	// DecisionDeny renders an access-denied state in place, no redirect.
	DecisionDeny
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	case DecisionDeny:
		return "deny"
	default:
		return "unknown"
	}
}

type Result struct {
	Decision   Decision
	RedirectTo string
	ReturnTo   string
}

// Guard gates navigation against the session state machine.
type Guard struct {
	session    *session.Manager
	signInPath string
}

func NewGuard(sess *session.Manager, signInPath string) *Guard {
	return &Guard{session: sess, signInPath: signInPath}
}

// Check evaluates one navigation attempt. Public paths always render.
// Required roles only apply once authenticated; an empty set admits any
// authenticated user.
func (g *Guard) Check(path string, requiredRoles []string, public bool) Result {
	if g.session.Status() == session.StatusInitializing {
		return Result{Decision: DecisionPending}
	}

	if public {
		return Result{Decision: DecisionAllow}
	}

	if !g.session.Authenticated() {
		return Result{
			Decision:   DecisionRedirect,
			RedirectTo: g.signInPath,
			ReturnTo:   path,
		}
	}

	if len(requiredRoles) > 0 && !g.session.HasRole(requiredRoles...) {
		return Result{Decision: DecisionDeny}
	}

	return Result{Decision: DecisionAllow}
}
