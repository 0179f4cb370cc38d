package policy

import (
	"strings"

	"quiz-attempt-service/internal/domain"
)

// Capability names an action guarded by the policy.
type Capability string

const (
	StartAttempt      Capability = "attempt:start"
	SubmitAnswer      Capability = "attempt:answer"
	CloseAttempt      Capability = "attempt:close"
	ViewAttempt       Capability = "attempt:view"
	RegradeAttempt    Capability = "attempt:regrade"
	IssueCertificate  Capability = "certificate:issue"
	VerifyCertificate Capability = "certificate:verify"
	ViewLeaderboard   Capability = "leaderboard:view"
	ViewHiddenResults Capability = "leaderboard:view-hidden"
)

// Scope says which resource relationship a capability additionally requires.
type Scope int

const (
	// ScopeNone needs only the role permission.
	ScopeNone Scope = iota
	// ScopeOwner needs the actor to own the attempt, whatever the role.
	ScopeOwner
	// ScopeAuthor needs the actor to author the quiz; admins bypass.
	ScopeAuthor
)

var scopes = map[Capability]Scope{
	SubmitAnswer:      ScopeOwner,
	CloseAttempt:      ScopeOwner,
	ViewAttempt:       ScopeOwner,
	IssueCertificate:  ScopeOwner,
	RegradeAttempt:    ScopeAuthor,
	ViewHiddenResults: ScopeAuthor,
}

// Resource carries the relationships a capability check may need.
type Resource struct {
	OwnerID  string
	AuthorID string
}

// RolePermissions is the default role table. Patterns ending in '*' match by prefix.
var RolePermissions = map[domain.Role][]string{
	domain.RoleStudent: {
		"attempt:start",
		"attempt:answer",
		"attempt:close",
		"attempt:view",
		"certificate:*",
		"leaderboard:view",
	},
	domain.RoleTeacher: {
		"attempt:*",
		"certificate:*",
		"leaderboard:*",
	},
	domain.RoleAdmin: {
		"*",
	},
}

// Policy is the single capability check every core operation goes through.
type Policy struct {
	perms map[domain.Role][]string
}

func New(perms map[domain.Role][]string) *Policy {
	if perms == nil {
		perms = RolePermissions
	}
	return &Policy{perms: perms}
}

// Authorize returns nil when the actor may exercise the capability on the resource.
func (p *Policy) Authorize(actor domain.Actor, c Capability, res Resource) error {
	if actor.UserID == "" || !p.has(actor.Role, string(c)) {
		return domain.ErrForbidden
	}
	switch scopes[c] {
	case ScopeOwner:
		if actor.UserID != res.OwnerID {
			return domain.ErrAttemptNotOwned
		}
	case ScopeAuthor:
		if actor.Role != domain.RoleAdmin && actor.UserID != res.AuthorID {
			return domain.ErrForbidden
		}
	}
	return nil
}

func (p *Policy) has(role domain.Role, perm string) bool {
	for _, pattern := range p.perms[role] {
		if matchPerm(pattern, perm) {
			return true
		}
	}
	return false
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}
