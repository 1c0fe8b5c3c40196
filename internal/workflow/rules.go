package workflow

import (
	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

// transition identifies one edge in the approval workflow.
type transition struct {
	From models.ContentStatus
	To   models.ContentStatus
}

// allowedRoles maps each valid workflow edge to the roles permitted to take
// it. Edges not in this map are invalid for everyone. The published edge is
// system-only: operators retry a failed publish through the publish API, not
// by moving the content status by hand.
var allowedRoles = map[transition][]models.Role{
	{From: models.ContentDraft, To: models.ContentReview}: {
		models.RoleOperator, models.RoleManager, models.RoleAdmin,
	},
	{From: models.ContentReview, To: models.ContentClientReview}: {
		models.RoleManager, models.RoleAdmin,
	},
	{From: models.ContentClientReview, To: models.ContentApproved}: {
		models.RoleClient, models.RoleManager, models.RoleAdmin,
	},
	{From: models.ContentClientReview, To: models.ContentRejected}: {
		models.RoleClient, models.RoleManager, models.RoleAdmin,
	},
	{From: models.ContentRejected, To: models.ContentDraft}: {
		models.RoleOperator, models.RoleManager, models.RoleClient, models.RoleAdmin,
	},
	{From: models.ContentApproved, To: models.ContentPublished}: {
		models.RoleSystem,
	},
}

// urgentEdges are the edges that may carry the urgent flag: forwarding to
// the client and the client's verdict.
var urgentEdges = map[transition]bool{
	{From: models.ContentReview, To: models.ContentClientReview}:   true,
	{From: models.ContentClientReview, To: models.ContentApproved}: true,
	{From: models.ContentClientReview, To: models.ContentRejected}: true,
}

// UrgentAllowed reports whether the urgent flag may accompany from -> to.
// Urgency raises notification priority on these edges; it never unlocks
// additional ones.
func UrgentAllowed(from, to models.ContentStatus) bool {
	return urgentEdges[transition{From: from, To: to}]
}

// ValidEdge reports whether from -> to is a workflow edge at all,
// independent of who is asking. Urgent transitions follow the same edges;
// urgency raises notification priority, it never skips review stages.
func ValidEdge(from, to models.ContentStatus) bool {
	_, ok := allowedRoles[transition{From: from, To: to}]
	return ok
}

// Allowed reports whether the role may take the from -> to edge.
func Allowed(role models.Role, from, to models.ContentStatus) bool {
	roles, ok := allowedRoles[transition{From: from, To: to}]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// ReviewersFor returns the roles that act on content sitting in the given
// status, used to pick approval request recipients.
func ReviewersFor(status models.ContentStatus) []models.Role {
	switch status {
	case models.ContentReview:
		return []models.Role{models.RoleManager}
	case models.ContentClientReview:
		return []models.Role{models.RoleClient}
	default:
		return nil
	}
}
