package workflow

import (
	"testing"

	"github.com/ahfmawlrl/sns-solution/pkg/models"
)

func TestAllowed(t *testing.T) {
	tests := []struct {
		name string
		role models.Role
		from models.ContentStatus
		to   models.ContentStatus
		want bool
	}{
		{"operator submits draft", models.RoleOperator, models.ContentDraft, models.ContentReview, true},
		{"manager submits draft", models.RoleManager, models.ContentDraft, models.ContentReview, true},
		{"client submits draft", models.RoleClient, models.ContentDraft, models.ContentReview, false},

		{"manager forwards to client review", models.RoleManager, models.ContentReview, models.ContentClientReview, true},
		{"operator forwards to client review", models.RoleOperator, models.ContentReview, models.ContentClientReview, false},
		{"admin forwards to client review", models.RoleAdmin, models.ContentReview, models.ContentClientReview, true},

		{"client approves", models.RoleClient, models.ContentClientReview, models.ContentApproved, true},
		{"client rejects", models.RoleClient, models.ContentClientReview, models.ContentRejected, true},
		{"operator approves", models.RoleOperator, models.ContentClientReview, models.ContentApproved, false},
		{"manager approves on client's behalf", models.RoleManager, models.ContentClientReview, models.ContentApproved, true},

		{"operator reworks rejection", models.RoleOperator, models.ContentRejected, models.ContentDraft, true},
		{"client reworks rejection", models.RoleClient, models.ContentRejected, models.ContentDraft, true},

		{"system publishes", models.RoleSystem, models.ContentApproved, models.ContentPublished, true},
		{"admin publishes by hand", models.RoleAdmin, models.ContentApproved, models.ContentPublished, false},
		{"operator publishes by hand", models.RoleOperator, models.ContentApproved, models.ContentPublished, false},

		{"draft skips straight to approved", models.RoleAdmin, models.ContentDraft, models.ContentApproved, false},
		{"review skips client review", models.RoleAdmin, models.ContentReview, models.ContentApproved, false},
		{"published moves backwards", models.RoleAdmin, models.ContentPublished, models.ContentDraft, false},
		{"same status", models.RoleAdmin, models.ContentDraft, models.ContentDraft, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Allowed(tt.role, tt.from, tt.to); got != tt.want {
				t.Errorf("Allowed(%s, %s, %s) = %v, want %v", tt.role, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestValidEdge(t *testing.T) {
	valid := []struct{ from, to models.ContentStatus }{
		{models.ContentDraft, models.ContentReview},
		{models.ContentReview, models.ContentClientReview},
		{models.ContentClientReview, models.ContentApproved},
		{models.ContentClientReview, models.ContentRejected},
		{models.ContentRejected, models.ContentDraft},
		{models.ContentApproved, models.ContentPublished},
	}
	for _, e := range valid {
		if !ValidEdge(e.from, e.to) {
			t.Errorf("ValidEdge(%s, %s) = false, want true", e.from, e.to)
		}
	}

	invalid := []struct{ from, to models.ContentStatus }{
		{models.ContentDraft, models.ContentApproved},
		{models.ContentDraft, models.ContentPublished},
		{models.ContentReview, models.ContentApproved},
		{models.ContentApproved, models.ContentDraft},
		{models.ContentPublished, models.ContentReview},
	}
	for _, e := range invalid {
		if ValidEdge(e.from, e.to) {
			t.Errorf("ValidEdge(%s, %s) = true, want false", e.from, e.to)
		}
	}
}

func TestUrgentAllowed(t *testing.T) {
	urgent := []struct{ from, to models.ContentStatus }{
		{models.ContentReview, models.ContentClientReview},
		{models.ContentClientReview, models.ContentApproved},
		{models.ContentClientReview, models.ContentRejected},
	}
	for _, e := range urgent {
		if !UrgentAllowed(e.from, e.to) {
			t.Errorf("UrgentAllowed(%s, %s) = false, want true", e.from, e.to)
		}
	}

	plain := []struct{ from, to models.ContentStatus }{
		{models.ContentDraft, models.ContentReview},
		{models.ContentRejected, models.ContentDraft},
		{models.ContentApproved, models.ContentPublished},
	}
	for _, e := range plain {
		if UrgentAllowed(e.from, e.to) {
			t.Errorf("UrgentAllowed(%s, %s) = true, want false", e.from, e.to)
		}
	}
}
