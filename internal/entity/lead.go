package entity

import (
	"errors"
	"strings"
	"time"
)

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusEngaged   LeadStatus = "engaged"
)

// leadStatusRank orders the lifecycle. A lead only ever moves to a higher rank.
var leadStatusRank = map[LeadStatus]int{
	LeadStatusNew:       0,
	LeadStatusContacted: 1,
	LeadStatusReplied:   2,
	LeadStatusEngaged:   3,
}

func (s LeadStatus) Valid() bool {
	_, ok := leadStatusRank[s]
	return ok
}

// CanTransitionTo reports whether target is strictly ahead of s in the lifecycle.
// Skipping a stage (new -> replied) is allowed, going back or staying put is not.
func (s LeadStatus) CanTransitionTo(target LeadStatus) bool {
	from, ok := leadStatusRank[s]
	if !ok {
		return false
	}
	to, ok := leadStatusRank[target]
	if !ok {
		return false
	}
	return to > from
}

type Lead struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Status    LeadStatus     `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewLead builds a lead in the "new" state. The ID is assigned by the store.
func NewLead(name, email, phone string, metadata map[string]any) (*Lead, error) {
	lead := &Lead{
		Name:     strings.TrimSpace(name),
		Email:    strings.TrimSpace(email),
		Phone:    strings.TrimSpace(phone),
		Status:   LeadStatusNew,
		Metadata: metadata,
	}
	if lead.Metadata == nil {
		lead.Metadata = map[string]any{}
	}

	if err := lead.Validate(); err != nil {
		return nil, err
	}
	return lead, nil
}

func (l *Lead) Validate() error {
	if l.Name == "" {
		return errors.New("name is required")
	}
	if l.Email == "" && l.Phone == "" {
		return errors.New("either email or phone is required")
	}
	return nil
}
