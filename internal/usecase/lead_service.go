package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/xavierca1/conduit/internal/entity"
)

// casRetries bounds how often Transition re-reads a lead that changed under it.
const casRetries = 3

// LeadService owns the lead lifecycle new -> contacted -> replied -> engaged.
// Status only moves forward; every move is recorded as lead_status_changed.
type LeadService struct {
	Repo     LeadRepository
	Messages MessageRepository
	Jobs     JobRepository
	Events   *EventService
	Logger   *slog.Logger
}

func NewLeadService(repo LeadRepository, messages MessageRepository, jobs JobRepository, events *EventService, logger *slog.Logger) *LeadService {
	return &LeadService{Repo: repo, Messages: messages, Jobs: jobs, Events: events, Logger: logger}
}

func (s *LeadService) Create(ctx context.Context, input CreateLeadInput) (*entity.Lead, error) {
	if err := ValidateCreateLeadInput(input); err != nil {
		return nil, err
	}

	lead, err := entity.NewLead(input.Name, input.Email, input.Phone, input.Metadata)
	if err != nil {
		return nil, ValidationErrors{{Field: "lead", Message: err.Error()}}
	}
	if err := s.Repo.Create(ctx, lead); err != nil {
		return nil, fmt.Errorf("create lead: %w", err)
	}

	s.Events.Log(ctx, lead.ID, entity.EventLeadCreated, map[string]any{
		"name":  lead.Name,
		"email": lead.Email,
		"phone": lead.Phone,
	})
	s.Logger.Info("lead created", "lead_id", lead.ID)
	return lead, nil
}

// Get returns entity.ErrLeadNotFound when the lead does not exist.
func (s *LeadService) Get(ctx context.Context, id string) (*entity.Lead, error) {
	return s.Repo.FindByID(ctx, id)
}

// Transition moves a lead to target. Moves that are not strictly forward fail
// with *entity.TransitionError. The write is a compare-and-set on the status
// read, so two concurrent callers can never walk a lead backwards.
func (s *LeadService) Transition(ctx context.Context, id string, target entity.LeadStatus, reason string) error {
	for range casRetries {
		lead, err := s.Repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !lead.Status.CanTransitionTo(target) {
			return &entity.TransitionError{LeadID: id, From: lead.Status, To: target}
		}

		ok, err := s.Repo.UpdateStatus(ctx, id, lead.Status, target)
		if err != nil {
			return fmt.Errorf("update lead status: %w", err)
		}
		if !ok {
			s.Logger.Debug("lead status changed concurrently, re-reading", "lead_id", id)
			continue
		}

		s.Events.Log(ctx, id, entity.EventLeadStatusChanged, map[string]any{
			"old_status": lead.Status,
			"new_status": target,
			"reason":     reason,
		})
		s.Logger.Info("lead status updated", "lead_id", id, "old_status", lead.Status, "new_status", target)
		return nil
	}
	return fmt.Errorf("lead %s: status kept changing while moving to %q: %w", id, target, entity.ErrInvalidTransition)
}

// Advance moves the lead to target only when its current status is one of
// from. It reports whether the lead moved; losing a race to another writer is
// not an error.
func (s *LeadService) Advance(ctx context.Context, id string, from []entity.LeadStatus, target entity.LeadStatus, reason string) (bool, error) {
	lead, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	if !slices.Contains(from, lead.Status) {
		return false, nil
	}

	err = s.Transition(ctx, id, target, reason)
	if errors.Is(err, entity.ErrInvalidTransition) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Timeline loads the lead with its messages, jobs and events, newest first.
func (s *LeadService) Timeline(ctx context.Context, id string) (*Timeline, error) {
	lead, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tl := &Timeline{Lead: lead}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tl.Messages, err = s.Messages.ListByLead(gctx, id, 0)
		return err
	})
	g.Go(func() error {
		var err error
		tl.Jobs, err = s.Jobs.ListByLead(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		tl.Events, err = s.Events.ListByLead(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load timeline: %w", err)
	}

	if tl.Messages == nil {
		tl.Messages = []*entity.Message{}
	}
	if tl.Jobs == nil {
		tl.Jobs = []*entity.Job{}
	}
	if tl.Events == nil {
		tl.Events = []*entity.Event{}
	}
	return tl, nil
}
