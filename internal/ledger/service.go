package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/supportdesk-backend/pkg/auth"
	"github.com/angelmondragon/supportdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supportdesk-backend/pkg/errors"
	"github.com/google/uuid"
)

// Service answers performance questions over the ledger.
type Service interface {
	Performance(ctx context.Context, principal auth.Principal, input PerformanceInput) (*Performance, error)
}

// PerformanceInput selects whose responses to count and over which window.
type PerformanceInput struct {
	Period    string
	ServiceID *uuid.UUID
}

// Performance is the number of assignments an agent received in a window.
type Performance struct {
	ServiceID      uuid.UUID               `json:"serviceId"`
	Period         enums.PerformancePeriod `json:"period"`
	TotalResponses int64                   `json:"totalResponses"`
	Since          *time.Time              `json:"since,omitempty"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, now func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if now == nil {
		now = time.Now
	}
	return &service{repo: repo, now: now}, nil
}

func (s *service) Performance(ctx context.Context, principal auth.Principal, input PerformanceInput) (*Performance, error) {
	period, err := enums.ParsePerformancePeriod(input.Period)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}

	var serviceID uuid.UUID
	switch principal.Role {
	case enums.RoleService:
		if input.ServiceID != nil && *input.ServiceID != principal.ID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "agents can only read their own statistics")
		}
		serviceID = principal.ID
	case enums.RoleAdmin:
		if input.ServiceID == nil || *input.ServiceID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "serviceId is required")
		}
		serviceID = *input.ServiceID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "statistics are restricted to support staff")
	}

	since := period.Since(s.now())
	total, err := s.repo.Count(ctx, serviceID, since)
	if err != nil {
		return nil, err
	}
	return &Performance{
		ServiceID:      serviceID,
		Period:         period,
		TotalResponses: total,
		Since:          since,
	}, nil
}
