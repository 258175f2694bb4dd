// Package sla derives SLA deadlines and status from a ticket's timestamps and budget snapshot.
// Nothing here touches storage; deadlines are recomputed on every read rather than stored.
package sla

import (
	"math"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// DefaultWarningRatio is the elapsed fraction of a budget at which a warning fires.
const DefaultWarningRatio = 0.8

// View is the derived SLA state of a ticket at a point in time.
// The hours-until fields are signed so an overdue ticket reports how far past the deadline it is.
type View struct {
	HoursSinceCreated          float64
	HoursUntilResponseBreach   *float64
	HoursUntilResolutionBreach *float64
	Status                     domain.SLAStatus
	Exempt                     bool
}

// HoursRemaining returns the signed hours left on the milestone named by the view's status.
func (v View) HoursRemaining() float64 {
	switch v.Status.Kind() {
	case domain.SLAKindResponse:
		if v.HoursUntilResponseBreach != nil {
			return *v.HoursUntilResponseBreach
		}
	case domain.SLAKindResolution:
		if v.HoursUntilResolutionBreach != nil {
			return *v.HoursUntilResolutionBreach
		}
	}
	return 0
}

// Calculator evaluates tickets against their SLA snapshot.
type Calculator struct {
	warningRatio float64
}

// NewCalculator builds a calculator; ratios outside (0,1) fall back to DefaultWarningRatio.
func NewCalculator(warningRatio float64) Calculator {
	if warningRatio <= 0 || warningRatio >= 1 {
		warningRatio = DefaultWarningRatio
	}
	return Calculator{warningRatio: warningRatio}
}

// WarningRatio returns the configured ratio.
func (c Calculator) WarningRatio() float64 {
	if c.warningRatio == 0 {
		return DefaultWarningRatio
	}
	return c.warningRatio
}

// Evaluate computes the SLA view of ticket at now.
// Resolution is checked before response: a resolution breach outranks everything else.
// Resolved tickets report no resolution deadline, so they read within_sla unless the response SLA says otherwise.
func (c Calculator) Evaluate(ticket *domain.Ticket, now time.Time) View {
	elapsed := now.Sub(ticket.CreatedAt).Hours()
	view := View{
		HoursSinceCreated: math.Max(elapsed, 0),
		Status:            domain.SLAWithin,
		Exempt:            ticket.SLAResponseTimeHours == nil && ticket.SLAResolutionTimeHours == nil,
	}
	if view.Exempt {
		return view
	}

	if budget := ticket.SLAResolutionTimeHours; budget != nil && resolutionClockRunning(ticket) {
		remaining := *budget - elapsed
		view.HoursUntilResolutionBreach = &remaining
	}
	if budget := ticket.SLAResponseTimeHours; budget != nil && ticket.FirstResponseAt == nil && ticket.Status != domain.TicketStatusClosed {
		remaining := *budget - elapsed
		view.HoursUntilResponseBreach = &remaining
	}

	if status, ok := c.classify(view.HoursUntilResolutionBreach, ticket.SLAResolutionTimeHours,
		domain.SLAResolutionBreached, domain.SLAResolutionWarning); ok {
		view.Status = status
		return view
	}
	if status, ok := c.classify(view.HoursUntilResponseBreach, ticket.SLAResponseTimeHours,
		domain.SLAResponseBreached, domain.SLAResponseWarning); ok {
		view.Status = status
	}
	return view
}

// classify maps signed remaining hours to breached (past the deadline) or warning
// (no more than 1-ratio of the budget left).
func (c Calculator) classify(remaining, budget *float64, breached, warning domain.SLAStatus) (domain.SLAStatus, bool) {
	if remaining == nil || budget == nil {
		return "", false
	}
	if *remaining < 0 {
		return breached, true
	}
	if *remaining <= (1-c.WarningRatio())*(*budget) {
		return warning, true
	}
	return "", false
}

// The resolution clock stops once the ticket is resolved and is undefined after closing.
func resolutionClockRunning(ticket *domain.Ticket) bool {
	return ticket.Status != domain.TicketStatusClosed && ticket.ResolvedAt == nil
}

// ResponseMet compares the first-response delay to the response budget. Nil when exempt.
func ResponseMet(ticket *domain.Ticket, respondedAt time.Time) *bool {
	return withinBudget(ticket.CreatedAt, respondedAt, ticket.SLAResponseTimeHours)
}

// ResolutionMet compares the resolution delay to the resolution budget. Nil when exempt.
func ResolutionMet(ticket *domain.Ticket, resolvedAt time.Time) *bool {
	return withinBudget(ticket.CreatedAt, resolvedAt, ticket.SLAResolutionTimeHours)
}

func withinBudget(start, end time.Time, budget *float64) *bool {
	if budget == nil {
		return nil
	}
	met := end.Sub(start).Hours() <= *budget
	return &met
}

// DisplayHours clamps a signed hour value for presentation only.
func DisplayHours(hours float64) float64 {
	return math.Max(roundHours(hours), 0)
}

func roundHours(hours float64) float64 {
	return math.Round(hours*100) / 100
}
