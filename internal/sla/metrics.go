package sla

import (
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

// DefaultAtRiskResolutionHours is the budget assumed for at-risk counting when a ticket has none.
const DefaultAtRiskResolutionHours = 72

// ComputeMetrics aggregates compliance over tickets. The caller narrows tickets to the date range.
func (c Calculator) ComputeMetrics(tickets []domain.Ticket, now time.Time) domain.SLAMetrics {
	metrics := domain.SLAMetrics{TotalTickets: len(tickets)}

	var responseSum, resolutionSum float64
	var responded, resolved int
	for i := range tickets {
		t := &tickets[i]
		if t.ResponseSLAMet != nil {
			if *t.ResponseSLAMet {
				metrics.ResponseSLAMet++
			} else {
				metrics.ResponseSLABreached++
			}
		}
		if t.ResolutionSLAMet != nil {
			if *t.ResolutionSLAMet {
				metrics.ResolutionSLAMet++
			} else {
				metrics.ResolutionSLABreached++
			}
		}
		if t.FirstResponseAt != nil {
			responseSum += t.FirstResponseAt.Sub(t.CreatedAt).Hours()
			responded++
		}
		if t.ResolvedAt != nil {
			resolutionSum += t.ResolvedAt.Sub(t.CreatedAt).Hours()
			resolved++
		}
		if c.atRisk(t, now) {
			metrics.TicketsAtRisk++
		}
	}
	if responded > 0 {
		metrics.AvgResponseTimeHours = roundHours(responseSum / float64(responded))
	}
	if resolved > 0 {
		metrics.AvgResolutionTimeHours = roundHours(resolutionSum / float64(resolved))
	}
	return metrics
}

func (c Calculator) atRisk(t *domain.Ticket, now time.Time) bool {
	if t.Status == domain.TicketStatusResolved || t.Status == domain.TicketStatusClosed {
		return false
	}
	budget := float64(DefaultAtRiskResolutionHours)
	if t.SLAResolutionTimeHours != nil {
		budget = *t.SLAResolutionTimeHours
	}
	return now.Sub(t.CreatedAt).Hours() >= budget*c.WarningRatio()
}
