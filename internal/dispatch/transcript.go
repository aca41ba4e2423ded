package dispatch

import (
	"sort"

	"github.com/sowerflow/sowerflow/internal/account"
	"github.com/sowerflow/sowerflow/internal/ai"
	"github.com/sowerflow/sowerflow/internal/conversation"
)

// Transcript projects events into generator turns ordered by occurrence.
// Echoes are human takeovers, not the assistant's words, so they are left out
// along with events that carry no text.
func Transcript(events []conversation.Event) []ai.Message {
	sorted := make([]conversation.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OccurredAt < sorted[j].OccurredAt })

	out := make([]ai.Message, 0, len(sorted))
	for _, e := range sorted {
		if e.TextSummary == "" {
			continue
		}
		switch {
		case e.Direction == conversation.DirectionReceived:
			out = append(out, ai.Message{Role: ai.RoleUser, Text: e.TextSummary})
		case e.Direction == conversation.DirectionSent && !e.IsEcho:
			out = append(out, ai.Message{Role: ai.RoleAssistant, Text: e.TextSummary})
		}
	}
	return out
}

func tenantContext(p *account.Profile) ai.Tenant {
	t := ai.Tenant{
		Username:       p.Username,
		Product:        p.Onboarding.Product,
		Offer:          p.Onboarding.Offer,
		CallInfo:       p.Onboarding.CallInfo,
		SchedulingLink: p.Onboarding.SchedulingLink,
	}
	for _, item := range p.Onboarding.Pricing {
		t.Pricing = append(t.Pricing, ai.PricingItem{Name: item.Name, Price: item.Price})
	}
	return t
}
