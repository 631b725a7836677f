package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"mercator-hq/pricegate/pkg/cli"
	"mercator-hq/pricegate/pkg/pricing"
)

func price(p float64) string {
	return fmt.Sprintf("%.2f", p)
}

func percent(f float64) string {
	return fmt.Sprintf("%+.2f%%", f*100)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// styled renders s with style for text output only.
func styled(style lipgloss.Style, s string) string {
	if outputFmt != string(cli.FormatText) {
		return s
	}
	return style.Render(s)
}

func statusLabel(s pricing.Status) string {
	switch s {
	case pricing.StatusApplied:
		return styled(cli.SuccessStyle, string(s))
	case pricing.StatusManualReview, pricing.StatusPending:
		return styled(cli.WarnStyle, string(s))
	case pricing.StatusRejected:
		return styled(cli.ErrorStyle, string(s))
	}
	return styled(cli.MutedStyle, string(s))
}

func decisionTable(reqs []*pricing.DecisionRequest) *cli.Table {
	table := &cli.Table{Headers: []string{"ID", "Product", "Current", "Recommended", "Change", "Status", "Rule", "Created", "Expires", "Reason"}}
	for _, d := range reqs {
		table.Append(d.ID, d.ProductID, price(d.CurrentPrice), price(d.RecommendedPrice), percent(d.ChangePct()),
			statusLabel(d.Status), d.MatchedRuleID, timestamp(d.CreatedAt), timestamp(d.ExpiresAt), d.ApprovalReason)
	}
	return table
}
