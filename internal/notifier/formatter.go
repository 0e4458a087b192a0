package notifier

import (
	"fmt"
	"strings"
	"time"

	"SupplySentinel/internal/model"
	"SupplySentinel/internal/token"

	"github.com/holiman/uint256"
)

// FormatLargeTransfer formats a large-transfer alert.
func FormatLargeTransfer(evt *LargeTransferEvent) string {
	var b strings.Builder
	b.WriteString("🚨 <b>Large transfer</b>\n\n")
	b.WriteString(fmt.Sprintf("From: %s\n", evt.From))
	b.WriteString(fmt.Sprintf("To: %s\n", evt.To))
	b.WriteString(fmt.Sprintf("Amount: %s tokens\n", token.WholeString(evt.Amount)))
	if !evt.GuardEnabled {
		b.WriteString("\n⚠️ transfer guard is currently <b>disabled</b>\n")
	}
	return b.String()
}

// FormatBudgetThreshold formats a budget utilization alert.
func FormatBudgetThreshold(evt *BudgetThresholdEvent) string {
	icon := "⚠️"
	if evt.Level == "critical" {
		icon = "🚨"
	}
	return fmt.Sprintf("%s <b>Budget %s</b>\n\nCategory: %s\nMonthly utilization: %.1f%%\n",
		icon, evt.Level, evt.Category, evt.UtilizationPct)
}

// FormatPoolStatus formats the supply distribution across pools and holders.
func FormatPoolStatus(pools []*model.Pool, holdersTotal, supply *uint256.Int) string {
	var b strings.Builder
	b.WriteString("📦 <b>Supply status</b>\n\n")
	b.WriteString(fmt.Sprintf("Total supply: %s tokens\n\n", token.WholeString(supply)))
	for _, p := range pools {
		b.WriteString(fmt.Sprintf("%s: %s\n", p.ID, token.WholeString(p.Balance)))
	}
	b.WriteString(fmt.Sprintf("\nReleased to holders: %s\n", token.WholeString(holdersTotal)))
	return b.String()
}

// FormatGuardStatus formats the transfer guard window usage.
func FormatGuardStatus(moved, cap *uint256.Int, enabled bool) string {
	var b strings.Builder
	b.WriteString("🛡 <b>Transfer guard</b>\n\n")
	if !enabled {
		b.WriteString("Status: <b>disabled</b> (administrative override)\n")
	} else {
		b.WriteString("Status: enabled\n")
	}
	b.WriteString(fmt.Sprintf("Window usage: %s / %s tokens\n",
		token.WholeString(moved), token.WholeString(cap)))
	return b.String()
}

// FormatSaleReport formats sale progress across tiers.
func FormatSaleReport(rep *model.SaleReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💰 <b>Private sale</b> | %s\n\n", time.Now().Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Sold: %s tokens\n", token.WholeString(rep.TokensSold)))
	b.WriteString(fmt.Sprintf("Remaining: %s tokens\n", token.WholeString(rep.TokensRemaining)))
	b.WriteString(fmt.Sprintf("Raised: $%s\n", rep.RaisedUSD.StringFixed(2)))
	if rep.WeightedAvgPrice.IsPositive() {
		b.WriteString(fmt.Sprintf("Weighted avg price: $%s\n", rep.WeightedAvgPrice.StringFixed(6)))
	}
	b.WriteString(fmt.Sprintf("Investors: %d (%d whitelisted)\n\n", rep.Investors, rep.Whitelisted))

	b.WriteString("📈 <b>Tiers:</b>\n")
	for _, t := range rep.Tiers {
		status := "available"
		if t.SoldOut {
			status = "sold out"
		}
		b.WriteString(fmt.Sprintf("  #%d $%s: %s sold, %s left (%s)\n",
			t.Index, t.UnitPriceUSD.StringFixed(3),
			token.WholeString(t.Sold), token.WholeString(t.Remaining), status))
	}
	return b.String()
}

// FormatTreasuryHealth formats the treasury health report.
func FormatTreasuryHealth(h *model.TreasuryHealth) string {
	var b strings.Builder
	b.WriteString("🏦 <b>Treasury health</b>\n\n")
	b.WriteString(fmt.Sprintf("Score: %d/100 (%s)\n", h.Score, h.Status))
	b.WriteString(fmt.Sprintf("Monthly utilization: %.1f%%\n", h.UtilizationPct))
	if h.RunwayMonths > 0 {
		b.WriteString(fmt.Sprintf("Runway: %.1f months\n", h.RunwayMonths))
	}
	b.WriteString("\n<b>Budgets:</b>\n")
	for _, c := range h.Categories {
		b.WriteString(fmt.Sprintf("  %s: %s / %s (%.1f%%, %s)\n",
			c.Category, token.WholeString(c.Committed),
			token.WholeString(c.MonthlyLimit), c.UtilizationPct, c.Status))
	}
	if len(h.Recommendations) > 0 {
		b.WriteString("\n")
		for _, r := range h.Recommendations {
			b.WriteString(fmt.Sprintf("• %s\n", r))
		}
	}
	return b.String()
}

// FormatVestingStatus formats the vesting scheduler summary.
func FormatVestingStatus(schedules, active int, total, released *uint256.Int, paused bool) string {
	var b strings.Builder
	b.WriteString("⏳ <b>Vesting</b>\n\n")
	if paused {
		b.WriteString("Status: <b>paused</b>\n")
	} else {
		b.WriteString("Status: active\n")
	}
	b.WriteString(fmt.Sprintf("Schedules: %d (%d still vesting)\n", schedules, active))
	b.WriteString(fmt.Sprintf("Locked total: %s tokens\n", token.WholeString(total)))
	b.WriteString(fmt.Sprintf("Released: %s tokens\n", token.WholeString(released)))
	return b.String()
}

// FormatMonthlySummary formats the monthly treasury reset notice.
func FormatMonthlySummary(h *model.TreasuryHealth, month string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Monthly budget reset</b> | %s\n\n", month))
	b.WriteString("Category budgets reset ✅\n\n")
	b.WriteString(FormatTreasuryHealth(h))
	return b.String()
}
