package treasury

import (
	"fmt"
	"sort"

	"SupplySentinel/internal/model"
	"SupplySentinel/internal/token"

	"github.com/holiman/uint256"
)

// Health scores the treasury from 0 to 100 using budget utilization and
// remaining runway. Runway assumes every category spends its full monthly
// limit, the worst sustained case.
func (w *Workflow) Health() *model.TreasuryHealth {
	w.mu.Lock()
	defer w.mu.Unlock()

	h := &model.TreasuryHealth{}
	totalLimit := new(uint256.Int)
	totalCommitted := new(uint256.Int)

	cats := make([]model.Category, 0, len(w.budgets))
	for cat := range w.budgets {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	for _, cat := range cats {
		b := w.budgets[cat]
		totalLimit.Add(totalLimit, b.MonthlyLimit)
		totalCommitted.Add(totalCommitted, b.Committed)
		util := b.UtilizationPct()
		status := "healthy"
		switch {
		case util >= criticalThresholdPct:
			status = "critical"
		case util >= warnThresholdPct:
			status = "warning"
		}
		h.Categories = append(h.Categories, model.BudgetStatus{
			Category:       cat,
			MonthlyLimit:   new(uint256.Int).Set(b.MonthlyLimit),
			Committed:      new(uint256.Int).Set(b.Committed),
			Remaining:      new(uint256.Int).Sub(b.MonthlyLimit, b.Committed),
			UtilizationPct: util,
			Status:         status,
		})
	}

	if !totalLimit.IsZero() {
		h.UtilizationPct = (&model.Budget{MonthlyLimit: totalLimit, Committed: totalCommitted}).UtilizationPct()
		balance := w.ledger.Balance(model.PoolAccount(model.PoolTreasury))
		months, _ := token.ToDecimal(balance, 0).Div(token.ToDecimal(totalLimit, 0)).Float64()
		h.RunwayMonths = months
	}

	// Utilization costs up to 50 points, thin runway up to 40.
	score := 100
	score -= int(h.UtilizationPct / 2)
	switch {
	case h.RunwayMonths < 6:
		score -= 40
	case h.RunwayMonths < 12:
		score -= 20
	case h.RunwayMonths < 24:
		score -= 10
	}
	if score < 0 {
		score = 0
	}
	h.Score = score
	switch {
	case score >= 75:
		h.Status = "healthy"
	case score >= 50:
		h.Status = "caution"
	default:
		h.Status = "critical"
	}

	for _, c := range h.Categories {
		if c.Status == "critical" {
			h.Recommendations = append(h.Recommendations,
				fmt.Sprintf("%s budget is %.1f%% committed; defer non-essential proposals", c.Category, c.UtilizationPct))
		}
	}
	if h.RunwayMonths > 0 && h.RunwayMonths < 12 {
		h.Recommendations = append(h.Recommendations,
			fmt.Sprintf("runway is %.1f months at full budget spend; consider lowering monthly limits", h.RunwayMonths))
	}
	return h
}
