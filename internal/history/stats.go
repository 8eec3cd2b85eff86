package history

import (
	"math"
	"sort"

	"github.com/Cyvadra/marketminds/internal/models"
)

// ComputePerformanceStats aggregates the closed entries of a journal.
// Entries with zero pnl count as trades but neither as wins nor losses.
func ComputePerformanceStats(entries []models.TradeJournalEntry) models.PerformanceStats {
	closed := make([]models.TradeJournalEntry, 0, len(entries))
	for _, e := range entries {
		if e.Closed() {
			closed = append(closed, e)
		}
	}
	if len(closed) == 0 {
		return models.PerformanceStats{}
	}

	var (
		wins, losses         int
		totalWins, totalLoss float64
		total                float64
	)
	for _, e := range closed {
		pnl := *e.PnL
		total += pnl
		switch {
		case pnl > 0:
			wins++
			totalWins += pnl
		case pnl < 0:
			losses++
			totalLoss += pnl
		}
	}
	totalLoss = math.Abs(totalLoss)

	stats := models.PerformanceStats{
		TotalTrades: len(closed),
		WinRate:     float64(wins) / float64(len(closed)) * 100,
		TotalPnL:    total,
		MaxDrawdown: maxDrawdown(closed),
	}
	if wins > 0 {
		stats.AverageWin = totalWins / float64(wins)
	}
	if losses > 0 {
		stats.AverageLoss = totalLoss / float64(losses)
	}
	if totalLoss > 0 {
		stats.ProfitFactor = totalWins / totalLoss
	}
	return stats
}

// maxDrawdown replays trades in timestamp order and returns the largest
// distance between the running total and its high watermark
func maxDrawdown(trades []models.TradeJournalEntry) float64 {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})

	var peak, running, worst float64
	for _, t := range trades {
		running += *t.PnL
		if running > peak {
			peak = running
		}
		if dd := peak - running; dd > worst {
			worst = dd
		}
	}
	return worst
}
