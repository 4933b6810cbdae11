package pipeline

import (
	"fmt"
	"strings"
	"sync"
)

// ModelRate holds per-million-token pricing.
type ModelRate struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// Known model rates in USD per million tokens. Unknown models fall back to
// the most expensive known rate so cost estimates never undershoot.
var modelRates = map[string]ModelRate{
	"claude-opus-4-1":   {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-sonnet-4-5": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-haiku-4-5":  {InputPerMTok: 1.00, OutputPerMTok: 5.00},
}

const (
	// cacheReadDiscount multiplies the input rate for cache-read tokens.
	cacheReadDiscount = 0.1
	// cacheWriteSurcharge multiplies the input rate for cache-write tokens.
	cacheWriteSurcharge = 1.25
)

// RoundUsage is one append-only ledger entry. A retried round records one
// entry per attempt.
type RoundUsage struct {
	Round               int
	Model               string
	InputTokens         int
	OutputTokens        int
	ContextTokens       int
	FileContentTokens   int
	BudgetTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
}

// Totals is the cumulative token usage across all rounds.
type Totals struct {
	InputTokens  int
	OutputTokens int
}

// Tracker is the run-scoped token and cost ledger. It is the single piece of
// cross-round mutable state; all methods are safe for concurrent use.
type Tracker struct {
	mu              sync.Mutex
	log             []RoundUsage
	warnUtilization float64
	events          Events
}

// NewTracker creates a tracker. warnUtilization is the budget fraction above
// which RecordRound emits a non-fatal warning through events.
func NewTracker(warnUtilization float64, events Events) *Tracker {
	if events == nil {
		events = NopEvents{}
	}
	if warnUtilization <= 0 {
		warnUtilization = 0.85
	}
	return &Tracker{warnUtilization: warnUtilization, events: events}
}

// RecordRound appends one usage entry.
func (t *Tracker) RecordRound(usage RoundUsage) {
	t.mu.Lock()
	t.log = append(t.log, usage)
	t.mu.Unlock()

	if usage.BudgetTokens > 0 {
		consumed := usage.InputTokens + usage.CacheReadTokens + usage.CacheCreationTokens
		utilization := float64(consumed) / float64(usage.BudgetTokens)
		if utilization > t.warnUtilization {
			t.events.OnBudgetWarning(usage.Round, utilization)
		}
	}
}

// TotalUsage returns cumulative input and output tokens.
func (t *Tracker) TotalUsage() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	var totals Totals
	for _, u := range t.log {
		totals.InputTokens += u.InputTokens
		totals.OutputTokens += u.OutputTokens
	}
	return totals
}

// RoundUsage returns the aggregated usage for one round across attempts.
// ok is false when nothing was recorded for that round.
func (t *Tracker) RoundUsage(round int) (RoundUsage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg := RoundUsage{Round: round}
	found := false
	for _, u := range t.log {
		if u.Round != round {
			continue
		}
		found = true
		agg.Model = u.Model
		agg.InputTokens += u.InputTokens
		agg.OutputTokens += u.OutputTokens
		agg.ContextTokens += u.ContextTokens
		agg.FileContentTokens += u.FileContentTokens
		agg.CacheReadTokens += u.CacheReadTokens
		agg.CacheCreationTokens += u.CacheCreationTokens
		if u.BudgetTokens > agg.BudgetTokens {
			agg.BudgetTokens = u.BudgetTokens
		}
	}
	return agg, found
}

// RoundCost returns the estimated USD cost for one round.
func (t *Tracker) RoundCost(round int) float64 {
	usage, ok := t.RoundUsage(round)
	if !ok {
		return 0
	}
	return costOf(usage)
}

// LastRound returns the highest round number recorded so far, 0 when empty.
func (t *Tracker) LastRound() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	last := 0
	for _, u := range t.log {
		if u.Round > last {
			last = u.Round
		}
	}
	return last
}

// RoundCacheSavings returns the USD saved by prompt caching for one round:
// the standard-rate cost of cache-read tokens minus the discount actually
// paid, net of the cache-write surcharge. Returns nil when no cache activity
// was recorded for the round.
func (t *Tracker) RoundCacheSavings(round int) *float64 {
	usage, ok := t.RoundUsage(round)
	if !ok || (usage.CacheReadTokens == 0 && usage.CacheCreationTokens == 0) {
		return nil
	}
	rate := rateFor(usage.Model)
	saved := float64(usage.CacheReadTokens) * rate.InputPerMTok * (1 - cacheReadDiscount) / 1e6
	surcharge := float64(usage.CacheCreationTokens) * rate.InputPerMTok * (cacheWriteSurcharge - 1) / 1e6
	savings := saved - surcharge
	return &savings
}

// Summary renders the ledger as a human-readable multi-line string.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	entries := append([]RoundUsage(nil), t.log...)
	t.mu.Unlock()

	var b strings.Builder
	var totalCost float64
	totals := Totals{}
	for _, u := range entries {
		cost := costOf(u)
		totalCost += cost
		totals.InputTokens += u.InputTokens
		totals.OutputTokens += u.OutputTokens
		fmt.Fprintf(&b, "round %d: in=%d out=%d context=%d files=%d cost=$%.4f\n",
			u.Round, u.InputTokens, u.OutputTokens, u.ContextTokens, u.FileContentTokens, cost)
	}
	fmt.Fprintf(&b, "total: in=%d out=%d cost=$%.4f\n", totals.InputTokens, totals.OutputTokens, totalCost)
	return b.String()
}

func rateFor(model string) ModelRate {
	if rate, ok := modelRates[model]; ok {
		return rate
	}
	// Dated model IDs ("claude-sonnet-4-5-20250929") match by prefix.
	for name, rate := range modelRates {
		if strings.HasPrefix(model, name) {
			return rate
		}
	}
	return mostExpensiveRate()
}

func mostExpensiveRate() ModelRate {
	var best ModelRate
	for _, rate := range modelRates {
		if rate.InputPerMTok > best.InputPerMTok {
			best = rate
		}
	}
	return best
}

func costOf(usage RoundUsage) float64 {
	rate := rateFor(usage.Model)
	cost := float64(usage.InputTokens) * rate.InputPerMTok
	cost += float64(usage.CacheReadTokens) * rate.InputPerMTok * cacheReadDiscount
	cost += float64(usage.CacheCreationTokens) * rate.InputPerMTok * cacheWriteSurcharge
	cost += float64(usage.OutputTokens) * rate.OutputPerMTok
	return cost / 1e6
}
