// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/flai-tui/internal/model"
)

// ErrNoUsage is returned by Record for a reply without usage metadata.
var ErrNoUsage = errors.New("reply has no usage")

// =============================================================================
// RECORDS
// =============================================================================

// Record is the usage of one reply.
type Record struct {
	Time           time.Time `json:"time"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model"`

	PromptTokens    int `json:"prompt_tokens"`
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	ResponseTokens  int `json:"response_tokens"`
	CachedTokens    int `json:"cached_tokens,omitempty"`
	ToolTokens      int `json:"tool_tokens,omitempty"`

	// Cost is the estimated cost in dollars, zero when the model has no
	// published prices.
	Cost float64 `json:"cost"`
}

// TotalTokens sums every token category.
func (r Record) TotalTokens() int {
	return r.PromptTokens + r.ReasoningTokens + r.ResponseTokens + r.CachedTokens + r.ToolTokens
}

// ModelKey names the model as provider/model.
func (r Record) ModelKey() string {
	if r.Provider == "" {
		return r.Model
	}
	return r.Provider + "/" + r.Model
}

// EstimateCost prices usage with per-million-token rates. Cached prompt
// tokens use the cache read rate when one is published. Reasoning counts as
// output.
func EstimateCost(meta model.MetaInfo, cost *model.ModelCost) float64 {
	if cost == nil {
		return 0
	}
	cacheRate := cost.CacheRead
	if cacheRate == 0 {
		cacheRate = cost.Input
	}
	input := float64(meta.PromptTokenCount)*cost.Input + float64(meta.CachedTokenCount)*cacheRate
	output := float64(meta.ResponseTokenCount+meta.ReasoningTokenCount+meta.ToolUseTokenCount) * cost.Output
	return (input + output) / 1_000_000
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker records reply usage to Storage.
type Tracker struct {
	mu      sync.Mutex
	storage *Storage
	now     func() time.Time
}

// NewTracker opens a tracker over dir. now defaults to time.Now.
func NewTracker(dir string, now func() time.Time) (*Tracker, error) {
	storage, err := NewStorage(dir)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{storage: storage, now: now}, nil
}

// Record appends the usage of reply. prices may be nil.
func (t *Tracker) Record(conversationID string, reply model.Message, prices *model.ModelCost) error {
	if reply.MetaInfo == nil || !reply.MetaInfo.HasUsage() {
		return ErrNoUsage
	}
	meta := *reply.MetaInfo
	r := Record{
		Time:            t.now(),
		ConversationID:  conversationID,
		MessageID:       reply.ID,
		Provider:        meta.ProviderName,
		Model:           meta.ModelName,
		PromptTokens:    meta.PromptTokenCount,
		ReasoningTokens: meta.ReasoningTokenCount,
		ResponseTokens:  meta.ResponseTokenCount,
		CachedTokens:    meta.CachedTokenCount,
		ToolTokens:      meta.ToolUseTokenCount,
		Cost:            EstimateCost(meta, prices),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storage.Append(r)
}

// Prune removes records older than keep days.
func (t *Tracker) Prune(keep int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storage.DeleteBefore(t.now().AddDate(0, 0, -keep))
}

// =============================================================================
// TRENDS
// =============================================================================

// Trends aggregates usage over a number of days ending today.
type Trends struct {
	Days        int          `json:"days"`
	Replies     int          `json:"replies"`
	TotalTokens int          `json:"total_tokens"`
	TotalCost   float64      `json:"total_cost"`
	Daily       []DailyUsage `json:"daily"`
	ByModel     []ModelUsage `json:"by_model"`
}

// DailyUsage is the usage of one day.
type DailyUsage struct {
	Date    time.Time `json:"date"`
	Replies int       `json:"replies"`
	Tokens  int       `json:"tokens"`
	Cost    float64   `json:"cost"`
}

// ModelUsage is the usage of one model.
type ModelUsage struct {
	Model   string  `json:"model"`
	Replies int     `json:"replies"`
	Tokens  int     `json:"tokens"`
	Cost    float64 `json:"cost"`
}

// Trends returns usage over the last days days, today included. Days are
// oldest first; models are by cost, then tokens, descending.
func (t *Tracker) Trends(days int) (*Trends, error) {
	if days < 1 {
		days = 1
	}
	to := t.now()
	from := to.AddDate(0, 0, -(days - 1))

	t.mu.Lock()
	records, err := t.storage.Load(from, to)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	trends := &Trends{Days: days, Daily: []DailyUsage{}, ByModel: []ModelUsage{}}
	dailyMap := make(map[time.Time]*DailyUsage)
	modelMap := make(map[string]*ModelUsage)
	for _, r := range records {
		tokens := r.TotalTokens()
		trends.Replies++
		trends.TotalTokens += tokens
		trends.TotalCost += r.Cost

		day := truncateDay(r.Time)
		daily, ok := dailyMap[day]
		if !ok {
			daily = &DailyUsage{Date: day}
			dailyMap[day] = daily
		}
		daily.Replies++
		daily.Tokens += tokens
		daily.Cost += r.Cost

		key := r.ModelKey()
		mu, ok := modelMap[key]
		if !ok {
			mu = &ModelUsage{Model: key}
			modelMap[key] = mu
		}
		mu.Replies++
		mu.Tokens += tokens
		mu.Cost += r.Cost
	}

	for _, d := range dailyMap {
		trends.Daily = append(trends.Daily, *d)
	}
	sort.Slice(trends.Daily, func(i, j int) bool {
		return trends.Daily[i].Date.Before(trends.Daily[j].Date)
	})
	for _, m := range modelMap {
		trends.ByModel = append(trends.ByModel, *m)
	}
	sort.Slice(trends.ByModel, func(i, j int) bool {
		a, b := trends.ByModel[i], trends.ByModel[j]
		if a.Cost != b.Cost {
			return a.Cost > b.Cost
		}
		if a.Tokens != b.Tokens {
			return a.Tokens > b.Tokens
		}
		return a.Model < b.Model
	})
	return trends, nil
}
