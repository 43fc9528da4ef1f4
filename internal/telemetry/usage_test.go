// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/flai-tui/internal/model"
)

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time { return c.t }

func reply(id, provider, modelName string, prompt, response int) model.Message {
	return model.Message{
		ID:   id,
		Role: model.RoleAssistant,
		MetaInfo: &model.MetaInfo{
			ProviderName:       provider,
			ModelName:          modelName,
			PromptTokenCount:   prompt,
			ResponseTokenCount: response,
		},
	}
}

func TestEstimateCost(t *testing.T) {
	prices := &model.ModelCost{Input: 0.15, Output: 0.6}
	meta := model.MetaInfo{PromptTokenCount: 1_000_000, ResponseTokenCount: 500_000}
	assert.InDelta(t, 0.45, EstimateCost(meta, prices), 1e-9)

	meta.ReasoningTokenCount = 500_000
	assert.InDelta(t, 0.75, EstimateCost(meta, prices), 1e-9, "reasoning is billed as output")

	meta = model.MetaInfo{CachedTokenCount: 1_000_000}
	assert.InDelta(t, 0.15, EstimateCost(meta, prices), 1e-9, "cached falls back to input rate")
	prices.CacheRead = 0.05
	assert.InDelta(t, 0.05, EstimateCost(meta, prices), 1e-9)

	assert.Zero(t, EstimateCost(meta, nil))
}

func TestTracker_RecordAndTrends(t *testing.T) {
	c := &clock{t: time.Date(2025, 6, 10, 12, 0, 0, 0, time.Local)}
	tracker, err := NewTracker(t.TempDir(), c.now)
	require.NoError(t, err)

	prices := &model.ModelCost{Input: 1, Output: 2}
	c.t = c.t.AddDate(0, 0, -1)
	require.NoError(t, tracker.Record("c1", reply("a1", "OpenAI", "gpt-4o-mini", 1000, 500), prices))
	c.t = c.t.AddDate(0, 0, 1)
	require.NoError(t, tracker.Record("c1", reply("a2", "OpenAI", "gpt-4o-mini", 2000, 1000), prices))
	require.NoError(t, tracker.Record("c2", reply("a3", "Google", "gemini-2.5-flash", 10, 20), nil))

	trends, err := tracker.Trends(7)
	require.NoError(t, err)
	assert.Equal(t, 7, trends.Days)
	assert.Equal(t, 3, trends.Replies)
	assert.Equal(t, 4530, trends.TotalTokens)
	assert.InDelta(t, 0.002+0.004, trends.TotalCost, 1e-9)

	require.Len(t, trends.Daily, 2)
	assert.Equal(t, 9, trends.Daily[0].Date.Day())
	assert.Equal(t, 1, trends.Daily[0].Replies)
	assert.Equal(t, 10, trends.Daily[1].Date.Day())
	assert.Equal(t, 2, trends.Daily[1].Replies)

	require.Len(t, trends.ByModel, 2)
	assert.Equal(t, "OpenAI/gpt-4o-mini", trends.ByModel[0].Model)
	assert.Equal(t, 2, trends.ByModel[0].Replies)
	assert.Equal(t, "Google/gemini-2.5-flash", trends.ByModel[1].Model)
	assert.Zero(t, trends.ByModel[1].Cost)

	today, err := tracker.Trends(1)
	require.NoError(t, err)
	assert.Equal(t, 2, today.Replies)
}

func TestTracker_RecordWithoutUsage(t *testing.T) {
	tracker, err := NewTracker(t.TempDir(), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, tracker.Record("c1", model.Message{ID: "a1"}, nil), ErrNoUsage)
	assert.ErrorIs(t, tracker.Record("c1", reply("a1", "", "m", 0, 0), nil), ErrNoUsage)

	trends, err := tracker.Trends(0)
	require.NoError(t, err)
	assert.Equal(t, 1, trends.Days)
	assert.Zero(t, trends.Replies)
	assert.Empty(t, trends.Daily)
}

func TestTracker_Prune(t *testing.T) {
	dir := t.TempDir()
	c := &clock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)}
	tracker, err := NewTracker(dir, c.now)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, tracker.Record("c1", reply("a", "", "m", 1, 1), nil))
		c.t = c.t.AddDate(0, 0, 1)
	}
	// now is June 6; files exist for June 1..5
	removed, err := tracker.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "usage-2025-06-04.jsonl", entries[0].Name())
}

func TestStorage_SkipsBadLines(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStorage(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())

	day := time.Date(2025, 1, 2, 15, 0, 0, 0, time.Local)
	require.NoError(t, s.Append(Record{Time: day, Model: "m", PromptTokens: 3}))

	f, err := os.OpenFile(filepath.Join(dir, "usage-2025-01-02.jsonl"), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "usage-garbage.jsonl"), []byte("{}\n"), 0600))

	records, err := s.Load(day, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3, records[0].PromptTokens)

	size, err := s.Size()
	require.NoError(t, err)
	assert.Positive(t, size)

	_, err = NewStorage("")
	assert.Error(t, err)
}
