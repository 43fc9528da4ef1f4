// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tree

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/flai-tui/internal/model"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func msg(id, parent string, minute int) model.Message {
	role := model.RoleUser
	if minute%2 == 1 {
		role = model.RoleAssistant
	}
	return model.Message{
		ID:        id,
		ParentID:  parent,
		Role:      role,
		Content:   []model.Segment{model.NewSegment(model.SegmentMessage, id)},
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

// branched builds:
//
//	u1 ── a1 ── u2 ── a2
//	   └─ a1b ── u3
func branched() []model.Message {
	return []model.Message{
		msg("a2", "u2", 5),
		msg("u1", "", 0),
		msg("a1b", "u1", 3),
		msg("u2", "a1", 4),
		msg("a1", "u1", 1),
		msg("u3", "a1b", 6),
	}
}

// =============================================================================
// STORE TESTS
// =============================================================================

func TestStore_LoadFromFlatList(t *testing.T) {
	s := NewStore()
	last := s.LoadFromFlatList(branched())

	assert.Equal(t, "u3", last)
	assert.Equal(t, 6, s.Len())
	assert.Equal(t, []string{"a1", "a1b"}, s.Children("u1"))
	assert.Equal(t, []string{"u2"}, s.Children("a1"))
	assert.Nil(t, s.Children("a2"))

	root, ok := s.Root()
	require.True(t, ok)
	assert.Equal(t, "u1", root.ID)

	idx, count, ok := s.SiblingIndex("a1b")
	require.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 2, count)
}

func TestStore_LastTieGoesToLastSeen(t *testing.T) {
	s := NewStore()
	last := s.LoadFromFlatList([]model.Message{
		msg("u1", "", 0),
		msg("a1", "u1", 1),
		msg("a1b", "u1", 1),
	})
	assert.Equal(t, "a1b", last)
	// equal timestamps keep input order
	assert.Equal(t, []string{"a1", "a1b"}, s.Children("u1"))
}

func TestStore_LoadAnnotatesCitations(t *testing.T) {
	a := msg("a1", "u1", 1)
	a.MetaInfo = &model.MetaInfo{GoogleGroundingData: &model.GroundingData{
		GroundingChunks: []model.GroundingChunk{{Web: &model.WebSource{URI: "https://x"}}},
		GroundingSupports: []model.GroundingSupport{{
			Segment:               model.SupportSegment{Text: "a1"},
			GroundingChunkIndices: []int{0},
		}},
	}}

	s := NewStore()
	s.LoadFromFlatList([]model.Message{msg("u1", "", 0), a})

	got, ok := s.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "a1 [[1]](https://x)", got.Text())
}

func TestStore_ReloadDoesNotAnnotateTwice(t *testing.T) {
	a := msg("a1", "u1", 1)
	a.Content = []model.Segment{model.NewSegment(model.SegmentMessage, "The sky is blue.")}
	a.MetaInfo = &model.MetaInfo{GoogleGroundingData: &model.GroundingData{
		GroundingChunks: []model.GroundingChunk{
			{Web: &model.WebSource{URI: "https://x"}},
			{Web: &model.WebSource{URI: "https://y"}},
		},
		GroundingSupports: []model.GroundingSupport{
			{Segment: model.SupportSegment{Text: "sky is blue"}, GroundingChunkIndices: []int{0}},
			{Segment: model.SupportSegment{Text: "blue"}, GroundingChunkIndices: []int{1}},
		},
	}}
	const want = "The sky is blue [[2]](https://y) [[1]](https://x)."

	first := NewStore()
	first.LoadFromFlatList([]model.Message{msg("u1", "", 0), a})
	got, _ := first.Get("a1")
	require.Equal(t, want, got.Text())

	// the cache stores Messages() as JSON and loads it back
	data, err := json.Marshal(first.Messages())
	require.NoError(t, err)
	var cached []model.Message
	require.NoError(t, json.Unmarshal(data, &cached))

	second := NewStore()
	second.LoadFromFlatList(cached)
	got, _ = second.Get("a1")
	assert.Equal(t, want, got.Text())
	assert.True(t, got.Cited)

	third := NewStore()
	third.LoadFromFlatList(second.Messages())
	got, _ = third.Get("a1")
	assert.Equal(t, want, got.Text())
}

func TestStore_UpsertKeepsChildrenAndResorts(t *testing.T) {
	s := NewStore()
	s.LoadFromFlatList(branched())

	replaced := msg("a1", "u1", 1)
	replaced.Content = []model.Segment{model.NewSegment(model.SegmentMessage, "new")}
	s.Upsert(replaced)

	got, _ := s.Get("a1")
	assert.Equal(t, "new", got.Text())
	assert.Equal(t, []string{"u2"}, s.Children("a1"))
	assert.Equal(t, []string{"a1", "a1b"}, s.Children("u1"))

	// a later sibling sorts last
	s.Upsert(msg("a1c", "u1", 9))
	assert.Equal(t, []string{"a1", "a1b", "a1c"}, s.Children("u1"))

	// an earlier sibling sorts first
	s.Upsert(msg("a1z", "u1", -1))
	assert.Equal(t, []string{"a1z", "a1", "a1b", "a1c"}, s.Children("u1"))
}

func TestStore_UpsertIgnoresEmptyID(t *testing.T) {
	s := NewStore()
	s.Upsert(model.NewPlaceholder("u1", false, base))
	assert.Equal(t, 0, s.Len())
}

func TestStore_ChildBeforeParent(t *testing.T) {
	s := NewStore()
	s.Upsert(msg("u1", "", 0))
	s.Upsert(msg("a2", "u2", 3))
	assert.Equal(t, 2, s.Len())
	assert.Nil(t, s.Children("u2"))

	s.Upsert(msg("u2", "u1", 2))
	assert.Equal(t, []string{"a2"}, s.Children("u2"))
	assert.Equal(t, []string{"u1", "u2", "a2"}, Project(s, "u2").IDs())
}

func TestStore_Remove(t *testing.T) {
	s := NewStore()
	s.LoadFromFlatList(branched())

	assert.True(t, s.Remove("a1b"))
	assert.False(t, s.Remove("a1b"))
	assert.False(t, s.Has("a1b"))
	assert.Equal(t, []string{"a1"}, s.Children("u1"))
	// descendants are not deleted
	assert.True(t, s.Has("u3"))
	assert.Equal(t, 5, s.Len())
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	s.Upsert(msg("u1", "", 0))

	got, _ := s.Get("u1")
	got.Content[0] = model.NewSegment(model.SegmentMessage, "mutated")

	again, _ := s.Get("u1")
	assert.Equal(t, "u1", again.Text())
}

func TestStore_MessagesInInsertionOrder(t *testing.T) {
	s := NewStore()
	s.Upsert(msg("b", "", 1))
	s.Upsert(msg("a", "b", 0))
	ids := make([]string, 0)
	for _, m := range s.Messages() {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"b", "a"}, ids)
}

// =============================================================================
// PROJECTION TESTS
// =============================================================================

func TestProject(t *testing.T) {
	s := NewStore()
	s.LoadFromFlatList(branched())

	tests := []struct {
		name string
		id   string
		want []string
	}{
		{"leaf", "u3", []string{"u1", "a1b", "u3"}},
		{"descends first child", "u1", []string{"u1", "a1", "u2", "a2"}},
		{"middle", "a1b", []string{"u1", "a1b", "u3"}},
		{"unknown", "missing", []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Project(s, tc.id).IDs())
		})
	}
}

func TestProject_LengthMatchesDepth(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(30)
		msgs := []model.Message{msg("m0", "", 0)}
		for i := 1; i < n; i++ {
			parent := msgs[rng.Intn(len(msgs))].ID
			msgs = append(msgs, msg(fmt.Sprintf("m%d", i), parent, rng.Intn(100)))
		}
		rng.Shuffle(len(msgs), func(i, j int) { msgs[i], msgs[j] = msgs[j], msgs[i] })

		s := NewStore()
		last := s.LoadFromFlatList(msgs)

		// the path may continue below the last message through first children
		p := Project(s, last)
		require.GreaterOrEqual(t, p.Len(), s.Depth(last))
		assert.Equal(t, last, p.At(s.Depth(last)-1).ID)
		root, _ := s.Root()
		assert.Equal(t, root.ID, p.At(0).ID)

		if len(s.Children(last)) == 0 {
			assert.Equal(t, s.Depth(last), p.Len())
			leaf, _ := p.Last()
			assert.Equal(t, last, leaf.ID)
		}
	}
}

func TestProjectLast(t *testing.T) {
	s := NewStore()
	assert.True(t, ProjectLast(s).IsEmpty())

	s.LoadFromFlatList(branched())
	assert.Equal(t, []string{"u1", "a1b", "u3"}, ProjectLast(s).IDs())
}

func TestPath_Immutable(t *testing.T) {
	orig := NewPath(msg("u1", "", 0), msg("a1", "u1", 1))

	appended := orig.Append(msg("u2", "a1", 2))
	truncated := orig.Truncate(1)
	replaced := orig.ReplaceLast(msg("a1b", "u1", 3))

	assert.Equal(t, []string{"u1", "a1"}, orig.IDs())
	assert.Equal(t, []string{"u1", "a1", "u2"}, appended.IDs())
	assert.Equal(t, []string{"u1"}, truncated.IDs())
	assert.Equal(t, []string{"u1", "a1b"}, replaced.IDs())

	out := orig.Messages()
	out[0].Content[0] = model.NewSegment(model.SegmentMessage, "changed")
	assert.Equal(t, "u1", orig.At(0).Text())
}

func TestPath_IDsSkipPlaceholder(t *testing.T) {
	p := NewPath(msg("u1", "", 0), model.NewPlaceholder("u1", false, base))
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []string{"u1"}, p.IDs())
	assert.Equal(t, 1, p.IndexOf(""))
}

// =============================================================================
// BRANCH NAVIGATION TESTS
// =============================================================================

func TestSwitchSibling(t *testing.T) {
	s := NewStore()
	s.LoadFromFlatList(branched())
	p := Project(s, "u3")

	prev, changed := SwitchSibling(s, p, "a1b", Prev)
	require.True(t, changed)
	assert.Equal(t, []string{"u1", "a1", "u2", "a2"}, prev.IDs())
	assert.Equal(t, []string{"u1", "a1b", "u3"}, p.IDs(), "input path unchanged")

	back, changed := SwitchSibling(s, prev, "a1", Next)
	require.True(t, changed)
	assert.Equal(t, p.IDs(), back.IDs())
	assert.Equal(t, 6, s.Len(), "store unchanged")
}

func TestSwitchSibling_NoOps(t *testing.T) {
	s := NewStore()
	s.LoadFromFlatList(branched())
	p := Project(s, "u1")

	tests := []struct {
		name string
		id   string
		dir  Direction
	}{
		{"first sibling prev", "a1", Prev},
		{"root", "u1", Next},
		{"only child", "u2", Next},
		{"not on path", "u3", Prev},
		{"placeholder", "", Next},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := SwitchSibling(s, p, tc.id, tc.dir)
			assert.False(t, changed)
			assert.True(t, p.Equal(got))
		})
	}

	last := Project(s, "u3")
	got, changed := SwitchSibling(s, last, "a1b", Next)
	assert.False(t, changed)
	assert.True(t, last.Equal(got))
}

func TestSwitchSibling_NextThenPrevRoundTrip(t *testing.T) {
	s := NewStore()
	msgs := []model.Message{msg("u1", "", 0)}
	for i := 0; i < 5; i++ {
		msgs = append(msgs, msg(fmt.Sprintf("a%d", i), "u1", 10-i))
	}
	s.LoadFromFlatList(msgs)

	children := s.Children("u1")
	assert.Equal(t, []string{"a4", "a3", "a2", "a1", "a0"}, children)

	for i, id := range children[:len(children)-1] {
		p := Project(s, id)
		next, ok := SwitchSibling(s, p, id, Next)
		require.True(t, ok)
		leaf, _ := next.Last()
		assert.Equal(t, children[i+1], leaf.ID)

		back, ok := SwitchSibling(s, next, leaf.ID, Prev)
		require.True(t, ok)
		assert.True(t, p.Equal(back))
	}
}

func TestBranches(t *testing.T) {
	s := NewStore()
	s.LoadFromFlatList(branched())
	p := Project(s, "u3").Append(model.NewPlaceholder("u3", false, base))

	got := Branches(s, p)
	require.Len(t, got, 4)
	assert.False(t, got[0].HasBranches())
	assert.Equal(t, BranchInfo{Index: 1, Count: 2}, got[1])
	assert.Equal(t, BranchInfo{Index: 0, Count: 1}, got[3])
}
