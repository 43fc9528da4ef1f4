// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package citation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/flai-tui/internal/model"
)

func support(text string, idx ...int) model.GroundingSupport {
	return model.GroundingSupport{
		Segment:               model.SupportSegment{Text: text},
		GroundingChunkIndices: idx,
	}
}

func TestApply(t *testing.T) {
	chunks := []model.GroundingChunk{
		{Web: &model.WebSource{URI: "u1", Title: "One"}},
		{},
		{Web: &model.WebSource{URI: "u3"}},
	}

	tests := []struct {
		name     string
		text     string
		supports []model.GroundingSupport
		want     string
	}{
		{
			name:     "link and plain markers",
			text:     "A. B.",
			supports: []model.GroundingSupport{support("A.", 0, 1)},
			want:     "A. [[1]](u1)[2] B.",
		},
		{
			name:     "out of range index is plain",
			text:     "A. B.",
			supports: []model.GroundingSupport{support("B.", 7)},
			want:     "A. B. [8]",
		},
		{
			name:     "only first occurrence",
			text:     "x x",
			supports: []model.GroundingSupport{support("x", 2)},
			want:     "x [[3]](u3) x",
		},
		{
			name:     "supports applied in order",
			text:     "A. B.",
			supports: []model.GroundingSupport{support("A.", 0), support("B.", 2)},
			want:     "A. [[1]](u1) B. [[3]](u3)",
		},
		{
			name:     "missing anchor unchanged",
			text:     "hello",
			supports: []model.GroundingSupport{support("bye", 0)},
			want:     "hello",
		},
		{
			name:     "empty segment text skipped",
			text:     "hello",
			supports: []model.GroundingSupport{support("", 0)},
			want:     "hello",
		},
		{
			name:     "no indices skipped",
			text:     "hello",
			supports: []model.GroundingSupport{support("hello")},
			want:     "hello",
		},
		{
			name: "no supports",
			text: "hello",
			want: "hello",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Apply(tc.text, tc.supports, chunks))
		})
	}
}

func TestApply_OverlappingAndDuplicateAnchors(t *testing.T) {
	chunks := []model.GroundingChunk{
		{Web: &model.WebSource{URI: "https://x"}},
		{Web: &model.WebSource{URI: "https://y"}},
	}

	// the second anchor matches inside the first one's span
	overlapping := []model.GroundingSupport{support("sky is blue", 0), support("blue", 1)}
	assert.Equal(t, "The sky is blue [[2]](https://y) [[1]](https://x).",
		Apply("The sky is blue.", overlapping, chunks))

	duplicate := []model.GroundingSupport{support("A.", 0), support("A.", 1)}
	assert.Equal(t, "A. [[2]](https://y) [[1]](https://x) B.", Apply("A. B.", duplicate, chunks))
}

func TestAnnotateMessage_OnlyOnce(t *testing.T) {
	grounding := &model.GroundingData{
		GroundingChunks: []model.GroundingChunk{
			{Web: &model.WebSource{URI: "https://x"}},
			{Web: &model.WebSource{URI: "https://y"}},
		},
		GroundingSupports: []model.GroundingSupport{
			support("sky is blue", 0),
			support("blue", 1),
			support("blue", 1),
		},
	}
	msg := model.Message{
		ID:       "a",
		Role:     model.RoleAssistant,
		Content:  []model.Segment{model.NewSegment(model.SegmentMessage, "The sky is blue.")},
		MetaInfo: &model.MetaInfo{GoogleGroundingData: grounding},
	}

	once := AnnotateMessage(msg)
	require.True(t, once.Cited)
	assert.False(t, msg.Cited, "input must not be mutated")

	twice := AnnotateMessage(once)
	assert.True(t, twice.Cited)
	assert.Equal(t, once.Text(), twice.Text())
	assert.Equal(t, 1, strings.Count(twice.Text(), "[[1]](https://x)"))
}

func TestAnnotateMessage(t *testing.T) {
	grounding := &model.GroundingData{
		GroundingChunks:   []model.GroundingChunk{{Web: &model.WebSource{URI: "u"}}},
		GroundingSupports: []model.GroundingSupport{support("Go", 0)},
	}

	t.Run("trailing message segment", func(t *testing.T) {
		msg := model.Message{
			ID:   "a",
			Role: model.RoleAssistant,
			Content: []model.Segment{
				model.NewSegment(model.SegmentReasoning, "Go"),
				model.NewSegment(model.SegmentMessage, "Go is fun"),
			},
			MetaInfo: &model.MetaInfo{GoogleGroundingData: grounding},
		}
		out := AnnotateMessage(msg)
		assert.Equal(t, "Go [[1]](u) is fun", out.Content[1].Text())
		assert.Equal(t, "Go", out.Content[0].Text())
		assert.Equal(t, "Go is fun", msg.Content[1].Text(), "input must not be mutated")
	})

	t.Run("trailing reasoning segment untouched", func(t *testing.T) {
		msg := model.Message{
			Content:  []model.Segment{model.NewSegment(model.SegmentReasoning, "Go")},
			MetaInfo: &model.MetaInfo{GoogleGroundingData: grounding},
		}
		assert.Equal(t, "Go", AnnotateMessage(msg).Content[0].Text())
	})

	t.Run("no grounding", func(t *testing.T) {
		msg := model.Message{Content: []model.Segment{model.NewSegment(model.SegmentMessage, "Go")}}
		assert.Equal(t, "Go", AnnotateMessage(msg).Content[0].Text())
	})
}

func TestFootnotes(t *testing.T) {
	g := &model.GroundingData{GroundingChunks: []model.GroundingChunk{
		{Web: &model.WebSource{URI: "https://a", Title: "A"}},
		{},
		{Web: &model.WebSource{URI: "https://c"}},
	}}
	lines := Footnotes(g)
	require.Len(t, lines, 2)
	assert.Equal(t, "[1] A <https://a>", lines[0])
	assert.Equal(t, "[3] https://c <https://c>", lines[1])
	assert.Nil(t, Footnotes(nil))
}
