// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// SEGMENT TESTS
// =============================================================================

func TestSegment_DecodeVariants(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType SegmentType
		wantData SegmentData
	}{
		{
			name:     "message",
			input:    `{"type":"message","data":{"content":"hi"}}`,
			wantType: SegmentMessage,
			wantData: MessageData{Content: "hi"},
		},
		{
			name:     "reasoning",
			input:    `{"type":"reasoning","data":{"content":"think"}}`,
			wantType: SegmentReasoning,
			wantData: ReasoningData{Content: "think"},
		},
		{
			name:     "unknown type kept",
			input:    `{"type":"tool_call","data":{"content":"x"}}`,
			wantType: "tool_call",
			wantData: RawData{Content: "x"},
		},
		{
			name:     "null data",
			input:    `{"type":"message","data":null}`,
			wantType: SegmentMessage,
			wantData: MessageData{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seg Segment
			require.NoError(t, json.Unmarshal([]byte(tc.input), &seg))
			assert.Equal(t, tc.wantType, seg.Type)
			assert.Equal(t, tc.wantData, seg.Data)
		})
	}
}

func TestSegment_EncodeWireShape(t *testing.T) {
	out, err := json.Marshal(NewSegment(SegmentReasoning, "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reasoning","data":{"content":"a"}}`, string(out))

	out, err = json.Marshal(Segment{Type: SegmentMessage})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","data":{"content":""}}`, string(out))
}

func TestSegment_AppendReturnsCopy(t *testing.T) {
	orig := NewSegment(SegmentMessage, "Hel")
	next := orig.Append("lo")

	assert.Equal(t, "Hel", orig.Text())
	assert.Equal(t, "Hello", next.Text())
	assert.Equal(t, SegmentMessage, next.Type)
}

func TestSegmentType_IsContent(t *testing.T) {
	assert.True(t, SegmentMessage.IsContent())
	assert.True(t, SegmentReasoning.IsContent())
	assert.False(t, SegmentType("meta_info").IsContent())
	assert.False(t, SegmentType("google_grounding_data").IsContent())
	assert.False(t, SegmentType("").IsContent())
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_DecodeTimestamps(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Time
	}{
		{"rfc3339", `"2025-03-01T10:00:00Z"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"space separated", `"2025-03-01 10:00:00"`, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"unix seconds", `1740823200`, time.Unix(1740823200, 0)},
		{"empty", `""`, time.Time{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			raw := `{"id":"a","parent_id":"","role":"user","content":[],"created_at":` + tc.value + `}`
			var msg Message
			require.NoError(t, json.Unmarshal([]byte(raw), &msg))
			assert.True(t, tc.want.Equal(msg.CreatedAt), "got %v", msg.CreatedAt)
		})
	}
}

func TestMessage_DecodeFull(t *testing.T) {
	raw := `{
		"id": "m2",
		"parent_id": "m1",
		"role": "assistant",
		"content": [
			{"type": "reasoning", "data": {"content": "hmm"}},
			{"type": "message", "data": {"content": "Answer"}}
		],
		"meta_info": {
			"provider_name": "google",
			"model_name": "gemini",
			"prompt_token_count": 10,
			"response_token_count": 5,
			"google_grounding_data": {
				"groundingChunks": [{"web": {"uri": "https://a", "title": "A"}}],
				"groundingSupports": [{"segment": {"endIndex": 6, "text": "Answer"}, "groundingChunkIndices": [0]}],
				"webSearchQueries": ["q"]
			}
		},
		"created_at": "2025-03-01 10:00:00"
	}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, "m2", msg.ID)
	assert.Equal(t, RoleAssistant, msg.Role)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, "hmm", msg.Reasoning())
	assert.Equal(t, "Answer", msg.Text())
	assert.Equal(t, "Answer", msg.Prompt())
	require.NotNil(t, msg.MetaInfo)
	require.NotNil(t, msg.MetaInfo.GoogleGroundingData)
	assert.Equal(t, 15, msg.MetaInfo.TotalTokens())
	g := msg.MetaInfo.GoogleGroundingData
	assert.Nil(t, g.GroundingSupports[0].Segment.StartIndex)
	assert.Equal(t, []WebSource{{URI: "https://a", Title: "A"}}, g.Sources())
}

func TestMessage_CloneIsDeep(t *testing.T) {
	start := 0
	orig := Message{
		ID:      "m",
		Role:    RoleAssistant,
		Content: []Segment{NewSegment(SegmentMessage, "x")},
		MetaInfo: &MetaInfo{
			ModelName: "m",
			GoogleGroundingData: &GroundingData{
				GroundingChunks:   []GroundingChunk{{Web: &WebSource{URI: "u"}}},
				GroundingSupports: []GroundingSupport{{Segment: SupportSegment{StartIndex: &start, Text: "x"}, GroundingChunkIndices: []int{0}}},
				WebSearchQueries:  []string{"q"},
			},
		},
	}

	clone := orig.Clone()
	clone.Content[0] = clone.Content[0].Append("y")
	clone.MetaInfo.ModelName = "other"
	clone.MetaInfo.GoogleGroundingData.GroundingChunks[0].Web.URI = "changed"
	clone.MetaInfo.GoogleGroundingData.GroundingSupports[0].GroundingChunkIndices[0] = 9
	*clone.MetaInfo.GoogleGroundingData.GroundingSupports[0].Segment.StartIndex = 4
	clone.MetaInfo.GoogleGroundingData.WebSearchQueries[0] = "z"

	assert.Equal(t, "x", orig.Content[0].Text())
	assert.Equal(t, "m", orig.MetaInfo.ModelName)
	g := orig.MetaInfo.GoogleGroundingData
	assert.Equal(t, "u", g.GroundingChunks[0].Web.URI)
	assert.Equal(t, 0, g.GroundingSupports[0].GroundingChunkIndices[0])
	assert.Equal(t, 0, *g.GroundingSupports[0].Segment.StartIndex)
	assert.Equal(t, "q", g.WebSearchQueries[0])
}

func TestNewPlaceholder(t *testing.T) {
	now := time.Now()

	ph := NewPlaceholder("u1", true, now)
	assert.True(t, ph.IsPlaceholder())
	assert.Equal(t, RoleAssistant, ph.Role)
	assert.Equal(t, "u1", ph.ParentID)
	require.Len(t, ph.Content, 1)
	assert.Equal(t, SegmentReasoning, ph.Content[0].Type)

	ph = NewPlaceholder("u1", false, now)
	assert.Equal(t, SegmentMessage, ph.Content[0].Type)
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("a", "", "héllo\nwörld and more", time.Now())
	assert.Equal(t, "héllo wörld and more", msg.Preview(50))
	assert.Equal(t, "héllo w...", msg.Preview(10))
	assert.Equal(t, "hé", msg.Preview(2))
}

func TestMetaInfo_FormatUsage(t *testing.T) {
	meta := MetaInfo{ProviderName: "google", ModelName: "gemini", PromptTokenCount: 10, ResponseTokenCount: 20, ReasoningTokenCount: 5}
	assert.Equal(t, "google/gemini | in 10 | out 20 | reasoning 5", meta.FormatUsage())

	assert.Equal(t, "in 0 | out 0", MetaInfo{}.FormatUsage())
}

// =============================================================================
// CATALOG AND LIST TESTS
// =============================================================================

func TestFindModel(t *testing.T) {
	providers := []Provider{
		{ID: "p1", Name: "OpenAI", Models: []ModelInfo{{ID: "gpt-4o", Name: "GPT-4o"}}},
		{ID: "p2", Name: "Google", Models: []ModelInfo{{ID: "gemini-2.5", Name: "Gemini 2.5", Reasoning: true}}},
	}

	tests := []struct {
		query    string
		wantID   string
		wantProv string
		found    bool
	}{
		{"gpt-4o", "gpt-4o", "p1", true},
		{"Gemini 2.5", "gemini-2.5", "p2", true},
		{"google/gemini-2.5", "gemini-2.5", "p2", true},
		{"missing", "", "", false},
		{"  ", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.query, func(t *testing.T) {
			m, ok := FindModel(providers, tc.query)
			assert.Equal(t, tc.found, ok)
			assert.Equal(t, tc.wantID, m.ID)
			assert.Equal(t, tc.wantProv, m.ProviderID)
		})
	}

	all := FlattenModels(providers)
	require.Len(t, all, 2)
	assert.Equal(t, "p2", all[1].ProviderID)
}

func TestModelInfo_CapabilitiesString(t *testing.T) {
	assert.Equal(t, "chat", ModelInfo{}.CapabilitiesString())
	assert.Equal(t, "reasoning, tools", ModelInfo{Reasoning: true, ToolCall: true}.CapabilitiesString())
}

func TestConversation_Decode(t *testing.T) {
	raw := `{"total":3,"current":1,"size":2,"records":[
		{"id":"c1","title":"Go","icon":"🐹","created_at":"2025-01-02 03:04:05","updated_at":"2025-01-02T03:04:05Z"}
	]}`
	var page Page[Conversation]
	require.NoError(t, json.Unmarshal([]byte(raw), &page))
	require.Len(t, page.Records, 1)
	assert.True(t, page.HasMore())
	assert.Equal(t, "🐹 Go", page.Records[0].DisplayTitle())
	assert.Equal(t, 2025, page.Records[0].CreatedAt.Year())

	fresh := NewConversation("c2", time.Now())
	assert.True(t, fresh.Generating)
	assert.Equal(t, DefaultConversationTitle, fresh.DisplayTitle())
}

func TestUser_Initials(t *testing.T) {
	assert.Equal(t, "FL", User{}.Initials())
	assert.Equal(t, "AL", User{Username: "alice"}.Initials())
	assert.Equal(t, "JD", User{Username: "john_doe"}.Initials())
}
