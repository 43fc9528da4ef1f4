// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import "testing"

func TestNewTheme_ExplicitMode(t *testing.T) {
	if th := NewTheme("light"); th.IsDark {
		t.Error("light theme reports dark background")
	}
	if th := NewTheme("dark"); !th.IsDark {
		t.Error("dark theme reports light background")
	}
}

func TestGetLayoutMode(t *testing.T) {
	th := NewTheme("dark")
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{80, LayoutMedium},
		{120, LayoutWide},
	}
	for _, tt := range tests {
		th.SetSize(tt.width, 24)
		if got := th.GetLayoutMode(); got != tt.want {
			t.Errorf("width %d: got %v, want %v", tt.width, got, tt.want)
		}
	}
}
