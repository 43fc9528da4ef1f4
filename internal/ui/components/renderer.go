// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// maxCachedRenders bounds the render cache; it is cleared when full.
const maxCachedRenders = 256

// =============================================================================
// RENDERER
// =============================================================================

// Renderer turns message text into terminal output. With markdown enabled it
// uses glamour; otherwise text is wrapped as-is and fenced code blocks are
// syntax highlighted.
//
// Finished messages render identically on every frame, so results are cached
// by text.
type Renderer struct {
	mu       sync.Mutex
	width    int
	markdown bool
	dark     bool
	md       *glamour.TermRenderer
	cache    map[string]string
}

// NewRenderer creates a renderer wrapping at width columns.
func NewRenderer(width int, markdown, dark bool) *Renderer {
	r := &Renderer{markdown: markdown, dark: dark}
	r.SetWidth(width)
	return r
}

// SetWidth changes the wrap width and drops cached output.
func (r *Renderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if width == r.width && r.cache != nil {
		return
	}
	r.width = width
	r.cache = make(map[string]string)
	r.md = nil
	if !r.markdown {
		return
	}
	style := "light"
	if r.dark {
		style = "dark"
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		r.md = md
	}
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width
}

// Render renders text. Markdown failures fall back to plain rendering.
func (r *Renderer) Render(text string) string {
	if text == "" {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if out, ok := r.cache[text]; ok {
		return out
	}

	var out string
	if r.md != nil {
		rendered, err := r.md.Render(text)
		if err == nil {
			out = strings.Trim(rendered, "\n")
		}
	}
	if out == "" {
		out = renderPlain(text, r.width)
	}

	if len(r.cache) >= maxCachedRenders {
		r.cache = make(map[string]string)
	}
	r.cache[text] = out
	return out
}

// renderPlain wraps prose to width and highlights fenced code blocks, which
// are left unwrapped.
func renderPlain(text string, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	var out, prose, code []string
	var inCode bool
	var language string

	flushProse := func() {
		if len(prose) > 0 {
			out = append(out, wrap.Render(strings.Join(prose, "\n")))
			prose = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inCode {
				out = append(out, HighlightCode(strings.Join(code, "\n"), language))
				code, language, inCode = nil, "", false
				continue
			}
			flushProse()
			language = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "```"))
			inCode = true
			continue
		}
		if inCode {
			code = append(code, line)
		} else {
			prose = append(prose, line)
		}
	}
	// An unclosed fence is common mid-stream.
	if inCode {
		out = append(out, HighlightCode(strings.Join(code, "\n"), language))
	}
	flushProse()
	return strings.Join(out, "\n")
}

// =============================================================================
// SYNTAX HIGHLIGHTING
// =============================================================================

// HighlightCode highlights code for a 256-color terminal. The language is
// guessed when empty or unknown; on any failure the code is returned as-is.
func HighlightCode(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}
