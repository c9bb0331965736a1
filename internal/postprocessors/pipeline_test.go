package postprocessors

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

func TestPipeline_AddKeepsOrder(t *testing.T) {
	p := NewPipeline()
	p.Add(NewDeduplicator(DefaultDeduplicatorConfig()))
	p.Add(NewWhitespaceNormalizer())
	p.Add(NewChunker(DefaultChunkConfig()))

	names := p.List()
	want := []string{"chunker", "whitespace-normalizer", "deduplicator"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestPipeline_Process_Empty(t *testing.T) {
	p := DefaultPipeline(DefaultChunkConfig())

	if got := p.Process(nil); len(got) != 0 {
		t.Errorf("expected no segments, got %d", len(got))
	}
	if got := p.Process([]string{"   ", "\n\n"}); len(got) != 0 {
		t.Errorf("expected blank fragments to be dropped, got %d", len(got))
	}
}

func TestPipeline_Process_SmallFragments(t *testing.T) {
	p := DefaultPipeline(DefaultChunkConfig())

	segs := p.Process([]string{"Página uno.", "Página  dos.", "", "Página tres."})
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, s := range segs {
		if s.Position != i {
			t.Errorf("segment %d: expected position %d, got %d", i, i, s.Position)
		}
	}
	if segs[1].Content != "Página dos." {
		t.Errorf("expected collapsed spaces, got %q", segs[1].Content)
	}
}

func TestPipeline_Process_RenumbersAcrossFragments(t *testing.T) {
	p := DefaultPipeline(ChunkConfig{MaxChunkSize: 20, Overlap: 5})

	long := strings.Repeat("abcd ", 10)
	segs := p.Process([]string{long, "corto"})
	if len(segs) < 3 {
		t.Fatalf("expected the long fragment to be split, got %d segments", len(segs))
	}
	for i, s := range segs {
		if s.Position != i {
			t.Errorf("segment %d has position %d", i, s.Position)
		}
	}
	if segs[len(segs)-1].Content != "corto" {
		t.Errorf("expected last segment from second fragment, got %q", segs[len(segs)-1].Content)
	}
}

func TestDefaultChunkConfig(t *testing.T) {
	cfg := DefaultChunkConfig()
	if cfg.MaxChunkSize != 500 || cfg.Overlap != 50 {
		t.Errorf("expected 500/50, got %d/%d", cfg.MaxChunkSize, cfg.Overlap)
	}
}

func TestNewChunker_InvalidConfig(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChunkSize: 0, Overlap: 900})
	if c.config.MaxChunkSize != 500 {
		t.Errorf("expected default size, got %d", c.config.MaxChunkSize)
	}
	if c.config.Overlap != 0 {
		t.Errorf("expected overlap reset, got %d", c.config.Overlap)
	}
}

func TestChunker_ShortSegmentUntouched(t *testing.T) {
	c := NewChunker(DefaultChunkConfig())
	in := []driven.Segment{{Content: "hola", EndOffset: 4}}

	out := c.Process(in)
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("expected segment unchanged, got %+v", out)
	}
}

func TestChunker_FixedWindowsWithOverlap(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChunkSize: 10, Overlap: 3})
	text := "abcdefghijklmnopqrstuvwxyz"

	out := c.Process([]driven.Segment{{Content: text, EndOffset: len(text)}})

	want := []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxyz"}
	if len(out) != len(want) {
		t.Fatalf("expected %d windows, got %d: %+v", len(want), len(out), out)
	}
	for i := range want {
		if out[i].Content != want[i] {
			t.Errorf("window %d: expected %q, got %q", i, want[i], out[i].Content)
		}
	}
	if out[1].StartOffset != 7 || out[1].EndOffset != 17 {
		t.Errorf("unexpected offsets %d-%d", out[1].StartOffset, out[1].EndOffset)
	}
}

func TestChunker_CountsRunes(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChunkSize: 5, Overlap: 0})
	text := "ñáéíóúü"

	out := c.Process([]driven.Segment{{Content: text}})
	if len(out) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(out))
	}
	for _, s := range out {
		if !utf8.ValidString(s.Content) {
			t.Errorf("window split a multi-byte rune: %q", s.Content)
		}
	}
	if out[0].Content != "ñáéíó" {
		t.Errorf("expected first 5 runes, got %q", out[0].Content)
	}
}

func TestChunker_PreserveSentences(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChunkSize: 40, Overlap: 5, PreserveSentences: true})
	text := "Primera frase corta. Segunda frase que sigue y sigue sin parar."

	out := c.Process([]driven.Segment{{Content: text}})
	if len(out) < 2 {
		t.Fatalf("expected split, got %d", len(out))
	}
	if out[0].Content != "Primera frase corta. " {
		t.Errorf("expected break after sentence, got %q", out[0].Content)
	}
}

func TestChunker_PreserveParagraphs(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChunkSize: 40, Overlap: 5, PreserveParagraphs: true, PreserveSentences: true})
	text := "Párrafo uno. Más texto\n\nPárrafo dos con bastante más contenido."

	out := c.Process([]driven.Segment{{Content: text}})
	if !strings.HasSuffix(out[0].Content, "\n\n") {
		t.Errorf("expected break at paragraph, got %q", out[0].Content)
	}
}

func TestChunker_NoBreakPoint(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChunkSize: 10, Overlap: 2, PreserveSentences: true})
	text := strings.Repeat("x", 25)

	out := c.Process([]driven.Segment{{Content: text}})
	if len(out) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(out))
	}
	if utf8.RuneCountInString(out[0].Content) != 10 {
		t.Errorf("expected full window, got %q", out[0].Content)
	}
}

func TestWhitespaceNormalizer(t *testing.T) {
	w := NewWhitespaceNormalizer()

	tests := []struct {
		in   string
		want string
	}{
		{"a\r\nb\rc", "a\nb\nc"},
		{"a    b\t\tc", "a b c"},
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"   padded   ", "padded"},
		{"  line one  \n  line two  ", "line one\nline two"},
	}
	for _, tt := range tests {
		out := w.Process([]driven.Segment{{Content: tt.in, Position: 3, StartOffset: 1, EndOffset: 9}})
		if len(out) != 1 {
			t.Fatalf("%q: expected 1 segment", tt.in)
		}
		if out[0].Content != tt.want {
			t.Errorf("%q: expected %q, got %q", tt.in, tt.want, out[0].Content)
		}
		if out[0].Position != 3 || out[0].StartOffset != 1 || out[0].EndOffset != 9 {
			t.Errorf("%q: metadata not preserved: %+v", tt.in, out[0])
		}
	}

	if out := w.Process([]driven.Segment{{Content: " \n\t "}}); len(out) != 0 {
		t.Errorf("expected blank segment dropped, got %+v", out)
	}
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(DeduplicatorConfig{MinDuplicateLength: 10})
	header := "CONFIDENCIAL - Documento interno"

	out := d.Process([]driven.Segment{
		{Content: header},
		{Content: "contenido de la página uno"},
		{Content: strings.ToLower(header) + "  "},
		{Content: "corto"},
		{Content: "corto"},
	})

	if len(out) != 4 {
		t.Fatalf("expected 4 segments, got %d: %+v", len(out), out)
	}
	if out[0].Content != header {
		t.Errorf("expected first occurrence kept, got %q", out[0].Content)
	}
}

func TestDeduplicator_Trivial(t *testing.T) {
	d := NewDeduplicator(DefaultDeduplicatorConfig())
	if out := d.Process(nil); len(out) != 0 {
		t.Errorf("expected empty output")
	}
	one := []driven.Segment{{Content: "x"}}
	if out := d.Process(one); len(out) != 1 {
		t.Errorf("expected single segment kept")
	}
}
