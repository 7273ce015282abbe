package segment_test

import (
	"testing"

	"github.com/MrWong99/kousei/internal/segment"
)

func TestParse_OrderAndIDs(t *testing.T) {
	t.Parallel()

	input := "[0:00:01 - 0:00:27]\n最初のセグメントです。\n\n" +
		"[0:00:27 - 0:00:58]\n二番目のセグメントです。\n\n" +
		"[0:00:58 - 0:01:30]\n三番目のセグメントです。\n"

	segs := segment.Parse(input)
	if len(segs) != 3 {
		t.Fatalf("Parse returned %d segments, want 3", len(segs))
	}

	wantStarts := []string{"0:00:01", "0:00:27", "0:00:58"}
	for i, s := range segs {
		if s.ID != i+1 {
			t.Errorf("segment %d: ID=%d, want %d", i, s.ID, i+1)
		}
		if s.StartTime != wantStarts[i] {
			t.Errorf("segment %d: StartTime=%q, want %q", i, s.StartTime, wantStarts[i])
		}
	}
}

func TestParse_TextBeforeFirstHeaderIgnored(t *testing.T) {
	t.Parallel()

	input := "前置きのテキスト\n[0:00:01 - 0:00:05]\n本文です。\n"
	segs := segment.Parse(input)
	if len(segs) != 1 {
		t.Fatalf("Parse returned %d segments, want 1", len(segs))
	}
	if segs[0].Original != "本文です。" {
		t.Errorf("Original=%q, want %q", segs[0].Original, "本文です。")
	}
}

func TestParse_WhitespaceOnlyUnitDropped(t *testing.T) {
	t.Parallel()

	input := "[0:00:01 - 0:00:05]\n   \n\n[0:00:05 - 0:00:10]\n中身あり\n"
	segs := segment.Parse(input)
	if len(segs) != 1 {
		t.Fatalf("Parse returned %d segments, want 1", len(segs))
	}
	// The surviving segment must still get ID 1 — no gaps in the sequence.
	if segs[0].ID != 1 {
		t.Errorf("ID=%d, want 1", segs[0].ID)
	}
	if segs[0].Original != "中身あり" {
		t.Errorf("Original=%q, want %q", segs[0].Original, "中身あり")
	}
}

func TestParse_MalformedHeaderFallsBackToSentinel(t *testing.T) {
	t.Parallel()

	input := "[intro - outro]\nタイムスタンプが壊れています\n"
	segs := segment.Parse(input)
	if len(segs) != 1 {
		t.Fatalf("Parse returned %d segments, want 1", len(segs))
	}
	if segs[0].StartTime != segment.SentinelTime || segs[0].EndTime != segment.SentinelTime {
		t.Errorf("timestamps=%q/%q, want sentinel %q", segs[0].StartTime, segs[0].EndTime, segment.SentinelTime)
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	if segs := segment.Parse(""); len(segs) != 0 {
		t.Errorf("Parse(\"\") returned %d segments, want 0", len(segs))
	}
	if segs := segment.Parse("ヘッダーのないテキストだけ"); len(segs) != 0 {
		t.Errorf("Parse without headers returned %d segments, want 0", len(segs))
	}
}

func TestRenderParse_RoundTrip(t *testing.T) {
	t.Parallel()

	input := "[0:00:01 - 0:00:27]\n皆さんこんばんは、と申します。\n\n" +
		"[0:00:27 - 0:00:58]\n本日はDay2の講座になります。\n\n"

	first := segment.Parse(input)
	rendered := segment.Render(first)
	second := segment.Parse(rendered)

	if len(first) != len(second) {
		t.Fatalf("round trip changed segment count: %d -> %d", len(first), len(second))
	}
	for i := range first {
		if first[i].StartTime != second[i].StartTime ||
			first[i].EndTime != second[i].EndTime ||
			first[i].Original != second[i].Original {
			t.Errorf("segment %d: round trip mismatch: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestText_PrefersCorrected(t *testing.T) {
	t.Parallel()

	s := segment.Segment{Original: "もと", Corrected: "直したもの"}
	if s.Text() != "直したもの" {
		t.Errorf("Text()=%q, want corrected text", s.Text())
	}
	s.Corrected = ""
	if s.Text() != "もと" {
		t.Errorf("Text()=%q, want original text", s.Text())
	}
}
