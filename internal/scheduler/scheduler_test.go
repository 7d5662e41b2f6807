package scheduler

import (
	"reflect"
	"testing"

	"streamgate/internal/domain"
)

const mib = int64(1 << 20)

func testLayout() Layout {
	// 2 GiB file starting 512 MiB into the torrent, 1 MiB pieces.
	return Layout{
		PieceLength: mib,
		NumPieces:   4096,
		FileOffset:  512 * mib,
		FileLength:  2048 * mib,
	}
}

func TestWindowStartPiece(t *testing.T) {
	l := testLayout()
	cases := []struct {
		off       int64
		wantStart int
	}{
		{0, 512},
		{1, 512},
		{mib - 1, 512},
		{mib, 513},
		{100 * mib, 612},
		{2048*mib - 1, 512 + 2047},
	}
	for _, c := range cases {
		span, ok := Window(l, domain.Range{Off: c.off, Length: 8 * mib})
		if !ok {
			t.Fatalf("Window(off=%d) not ok", c.off)
		}
		if span.Start != c.wantStart {
			t.Errorf("Window(off=%d).Start = %d, want %d", c.off, span.Start, c.wantStart)
		}
	}
}

func TestWindowClampsToFile(t *testing.T) {
	l := testLayout()
	span, ok := Window(l, domain.Range{Off: 2040 * mib, Length: 100 * mib})
	if !ok {
		t.Fatal("window near EOF must still be valid")
	}
	fileEndPiece := int((l.FileOffset + l.FileLength + l.PieceLength - 1) / l.PieceLength)
	if span.End > fileEndPiece {
		t.Fatalf("span.End = %d extends past file end piece %d", span.End, fileEndPiece)
	}
}

func TestWindowClampsToTorrent(t *testing.T) {
	l := Layout{PieceLength: mib, NumPieces: 10, FileOffset: 0, FileLength: 10 * mib}
	span, ok := Window(l, domain.Range{Off: 9 * mib, Length: 64 * mib})
	if !ok {
		t.Fatal("window at torrent tail must be valid")
	}
	if span.End != 10 {
		t.Fatalf("span.End = %d, want clamped to 10", span.End)
	}
}

func TestWindowNegativeLengthMeansToEnd(t *testing.T) {
	l := testLayout()
	span, ok := Window(l, domain.Range{Off: 0, Length: -1})
	if !ok {
		t.Fatal("open-ended window must be valid")
	}
	wantEnd := int((l.FileOffset + l.FileLength + l.PieceLength - 1) / l.PieceLength)
	if span.End != wantEnd {
		t.Fatalf("span.End = %d, want %d", span.End, wantEnd)
	}
}

func TestWindowRejectsDegenerate(t *testing.T) {
	l := testLayout()
	if _, ok := Window(l, domain.Range{Off: 0, Length: 0}); ok {
		t.Error("zero length must not produce a window")
	}
	if _, ok := Window(l, domain.Range{Off: l.FileLength, Length: mib}); ok {
		t.Error("offset at EOF must not produce a window")
	}
	if _, ok := Window(Layout{}, domain.Range{Off: 0, Length: mib}); ok {
		t.Error("zero layout must not produce a window")
	}
}

func TestPlanStateless(t *testing.T) {
	l := testLayout()
	a := Plan(l, 300*mib, 64*mib)
	b := Plan(l, 300*mib, 64*mib)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical inputs produced different plans")
	}
	// A plan after a different seek must not depend on the earlier one.
	_ = Plan(l, 1500*mib, 64*mib)
	c := Plan(l, 300*mib, 64*mib)
	if !reflect.DeepEqual(a, c) {
		t.Fatal("plan depends on a previous seek")
	}
}

func TestPlanStartsAtPlayheadPiece(t *testing.T) {
	l := testLayout()
	for _, off := range []int64{0, 7 * mib, 300*mib + 12345, 2040 * mib} {
		bands := Plan(l, off, 64*mib)
		if len(bands) == 0 {
			t.Fatalf("Plan(off=%d) empty", off)
		}
		if bands[0].Prio != domain.PriorityHigh {
			t.Fatalf("first band prio = %d, want high", bands[0].Prio)
		}
		want := int((l.FileOffset + off) / l.PieceLength)
		if bands[0].Span.Start != want {
			t.Errorf("Plan(off=%d) high band starts at piece %d, want %d", off, bands[0].Span.Start, want)
		}
	}
}

func TestPlanBandsOrderedAndDisjoint(t *testing.T) {
	l := testLayout()
	bands := Plan(l, 100*mib, 64*mib)
	if len(bands) < 3 {
		t.Fatalf("expected graduated bands, got %d", len(bands))
	}
	// All bands but the trailing low band ascend without overlap.
	ahead := bands
	if bands[len(bands)-1].Prio == domain.PriorityLow {
		ahead = bands[:len(bands)-1]
	}
	for i := 1; i < len(ahead); i++ {
		if ahead[i].Span.Start < ahead[i-1].Span.End {
			t.Errorf("band %d overlaps band %d: %+v vs %+v", i, i-1, ahead[i].Span, ahead[i-1].Span)
		}
	}
	for _, b := range bands {
		if b.Span.Empty() {
			t.Errorf("empty span in plan: %+v", b)
		}
	}
}

func TestPlanDeprioritizesBehindPlayhead(t *testing.T) {
	l := testLayout()
	off := 100 * mib
	bands := Plan(l, off, 32*mib)
	last := bands[len(bands)-1]
	if last.Prio != domain.PriorityLow {
		t.Fatalf("expected trailing low band, got prio %d", last.Prio)
	}
	playheadPiece := int((l.FileOffset + off) / l.PieceLength)
	if last.Span.End > playheadPiece {
		t.Fatalf("low band end %d reaches playhead piece %d", last.Span.End, playheadPiece)
	}
	if last.Span.Start != int(l.FileOffset/l.PieceLength) {
		t.Fatalf("low band start = %d, want file start piece", last.Span.Start)
	}
}

func TestPlanAtFileStartHasNoLowBand(t *testing.T) {
	l := testLayout()
	bands := Plan(l, 0, 32*mib)
	for _, b := range bands {
		if b.Prio == domain.PriorityLow {
			t.Fatal("plan at offset 0 must not contain a behind-playhead band")
		}
	}
}

func TestPlanSmallTailWindow(t *testing.T) {
	l := testLayout()
	// 1 MiB left in the file: everything fits in the high band.
	bands := Plan(l, l.FileLength-mib, 64*mib)
	var ahead []Band
	for _, b := range bands {
		if b.Prio != domain.PriorityLow {
			ahead = append(ahead, b)
		}
	}
	if len(ahead) != 1 || ahead[0].Prio != domain.PriorityHigh {
		t.Fatalf("tail plan = %+v, want single high band", ahead)
	}
}

func TestPlanRejectsBadOffset(t *testing.T) {
	l := testLayout()
	if got := Plan(l, l.FileLength, 64*mib); got != nil {
		t.Fatalf("Plan at EOF = %+v, want nil", got)
	}
	if got := Plan(l, -1, 64*mib); got != nil {
		t.Fatalf("Plan with negative offset = %+v, want nil", got)
	}
}
