package evaluate

import (
	"testing"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

func intp(v int) *int { return &v }

func TestSeverityThresholds(t *testing.T) {
	cases := []struct {
		loss    float64
		best    bool
		want    coachdto.Severity
	}{
		{0.0, true, coachdto.SeverityBest},
		{0.0, false, coachdto.SeverityGood},
		{0.01, true, coachdto.SeverityGood},
		{0.49, false, coachdto.SeverityGood},
		{0.5, false, coachdto.SeverityInaccuracy},
		{0.99, false, coachdto.SeverityInaccuracy},
		{1.0, false, coachdto.SeverityMistake},
		{2.99, false, coachdto.SeverityMistake},
		{3.0, false, coachdto.SeverityBlunder},
		{12.5, false, coachdto.SeverityBlunder},
		{-0.3, true, coachdto.SeverityBest},
	}
	for _, c := range cases {
		if got := SeverityOf(c.loss, c.best); got != c.want {
			t.Fatalf("SeverityOf(%v, %v) = %s, want %s", c.loss, c.best, got, c.want)
		}
	}
}

func TestSeverityMonotonic(t *testing.T) {
	prev := SeverityOf(0, false)
	for loss := 0.0; loss <= 6.0; loss += 0.01 {
		s := SeverityOf(loss, false)
		if s.Rank() < prev.Rank() {
			t.Fatalf("severity decreased at loss=%v: %s -> %s", loss, prev, s)
		}
		prev = s
	}
}

func TestCPLoss(t *testing.T) {
	if got := CPLoss(intp(120), intp(20)); got != 1.0 {
		t.Fatalf("CPLoss = %v, want 1.0", got)
	}
	// A move cannot gain over the best line; negative differences clamp to 0.
	if got := CPLoss(intp(20), intp(80)); got != 0 {
		t.Fatalf("CPLoss clamp = %v, want 0", got)
	}
	if got := CPLoss(nil, intp(50)); got != 0 {
		t.Fatalf("CPLoss nil before = %v, want 0", got)
	}
	if got := CPLoss(intp(50), nil); got != 0 {
		t.Fatalf("CPLoss nil after = %v, want 0", got)
	}
}

func TestMateClampOrdering(t *testing.T) {
	mateIn1 := ClampCP(coachdto.MateScore(1))
	mateIn3 := ClampCP(coachdto.MateScore(3))
	finite := ClampCP(coachdto.CentipawnScore(950))
	matedIn3 := ClampCP(coachdto.MateScore(-3))
	matedIn1 := ClampCP(coachdto.MateScore(-1))

	if !(mateIn1 > mateIn3 && mateIn3 > finite && finite > matedIn3 && matedIn3 > matedIn1) {
		t.Fatalf("mate ordering broken: m1=%d m3=%d cp=%d m-3=%d m-1=%d",
			mateIn1, mateIn3, finite, matedIn3, matedIn1)
	}
}

func TestNegate(t *testing.T) {
	if Negate(nil) != nil {
		t.Fatalf("Negate(nil) should stay nil")
	}
	if got := Negate(intp(-75)); *got != 75 {
		t.Fatalf("Negate(-75) = %d, want 75", *got)
	}
}

func TestClampCPRef(t *testing.T) {
	if ClampCPRef(nil) != nil {
		t.Fatalf("nil score should stay nil")
	}
	if ClampCPRef(&coachdto.EngineScore{}) != nil {
		t.Fatalf("empty score should stay nil")
	}
	s := coachdto.MateScore(-2)
	if got := ClampCPRef(&s); got == nil || *got != -(mateValueCP - 2) {
		t.Fatalf("ClampCPRef(mate -2) = %v", got)
	}
}
