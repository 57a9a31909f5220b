package coach

import (
	"fmt"
	"strings"

	"github.com/ai-chess-training/LLM-ChessCoach/pkg/coachdto"
)

const (
	basicWordLimit    = 15
	extendedWordLimit = 100
	drillLineCap      = 12
	drillTrapCap      = 8
)

func truncateWords(text string, max int) string {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) <= max {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[:max], " ")
}

// RuleResult builds deterministic coaching text from engine data alone.
// It is the fallback path when the oracle is absent, slow, or failing.
func RuleResult(fb coachdto.MoveFeedback) Result {
	return Result{
		Basic:    ruleBasic(fb),
		Extended: ruleExtended(fb),
		Drills:   makeDrills(fb),
		Source:   coachdto.CoachSourceFallback,
	}
}

func ruleBasic(fb coachdto.MoveFeedback) string {
	if fb.Severity == coachdto.SeverityBest || fb.Severity == coachdto.SeverityGood {
		return truncateWords("Solid move. Keep building your plan.", basicWordLimit)
	}
	if fb.BestMoveSAN != "" {
		return truncateWords(fmt.Sprintf("Better was %s. Consider the threats.", fb.BestMoveSAN), basicWordLimit)
	}
	return truncateWords("Missed stronger option. Improve piece activity.", basicWordLimit)
}

func ruleExtended(fb coachdto.MoveFeedback) string {
	var bestLine []string
	if len(fb.MultiPV) > 0 {
		bestLine = fb.MultiPV[0].LineSAN
	}
	if len(bestLine) > 8 {
		bestLine = bestLine[:8]
	}
	why := "This improves piece activity and reduces tactical weaknesses."
	if fb.CPLoss >= 0.5 {
		why = "This line protects against threats and gains a positional edge."
	}
	text := fmt.Sprintf("You played %s. Engine prefers %s. Evaluation worsened by %.2f pawns. Main line: %s. %s",
		fb.SAN, fb.BestMoveSAN, fb.CPLoss, strings.Join(bestLine, " "), why)
	return truncateWords(text, extendedWordLimit)
}

// makeDrills extracts a practice position for moves worth revisiting.
func makeDrills(fb coachdto.MoveFeedback) []coachdto.Drill {
	if fb.Severity.Rank() < coachdto.SeverityInaccuracy.Rank() {
		return nil
	}

	var bestLine, alt []string
	if len(fb.MultiPV) > 0 {
		bestLine = fb.MultiPV[0].LineSAN
	}
	if len(fb.MultiPV) > 1 {
		alt = fb.MultiPV[1].LineSAN
	}

	objective := "Find the best continuation"
	joined := strings.Join(bestLine, " ")
	if len(bestLine) >= 1 && (strings.Contains(joined, "#") || strings.Contains(joined, "+")) {
		objective = "Convert advantage: find forcing line"
	}

	if len(bestLine) > drillLineCap {
		bestLine = bestLine[:drillLineCap]
	}
	if len(alt) > drillTrapCap {
		alt = alt[:drillTrapCap]
	}

	return []coachdto.Drill{{
		FEN:         fb.FENBefore,
		SideToMove:  fb.Side,
		Objective:   objective,
		BestLineSAN: bestLine,
		AltTrapsSAN: alt,
	}}
}
