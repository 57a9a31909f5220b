package engine

import (
	"fmt"
	"strings"
)

// Tier is a fixed weak-play configuration for engine reply moves.
type Tier struct {
	Name           string
	SkillLevel     int
	MoveTimeMillis int
}

var tiers = map[string]Tier{
	"beginner":     {Name: "beginner", SkillLevel: 3, MoveTimeMillis: 150},
	"intermediate": {Name: "intermediate", SkillLevel: 8, MoveTimeMillis: 250},
	"advanced":     {Name: "advanced", SkillLevel: 13, MoveTimeMillis: 400},
	"expert":       {Name: "expert", SkillLevel: 18, MoveTimeMillis: 800},
}

const DefaultTierName = "intermediate"

func GetTier(name string) (Tier, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultTierName
	}
	tier, ok := tiers[key]
	if !ok {
		return Tier{}, fmt.Errorf("unknown skill tier %q", name)
	}
	return tier, nil
}

func TierNames() []string {
	return []string{"beginner", "intermediate", "advanced", "expert"}
}
