package engine

import "testing"

func TestGetTier(t *testing.T) {
	cases := []struct {
		name  string
		skill int
		ms    int
	}{
		{"beginner", 3, 150},
		{"intermediate", 8, 250},
		{"advanced", 13, 400},
		{"expert", 18, 800},
	}
	for _, c := range cases {
		tier, err := GetTier(c.name)
		if err != nil {
			t.Fatalf("GetTier(%s): %v", c.name, err)
		}
		if tier.SkillLevel != c.skill || tier.MoveTimeMillis != c.ms {
			t.Fatalf("tier %s = %+v", c.name, tier)
		}
	}

	if _, err := GetTier("grandmaster"); err == nil {
		t.Fatalf("expected error for unknown tier")
	}

	tier, err := GetTier("")
	if err != nil || tier.Name != DefaultTierName {
		t.Fatalf("empty tier should default to %s, got %+v err=%v", DefaultTierName, tier, err)
	}

	// Case and whitespace are normalized like other user-facing tokens.
	if tier, err := GetTier("  Expert "); err != nil || tier.SkillLevel != 18 {
		t.Fatalf("normalized lookup failed: %+v err=%v", tier, err)
	}
}

func TestSANLine(t *testing.T) {
	moveSAN, line := sanLine("startpos", []string{"e2e4", "e7e5", "g1f3"})
	if moveSAN != "e4" {
		t.Fatalf("moveSAN = %q, want e4", moveSAN)
	}
	if len(line) != 3 || line[2] != "Nf3" {
		t.Fatalf("line = %v", line)
	}

	// Illegal continuation stops the line but keeps the prefix.
	moveSAN, line = sanLine("startpos", []string{"e2e4", "e2e4"})
	if moveSAN != "e4" || len(line) != 1 {
		t.Fatalf("truncated line = %q %v", moveSAN, line)
	}
}
