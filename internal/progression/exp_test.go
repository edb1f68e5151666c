package progression

import "testing"

func TestExpForLevelTable(t *testing.T) {
	expected := map[int]int{1: 0, 2: 100, 3: 250, 4: 500, 5: 1000, 6: 1500, 7: 2250}
	for level, want := range expected {
		if got := ExpForLevel(level); got != want {
			t.Errorf("ExpForLevel(%d) = %d, want %d", level, got, want)
		}
	}
}

func TestExpForLevelStrictlyIncreasing(t *testing.T) {
	prev := ExpForLevel(1)
	for level := 2; level <= 30; level++ {
		cur := ExpForLevel(level)
		if cur <= prev {
			t.Fatalf("ExpForLevel(%d) = %d, not greater than ExpForLevel(%d) = %d", level, cur, level-1, prev)
		}
		prev = cur
	}
}

func TestLevelFromExpRoundTrip(t *testing.T) {
	for level := 1; level <= 25; level++ {
		threshold := ExpForLevel(level)
		if got := LevelFromExp(threshold); got != level {
			t.Errorf("LevelFromExp(ExpForLevel(%d)) = %d, want %d", level, got, level)
		}
		if level > 1 {
			if got := LevelFromExp(threshold - 1); got != level-1 {
				t.Errorf("LevelFromExp(ExpForLevel(%d)-1) = %d, want %d", level, got, level-1)
			}
		}
	}
}

func TestLevelFromExpNonDecreasing(t *testing.T) {
	prev := 1
	for exp := 0; exp <= 5000; exp += 50 {
		level := LevelFromExp(exp)
		if level < prev {
			t.Fatalf("LevelFromExp(%d) = %d, dropped below %d", exp, level, prev)
		}
		prev = level
	}
}

func TestLevelFromExpBracketInvariant(t *testing.T) {
	for _, exp := range []int{0, 1, 99, 100, 249, 250, 999, 1000, 1200, 1499, 1500, 4000} {
		level := LevelFromExp(exp)
		if ExpForLevel(level) > exp {
			t.Errorf("exp %d: ExpForLevel(%d) = %d exceeds exp", exp, level, ExpForLevel(level))
		}
		if ExpForLevel(level+1) <= exp {
			t.Errorf("exp %d: ExpForLevel(%d) = %d not above exp", exp, level+1, ExpForLevel(level+1))
		}
	}
}

func TestMidCurveScenario(t *testing.T) {
	// exp=1200 sits 40% into the level 5 bracket [1000, 1500)
	exp := 1200
	level := LevelFromExp(exp)
	if level != 5 {
		t.Fatalf("LevelFromExp(1200) = %d, want 5", level)
	}
	if got := ExpToNextLevel(exp, level); got != 300 {
		t.Errorf("ExpToNextLevel(1200, 5) = %d, want 300", got)
	}
	if got := LevelProgressPercent(exp, level); got != 40 {
		t.Errorf("LevelProgressPercent(1200, 5) = %d, want 40", got)
	}
}

func TestLevelProgressPercentClamped(t *testing.T) {
	if got := LevelProgressPercent(0, 1); got != 0 {
		t.Errorf("LevelProgressPercent(0, 1) = %d, want 0", got)
	}
	if got := LevelProgressPercent(99, 1); got != 99 {
		t.Errorf("LevelProgressPercent(99, 1) = %d, want 99", got)
	}
	// Degenerate bracket reports complete rather than dividing by zero
	if got := LevelProgressPercent(50, 0); got != 100 {
		t.Errorf("LevelProgressPercent(50, 0) = %d, want 100", got)
	}
}

func TestExpFromPages(t *testing.T) {
	tests := []struct {
		pages, streak, bonus, want int
	}{
		{30, 0, DefaultStreakBonusPerDay, 30},
		{30, 5, DefaultStreakBonusPerDay, 80},
		{0, 3, DefaultStreakBonusPerDay, 30},
		{12, 2, 0, 12},
		{-5, 1, DefaultStreakBonusPerDay, 10},
	}
	for _, tt := range tests {
		if got := ExpFromPages(tt.pages, tt.streak, tt.bonus); got != tt.want {
			t.Errorf("ExpFromPages(%d, %d, %d) = %d, want %d", tt.pages, tt.streak, tt.bonus, got, tt.want)
		}
	}
}
