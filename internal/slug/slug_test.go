package slug

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRandomShape(t *testing.T) {
	for i := 0; i < 200; i++ {
		s, err := Random(Length)
		if err != nil {
			t.Fatalf("Random: %v", err)
		}
		if len(s) != Length {
			t.Fatalf("len(%q) = %d, want %d", s, len(s), Length)
		}
		for _, c := range s {
			if !strings.ContainsRune(alphabet, c) {
				t.Fatalf("slug %q contains %q outside the alphabet", s, c)
			}
		}
	}
}

func TestRandomVaries(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, _ := Random(Length)
		seen[s] = true
	}
	// 62^6 values; 100 draws colliding more than once would point at a broken source.
	if len(seen) < 99 {
		t.Errorf("expected ~100 distinct slugs, got %d", len(seen))
	}
}

// sequence returns a Generator yielding the given values in order.
func sequence(values ...string) Generator {
	i := 0
	return func() (string, error) {
		v := values[i%len(values)]
		i++
		return v, nil
	}
}

func TestUniqueRetriesOnCollision(t *testing.T) {
	existing := map[string]bool{"aaaaaa": true, "bbbbbb": true}
	var checked []string
	taken := func(_ context.Context, s string) (bool, error) {
		checked = append(checked, s)
		return existing[s], nil
	}

	got, err := Unique(context.Background(), sequence("aaaaaa", "bbbbbb", "cccccc"), taken, MaxAttempts)
	if err != nil {
		t.Fatalf("Unique: %v", err)
	}
	if got != "cccccc" {
		t.Errorf("got %q, want %q", got, "cccccc")
	}
	if existing[got] {
		t.Error("returned slug collides with an existing one")
	}
	if len(checked) != 3 {
		t.Errorf("checked %d candidates, want 3", len(checked))
	}
}

func TestUniqueExhausted(t *testing.T) {
	taken := func(context.Context, string) (bool, error) { return true, nil }

	_, err := Unique(context.Background(), sequence("aaaaaa"), taken, 3)
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("err = %v, want ErrExhausted", err)
	}
}

func TestUniqueCheckError(t *testing.T) {
	boom := errors.New("db down")
	taken := func(context.Context, string) (bool, error) { return false, boom }

	_, err := Unique(context.Background(), Default(), taken, 3)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"aB3dE9", true},
		{"with-dash_and_underscore", true},
		{"", false},
		{"has space", false},
		{"dot.php", false},
		{"slash/x", false},
		{strings.Repeat("a", 51), false},
	}
	for _, tt := range tests {
		if got := Valid(tt.in); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
