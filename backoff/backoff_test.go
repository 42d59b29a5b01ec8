package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/stepchain/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.NewConstant(15 * time.Second)
	for n := 1; n <= 10; n++ {
		if got := c.Delay(n); got != 15*time.Second {
			t.Errorf("Delay(%d) = %v, want 15s", n, got)
		}
	}
}

func TestLinear(t *testing.T) {
	l := backoff.NewLinear(time.Second, 5*time.Second)

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{3, 3 * time.Second},
		{5, 5 * time.Second},
		{100, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)

	tests := []struct {
		n    int
		want time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{10000, time.Minute},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestExponential_Uncapped(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0)
	if got := e.Delay(10000); got <= 0 {
		t.Errorf("Delay(10000) = %v, expected saturation instead of overflow", got)
	}
}

func TestJitter(t *testing.T) {
	j := backoff.WithJitter(backoff.NewConstant(10*time.Second), 0.5)
	for range 100 {
		d := j.Delay(1)
		if d < 5*time.Second || d > 10*time.Second {
			t.Fatalf("Delay = %v, want within [5s, 10s]", d)
		}
	}

	if got := backoff.WithJitter(backoff.NewConstant(0), 1).Delay(1); got != 0 {
		t.Errorf("zero base delay = %v", got)
	}
	if got := backoff.WithJitter(backoff.NewConstant(time.Second), -3).Delay(1); got != time.Second {
		t.Errorf("negative fraction must clamp to 0, got %v", got)
	}
}

func TestFunc(t *testing.T) {
	f := backoff.Func(func(n int) time.Duration { return time.Duration(n) * time.Millisecond })
	if got := f.Delay(7); got != 7*time.Millisecond {
		t.Errorf("Delay(7) = %v", got)
	}
}

func TestDefault(t *testing.T) {
	if got := backoff.Default(30 * time.Second).Delay(3); got != 30*time.Second {
		t.Errorf("Default(30s).Delay(3) = %v", got)
	}
}
