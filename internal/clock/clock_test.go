package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	c := NewFake(epoch)
	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(1*time.Second, func() { got = append(got, "a") })
	c.AfterFunc(5*time.Second, func() { got = append(got, "c") })

	c.Advance(3 * time.Second)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
	if want := epoch.Add(3 * time.Second); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestFake_CallbackSeesDeadline(t *testing.T) {
	c := NewFake(epoch)
	var at time.Time
	c.AfterFunc(1500*time.Millisecond, func() { at = c.Now() })

	c.Advance(10 * time.Second)

	if want := epoch.Add(1500 * time.Millisecond); !at.Equal(want) {
		t.Errorf("callback Now() = %v, want %v", at, want)
	}
}

func TestFake_RescheduleDuringAdvance(t *testing.T) {
	c := NewFake(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)

	if count != 3 {
		t.Errorf("ticks = %d, want 3", count)
	}
}

func TestFake_Stop(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("first Stop() = false, want true")
	}
	if timer.Stop() {
		t.Error("second Stop() = true, want false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFake_NotDueYet(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	c.AfterFunc(2500*time.Millisecond, func() { fired = true })

	c.Advance(2499 * time.Millisecond)
	if fired {
		t.Fatal("timer fired before deadline")
	}
	c.Advance(time.Millisecond)
	if !fired {
		t.Fatal("timer did not fire at deadline")
	}
}
