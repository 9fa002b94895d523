package console

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FrameTimer tracks wall-clock time per named frame section (the app uses
// input, emu, render) and produces a once-a-second FPS summary for the window title.
type FrameTimer struct {
	frameStart  time.Time
	lastCheckin time.Time
	sums        map[string]time.Duration
	order       []string
	numFrames   int
	lastDump    time.Time
	fps         string
}

// NewFrameTimer creates an idle timer.
func NewFrameTimer() *FrameTimer {
	return &FrameTimer{
		sums:     make(map[string]time.Duration),
		lastDump: time.Now(),
	}
}

// StartFrame marks the beginning of a frame.
func (t *FrameTimer) StartFrame() {
	now := time.Now()
	t.frameStart = now
	t.lastCheckin = now
}

// Checkin attributes the time since the last checkin to section name.
func (t *FrameTimer) Checkin(name string) {
	now := time.Now()
	if _, ok := t.sums[name]; !ok {
		t.order = append(t.order, name)
	}
	t.sums[name] += now.Sub(t.lastCheckin)
	t.lastCheckin = now
}

// EndFrame closes the frame and refreshes the summary once per second.
func (t *FrameTimer) EndFrame() {
	t.numFrames++
	now := time.Now()
	if elapsed := now.Sub(t.lastDump); elapsed >= time.Second {
		t.dump(now, elapsed)
	}
}

func (t *FrameTimer) dump(now time.Time, elapsed time.Duration) {
	var b strings.Builder
	fmt.Fprintf(&b, "%.1f FPS", float64(t.numFrames)/elapsed.Seconds())

	names := append([]string(nil), t.order...)
	sort.Strings(names)
	for _, name := range names {
		perFrame := t.sums[name] / time.Duration(t.numFrames)
		fmt.Fprintf(&b, " | %s %.1fms", name, float64(perFrame.Microseconds())/1000)
	}
	t.fps = b.String()

	t.lastDump = now
	t.sums = make(map[string]time.Duration)
	t.order = t.order[:0]
	t.numFrames = 0
}

// FPSString returns the latest summary, empty until the first second elapses.
func (t *FrameTimer) FPSString() string {
	return t.fps
}
