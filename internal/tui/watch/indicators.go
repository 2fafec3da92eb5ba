package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// heartbeat flips on every UI tick. A frozen heartbeat means the TUI
// stopped redrawing, not that the dispatcher is idle.
type heartbeat bool

func (h *heartbeat) beat() { *h = !*h }

func (h heartbeat) String() string {
	if h {
		return "◆"
	}
	return "◇"
}

const (
	activityBuckets     = 12
	activityBucketWidth = 5 * time.Second
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// activity counts stream events per five-second bucket over the last
// minute. The newest bucket is last.
type activity struct {
	counts     [activityBuckets]int
	head       time.Time
	last       time.Time
	lastFailed bool
}

// advance rotates out buckets older than a minute relative to now.
func (a *activity) advance(now time.Time) {
	if a.head.IsZero() {
		a.head = now.Truncate(activityBucketWidth)
		return
	}
	steps := int(now.Sub(a.head) / activityBucketWidth)
	if steps <= 0 {
		return
	}
	if steps >= activityBuckets {
		a.counts = [activityBuckets]int{}
	} else {
		copy(a.counts[:], a.counts[steps:])
		clear(a.counts[activityBuckets-steps:])
	}
	a.head = a.head.Add(time.Duration(steps) * activityBucketWidth)
}

func (a *activity) record(at time.Time, failed bool) {
	a.advance(at)
	a.counts[activityBuckets-1]++
	a.last = at
	a.lastFailed = failed
}

// total is the number of events seen in the window.
func (a activity) total() int {
	n := 0
	for _, c := range a.counts {
		n += c
	}
	return n
}

// render draws one sparkline cell per bucket, scaled to the busiest one.
func (a activity) render(theme Theme) string {
	peak := 0
	for _, c := range a.counts {
		peak = max(peak, c)
	}

	var b strings.Builder
	for _, c := range a.counts {
		if c == 0 {
			b.WriteString(theme.Dim.Render("·"))
			continue
		}
		lvl := (c*len(sparkLevels) - 1) / peak
		b.WriteString(theme.Activity.Render(string(sparkLevels[lvl])))
	}
	return b.String()
}

// queueStyle grades the dispatch queue depth. A backlog means commands
// are running slower than frames arrive.
func queueStyle(depth int, theme Theme) lipgloss.Style {
	switch {
	case depth == 0:
		return theme.Dim
	case depth < 8:
		return theme.Busy
	default:
		return theme.Failed
	}
}

func renderQueue(depth int, theme Theme) string {
	return queueStyle(depth, theme).Render(fmt.Sprintf("%d", depth))
}
