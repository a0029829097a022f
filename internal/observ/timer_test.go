package observ

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerReport(t *testing.T) {
	tm := NewTimer()
	end := tm.Track("lower")
	inner := tm.Begin("lower/signatures")
	time.Sleep(time.Millisecond)
	tm.End(inner, "4 decls")
	end("")

	r := tm.Report()
	require.Len(t, r.Phases, 2)
	assert.Equal(t, r.Phases[0].DurationMS, r.TotalMS, "nested phase counted in total")
	s := tm.Summary()
	assert.Contains(t, s, "// 4 decls")
	assert.Contains(t, s, "total")
	tm.End(99, "ignored")
}

func TestTimerConcurrent(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tm.Track("req")("")
		}()
	}
	wg.Wait()
	assert.Len(t, tm.Phases(), 8)

	var nilTimer *Timer
	assert.NotPanics(t, func() { nilTimer.Track("x")("") })
}
