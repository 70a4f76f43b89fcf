package mdevents

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogProgress_LogsEveryReportWithoutInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogProgress(slog.New(slog.NewTextHandler(&buf, nil)), 200, 0)

	assert.NoError(t, p.Report(50, "adding events"))
	assert.NoError(t, p.Report(50, "adding events"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[1], "done=100")
	assert.Contains(t, lines[1], "expected=200")
	assert.Contains(t, lines[1], "percent=50")
	assert.Equal(t, uint64(100), p.Done())
}

func TestLogProgress_RateLimited(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogProgress(slog.New(slog.NewTextHandler(&buf, nil)), 0, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Report(2, "adding events")
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(100), p.Done(), "every report is counted")
	assert.Equal(t, 1, strings.Count(buf.String(), "adding events"), "only the first report is logged")
	assert.NotContains(t, buf.String(), "expected=")
}

func TestProgressFunc(t *testing.T) {
	var got []int
	p := ProgressFunc(func(n int, msg string) error {
		got = append(got, n)
		return nil
	})
	_ = p.Report(3, "x")
	_ = p.Report(4, "y")
	assert.Equal(t, []int{3, 4}, got)
}
