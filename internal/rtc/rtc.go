// Package rtc keeps a software real-time clock that is set over a line
// protocol: "TYYYY-MM-DD HH:MM:SS".
package rtc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotTimeLine = errors.New("rtc: not a time line")
	ErrOutOfRange  = errors.New("rtc: field out of range")
)

const (
	minYear = 2000
	maxYear = 2099
)

// ParseTimeLine parses "TYYYY-MM-DD HH:MM:SS". Trailing characters after the
// seconds are ignored.
func ParseTimeLine(line string) (time.Time, error) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < 20 || line[0] != 'T' {
		return time.Time{}, ErrNotTimeLine
	}

	fields := [...]struct {
		name     string
		from, to int
		lo, hi   int
	}{
		{"year", 1, 5, minYear, maxYear},
		{"month", 6, 8, 1, 12},
		{"day", 9, 11, 1, 31},
		{"hour", 12, 14, 0, 23},
		{"minute", 15, 17, 0, 59},
		{"second", 18, 20, 0, 59},
	}

	var v [len(fields)]int
	for i, f := range fields {
		n, err := strconv.Atoi(line[f.from:f.to])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s %q", ErrNotTimeLine, f.name, line[f.from:f.to])
		}
		if n < f.lo || n > f.hi {
			return time.Time{}, fmt.Errorf("%w: %s %d not in %d..%d", ErrOutOfRange, f.name, n, f.lo, f.hi)
		}
		v[i] = n
	}

	year, month, day := v[0], time.Month(v[1]), v[2]
	if day > daysIn(year, month) {
		return time.Time{}, fmt.Errorf("%w: day %d not in %s %d", ErrOutOfRange, day, month, year)
	}

	return time.Date(year, month, day, v[3], v[4], v[5], 0, time.UTC), nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Weekday returns the ISO day of week, Monday=1 through Sunday=7, using
// Zeller's congruence.
func Weekday(year int, month time.Month, day int) int {
	m := int(month)
	if m < 3 {
		m += 12
		year--
	}
	k := year % 100
	j := year / 100
	h := (day + 13*(m+1)/5 + k + k/4 + j/4 + 5*j) % 7 // 0=Sat, 1=Sun, 2=Mon

	return (h+5)%7 + 1
}

// Clock is a software RTC. It reports not ready until set.
type Clock struct {
	mu     sync.Mutex
	now    func() time.Time
	offset time.Duration
	set    bool
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Set makes the clock read t at this instant.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.offset = t.Sub(c.now())
	c.set = true
	c.mu.Unlock()
}

// Now returns the clock time and whether the clock has been set.
func (c *Clock) Now() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return time.Time{}, false
	}
	return c.now().Add(c.offset).UTC().Truncate(time.Second), true
}

// Watch reads lines from r until EOF or ctx is done and sets the clock from
// every valid time line. Other lines are logged and skipped.
func (c *Clock) Watch(ctx context.Context, r io.Reader, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("rtc: read: %w", err)
			}
			return nil
		case line := <-lines:
			t, err := ParseTimeLine(line)
			if err != nil {
				logger.Debug("rtc: ignore line", "line", line, "error", err)
				continue
			}
			c.Set(t)
			logger.Info("rtc: time set",
				"time", t.Format(time.DateTime),
				"weekday", Weekday(t.Year(), t.Month(), t.Day()),
			)
		}
	}
}
