package publisher

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// logThrottler logs as WARN once per interval per key and DEBUG otherwise, so
// a broker outage does not flood the log with one warning per event.
type logThrottler struct {
	limiters sync.Map // map[string]*rate.Limiter
	interval time.Duration
}

func newLogThrottler(interval time.Duration) *logThrottler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &logThrottler{interval: interval}
}

func (t *logThrottler) Warn(key string, entry *log.Entry, msg string) {
	if t.limiter(key).Allow() {
		entry.Warn(msg)
	} else {
		entry.Debug(msg)
	}
}

func (t *logThrottler) limiter(key string) *rate.Limiter {
	if limiter, ok := t.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(rate.Every(t.interval), 1)
	actual, _ := t.limiters.LoadOrStore(key, limiter)
	return actual.(*rate.Limiter)
}
