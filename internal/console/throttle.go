package console

import (
	"time"

	"github.com/joeycumines/go-catrate"
)

// Hot-path log budget per category.
var hotPathRates = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 120,
}

var limiter = catrate.NewLimiter(hotPathRates)

// Allow reports whether a log record in category fits the hot-path budget.
// Interrupt handlers check it before logging so a flood of interrupts cannot
// turn into a flood of console output.
func Allow(category string) bool {
	_, ok := limiter.Allow(category)
	return ok
}
