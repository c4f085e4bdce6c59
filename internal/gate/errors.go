package gate

import (
	"fmt"
	"math"
	"time"
)

// TooManyAttemptsError is returned when a throttle threshold has been
// exceeded. RetryAfter is the remaining cooldown; user-facing messages
// report it in whole minutes, rounded up.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	return fmt.Sprintf("too many attempts; try again in %d minute(s)", RetryAfterMinutes(e.RetryAfter))
}

// RetryAfterMinutes converts a cooldown remainder to whole minutes, rounded
// up, with a floor of one minute so clients never see "try again in 0 minutes".
func RetryAfterMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}
