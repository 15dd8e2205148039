package engine

import "time"

// EvaluateAutoExtend decides whether a bid arriving at now, on an auction
// closing at closeAt, pushes the close time back. The close time moves only
// when the remaining time is within the trigger window; the new close time
// is the old one plus the extension, not now plus the extension.
func EvaluateAutoExtend(closeAt, now time.Time, trigger, extend time.Duration) (time.Time, bool) {
	if trigger <= 0 || extend <= 0 {
		return closeAt, false
	}
	if closeAt.Sub(now) <= trigger {
		return closeAt.Add(extend), true
	}
	return closeAt, false
}
