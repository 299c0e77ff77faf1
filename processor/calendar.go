package processor

import "time"

// dayNumberEpoch anchors the integer day axis. Records collected months apart
// land on one comparable scale as long as this constant never moves.
var dayNumberEpoch = time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)

// dayNumber counts whole calendar days from the epoch to t's local date. It
// depends only on t and the epoch, so independent runs agree on the value.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(day.Sub(dayNumberEpoch).Hours() / 24)
}

func timeOfDay(t time.Time) string {
	return t.Format("15:04:05")
}
