package mpv

// Observed property IDs.
const (
	propTimePos = iota + 1
	propDuration
	propPause
	propPausedForCache
)

var observedProperties = map[int]string{
	propTimePos:        "time-pos",
	propDuration:       "duration",
	propPause:          "pause",
	propPausedForCache: "paused-for-cache",
}

// float reads a numeric property value. ok is false for null or non-numeric data.
func float(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// boolean reads a flag property value.
func boolean(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
