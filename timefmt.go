package keepbook

import "time"

// TimestampFormat selects how instants are written in outputs.
type TimestampFormat int

const (
	// TimestampAuto writes RFC 3339 in UTC and drops trailing zeros of the
	// sub-second part, and the part itself when it is zero:
	// 2024-01-02T10:00:00Z, 2024-01-02T10:00:00.5Z.
	TimestampAuto TimestampFormat = iota
	// TimestampNanos always writes nine sub-second digits:
	// 2024-01-02T10:00:00.000000000Z.
	TimestampNanos
)

const nanosLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTimestamp writes t in UTC using the given format.
func FormatTimestamp(t time.Time, f TimestampFormat) string {
	t = t.UTC()
	switch f {
	case TimestampNanos:
		return t.Format(nanosLayout)
	default:
		return t.Format(time.RFC3339Nano)
	}
}

// ParseTimestamp reads an RFC 3339 instant, with or without sub-seconds.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
