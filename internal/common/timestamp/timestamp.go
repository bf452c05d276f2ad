package timestamp

import "time"

// Timestamp is a point in time in nanoseconds since the unix epoch, 0 meaning unset.
type Timestamp int64

func Now() Timestamp {
	return Stamp(time.Now())
}

func Stamp(t time.Time) Timestamp {
	if t.IsZero() {
		return 0
	}
	return Timestamp(t.UnixNano())
}

func Milli(ms int64) Timestamp {
	return Timestamp(ms * 1e6)
}

func (t Timestamp) IsZero() bool {
	return t == 0
}

func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(t)).UTC()
}

func (t Timestamp) UnixMilli() int64 {
	return int64(t / 1e6)
}

func (t Timestamp) Add(d time.Duration) Timestamp {
	return Timestamp(int64(t) + int64(d))
}

func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(t - u)
}

func (t Timestamp) Format(layout string) string {
	return t.Time().Format(layout)
}

func (t Timestamp) S() string {
	if t == 0 {
		return "0"
	}
	return t.Format("2006-01-02_15:04:05.000")
}
