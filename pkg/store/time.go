package store

import "time"

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.Unix()
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
