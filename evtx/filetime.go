package evtx

import "time"

// filetimeEpochOffsetMs is (Unix epoch - FILETIME epoch) expressed in
// milliseconds: 11,644,473,600,000ms, per spec §4.4.
const filetimeEpochOffsetMs = 11644473600000

// filetimeToTime converts a Windows FILETIME (100ns ticks since
// 1601-01-01 UTC) to a UTC time.Time. A value of 0 yields the Unix epoch.
func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Unix(0, 0).UTC()
	}
	ms := int64(ft/10000) - filetimeEpochOffsetMs
	return time.UnixMilli(ms).UTC()
}

// SystemTime is the 16-byte SYSTEMTIME variant payload (§4.5).
type SystemTime struct {
	Year         uint16
	Month        uint16
	DayOfWeek    uint16
	Day          uint16
	Hour         uint16
	Minute       uint16
	Second       uint16
	Milliseconds uint16
}

// Time converts a SystemTime to a UTC time.Time.
func (s SystemTime) Time() time.Time {
	return time.Date(int(s.Year), time.Month(s.Month), int(s.Day),
		int(s.Hour), int(s.Minute), int(s.Second), int(s.Milliseconds)*1e6, time.UTC)
}
