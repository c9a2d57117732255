package domain

import "time"

// Snapshot is the current-state artifact for one agent: the most recent
// working context recovered from its active transcript. At most one
// snapshot exists per agent per workspace; every extraction run replaces
// it wholesale.
type Snapshot struct {
	AgentID     string
	GeneratedAt time.Time
	SessionRef  string
	Requests    []string
	Work        []string
	Paths       []string
}

// DayLogEntry is one appended checkpoint record. Entries are bucketed at
// minute granularity; two entries never share a bucket within a day.
type DayLogEntry struct {
	AgentID    string
	Bucket     time.Time
	SessionRef string
	Lines      []string
}

// BucketOf truncates a timestamp to the minute bucket used for day-log
// deduplication.
func BucketOf(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}

func (e DayLogEntry) Date() string {
	return e.Bucket.Format("2006-01-02")
}

func (e DayLogEntry) BucketLabel() string {
	return e.Bucket.Format("15:04")
}
