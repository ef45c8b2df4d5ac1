// Package history groups sessions into the named time buckets shown in the sidebar.
package history

import (
	"time"

	"chatdeck/pkg/chattypes"
)

// Bucket names, in display order.
const (
	BucketToday      = "Today"
	BucketYesterday  = "Yesterday"
	BucketLast3Days  = "Last 3 days"
	BucketLast7Days  = "Last 7 days"
	BucketLast30Days = "Last 30 days"
	BucketOlder      = "Older"
)

// Bucket is one named group of sessions, in store order.
type Bucket struct {
	Name     string
	Sessions []chattypes.Session
}

// boundary is the inclusive lower edge of a bucket, in days before today's midnight.
type boundary struct {
	name    string
	daysAgo int
}

var boundaries = []boundary{
	{BucketToday, 0},
	{BucketYesterday, 1},
	{BucketLast3Days, 3},
	{BucketLast7Days, 7},
	{BucketLast30Days, 30},
}

// Names lists every bucket in display order.
func Names() []string {
	names := make([]string, 0, len(boundaries)+1)
	for _, b := range boundaries {
		names = append(names, b.name)
	}
	return append(names, BucketOlder)
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// BucketFor returns the name of the bucket createdAt falls in relative to now.
// Edges are calendar days counted back from now's midnight; a time exactly on an
// edge belongs to the newer bucket. Times after now still count as Today.
func BucketFor(createdAt, now time.Time) string {
	today0 := StartOfDay(now)
	for _, b := range boundaries {
		if !createdAt.Before(today0.AddDate(0, 0, -b.daysAgo)) {
			return b.name
		}
	}
	return BucketOlder
}

// Visible reports whether a session belongs in the history at all.
// A never-used session (placeholder title, only the greeting) is hidden unless it is active.
func Visible(s chattypes.Session, activeID string) bool {
	return !s.IsPristine() || s.ID == activeID
}

// Group partitions the visible sessions into buckets relative to now.
// Bucket order is fixed, store order is kept within a bucket, and empty buckets are omitted.
func Group(sessions []chattypes.Session, activeID string, now time.Time) []Bucket {
	byName := make(map[string][]chattypes.Session)
	for _, s := range sessions {
		if !Visible(s, activeID) {
			continue
		}
		name := BucketFor(s.CreatedAt, now)
		byName[name] = append(byName[name], s)
	}

	var buckets []Bucket
	for _, name := range Names() {
		if members := byName[name]; len(members) > 0 {
			buckets = append(buckets, Bucket{Name: name, Sessions: members})
		}
	}
	return buckets
}
