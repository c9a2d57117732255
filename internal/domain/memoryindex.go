package domain

import (
	"fmt"
	"time"
)

// Marker is a typed inline tag embedded in memory documents, counted by
// scanning for its exact bracketed form (e.g. "[decision]").
type Marker string

const (
	MarkerDecision   Marker = "decision"
	MarkerGotcha     Marker = "gotcha"
	MarkerSolution   Marker = "solution"
	MarkerPattern    Marker = "pattern"
	MarkerTradeoff   Marker = "tradeoff"
	MarkerFact       Marker = "fact"
	MarkerPreference Marker = "preference"
	MarkerTodo       Marker = "todo"
)

func Markers() []Marker {
	return []Marker{
		MarkerDecision,
		MarkerGotcha,
		MarkerSolution,
		MarkerPattern,
		MarkerTradeoff,
		MarkerFact,
		MarkerPreference,
		MarkerTodo,
	}
}

func (m Marker) Tag() string {
	return "[" + string(m) + "]"
}

type MarkerCounts map[Marker]int

func (c MarkerCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func (c MarkerCounts) Merge(other MarkerCounts) {
	for marker, n := range other {
		c[marker] += n
	}
}

type IndexEntry struct {
	Name          string
	Title         string
	Category      string
	SizeBytes     int64
	TokenEstimate int64
	Markers       MarkerCounts
	Modified      time.Time
}

type IndexTotals struct {
	Documents     int
	SizeBytes     int64
	TokenEstimate int64
	Markers       MarkerCounts
}

// MemoryIndex is a cache artifact: fully regenerated on each build,
// safely deletable at any time.
type MemoryIndex struct {
	GeneratedAt time.Time
	Entries     []IndexEntry
	Totals      IndexTotals
}

// FormatSize renders a byte count the way index documents display it.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}
