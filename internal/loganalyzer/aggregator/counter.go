package aggregator

import (
	"golang.org/x/exp/slices"

	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

type counterEntry struct {
	key   string
	count int64
}

// counter is a frequency table that remembers the order in which keys were first seen.
type counter struct {
	index   map[string]int
	entries []counterEntry
}

func newCounter() *counter {
	return &counter{index: map[string]int{}}
}

func (c *counter) inc(key string) {
	if i, ok := c.index[key]; ok {
		c.entries[i].count++
		return
	}
	c.index[key] = len(c.entries)
	c.entries = append(c.entries, counterEntry{key: key, count: 1})
}

func (c *counter) len() int {
	return len(c.entries)
}

func (c *counter) total() int64 {
	var sum int64
	for _, e := range c.entries {
		sum += e.count
	}
	return sum
}

func (c *counter) asMap() map[string]int64 {
	m := make(map[string]int64, len(c.entries))
	for _, e := range c.entries {
		m[e.key] = e.count
	}
	return m
}

// top returns up to n entries by count descending. Equal counts keep first-seen order.
func (c *counter) top(n int) []model.KeyCount {
	sorted := make([]counterEntry, len(c.entries))
	copy(sorted, c.entries)
	slices.SortStableFunc(sorted, func(a, b counterEntry) bool {
		return a.count > b.count
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	result := make([]model.KeyCount, len(sorted))
	for i, e := range sorted {
		result[i] = model.KeyCount{Key: e.key, Count: e.count}
	}
	return result
}
