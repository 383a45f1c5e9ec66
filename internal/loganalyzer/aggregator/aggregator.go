package aggregator

import (
	"strings"

	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/parser"
)

const TopN = 10

// Aggregator accumulates the statistics of one file. It is owned by a single ingestion run and is not safe for
// concurrent use.
type Aggregator struct {
	totalLines int64
	hasher     *Hasher
	statuses   *counter
	ips        *counter
	paths      *counter
	minutes    *counter
}

func New() *Aggregator {
	return &Aggregator{
		hasher:   NewHasher(),
		statuses: newCounter(),
		ips:      newCounter(),
		paths:    newCounter(),
		minutes:  newCounter(),
	}
}

// AddLine counts and hashes one raw line, whether or not it parses.
func (a *Aggregator) AddLine(line []byte) {
	a.totalLines++
	a.hasher.Add(line)
}

// AddRecord adds one parsed line to the frequency tables.
func (a *Aggregator) AddRecord(r *parser.Record) {
	a.statuses.inc(r.StatusText)
	a.ips.inc(r.Ip)
	a.paths.inc(r.Path)
	a.minutes.inc(Bucket(r.Timestamp))
}

// ParsedLines returns how many lines reached the frequency tables.
func (a *Aggregator) ParsedLines() int64 {
	return a.statuses.total()
}

// Summary finalizes the digest and returns the statistics gathered so far.
func (a *Aggregator) Summary() *model.Summary {
	minutes := make([]model.MinuteCount, len(a.minutes.entries))
	for i, e := range a.minutes.entries {
		minutes[i] = model.MinuteCount{Minute: e.key, Count: e.count}
	}
	return &model.Summary{
		TotalLines:     a.totalLines,
		Sha256:         a.hasher.Sum(),
		UniqueIps:      int64(a.ips.len()),
		CountsByStatus: a.statuses.asMap(),
		TopIps:         a.ips.top(TopN),
		TopPaths:       a.paths.top(TopN),
		ErrorsOverTime: minutes,
	}
}

// Bucket returns the timestamp text up to, not including, its second colon. Timestamps with fewer than two colons
// are their own bucket. No calendar or timezone interpretation takes place.
func Bucket(timestamp string) string {
	first := strings.IndexByte(timestamp, ':')
	if first < 0 {
		return timestamp
	}
	second := strings.IndexByte(timestamp[first+1:], ':')
	if second < 0 {
		return timestamp
	}
	return timestamp[:first+1+second]
}
