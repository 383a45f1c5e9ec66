package parser

import (
	"regexp"
	"strconv"

	"github.com/G-Research/loganalyzer/internal/common/apperrors"
	"github.com/G-Research/loganalyzer/internal/loganalyzer/model"
)

// ErrNoMatch is returned for lines outside the access log grammar. Callers count such lines and move on.
var ErrNoMatch error = &apperrors.Error{Kind: apperrors.KindParseSkip, Detail: "line does not match access log grammar"}

// ADDRESS - - [TIMESTAMP] "METHOD TARGET PROTOCOL" STATUS BYTES "REFERRER" "USER_AGENT"
var accessLogPattern = regexp.MustCompile(`^(\S+) \S+ \S+ \[([^\]]+)\] "(\S+) ([^"]+) (\S+)" (\d{3}) (\d+|-) "([^"]*)" "([^"]*)"$`)

// Record is one line matched against the access log grammar.
type Record struct {
	Ip         string
	Timestamp  string
	Method     string
	Path       string
	Protocol   string
	StatusText string
	Status     int
	Bytes      int64
	Referrer   string
	UserAgent  string
}

// Event converts the record into the stored form for the given log.
func (r *Record) Event(logId string) *model.Event {
	return &model.Event{
		LogId:     logId,
		Timestamp: r.Timestamp,
		Ip:        r.Ip,
		Method:    r.Method,
		Path:      r.Path,
		Status:    r.Status,
		Bytes:     r.Bytes,
	}
}

// Parse matches one line, without its terminator, against the access log grammar. There is no partial matching:
// either every field parses or ErrNoMatch is returned.
func Parse(line string) (*Record, error) {
	m := accessLogPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, ErrNoMatch
	}
	status, err := strconv.Atoi(m[6])
	if err != nil {
		return nil, ErrNoMatch
	}
	var bytes int64
	if m[7] != "-" {
		bytes, err = strconv.ParseInt(m[7], 10, 64)
		if err != nil {
			// out of range
			return nil, ErrNoMatch
		}
	}
	return &Record{
		Ip:         m[1],
		Timestamp:  m[2],
		Method:     m[3],
		Path:       m[4],
		Protocol:   m[5],
		StatusText: m[6],
		Status:     status,
		Bytes:      bytes,
		Referrer:   m[8],
		UserAgent:  m[9],
	}, nil
}
