package model

import (
	"time"
)

// LogFile is one uploaded access log and its metadata. It is immutable once registered.
type LogFile struct {
	Id         string    `json:"logId"`
	Owner      string    `json:"owner"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"bytes"`
	Sha256     string    `json:"sha256,omitempty"`
	StorageKey string    `json:"storageKey"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Event is one parsed access log line. Events are keyed by (LogId, Timestamp); a later event with the same key
// replaces an earlier one.
type Event struct {
	LogId     string `json:"logId"`
	Timestamp string `json:"ts"`
	Ip        string `json:"ip"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Bytes     int64  `json:"bytes"`
}

type KeyCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type MinuteCount struct {
	Minute string `json:"minute"`
	Count  int64  `json:"count"`
}

// Summary holds the aggregate statistics of a LogFile. There is one per LogFile; each successful run replaces it.
type Summary struct {
	TotalLines     int64            `json:"totalLines"`
	Sha256         string           `json:"sha256"`
	UniqueIps      int64            `json:"uniqueIps"`
	CountsByStatus map[string]int64 `json:"countsByStatus"`
	TopIps         []KeyCount       `json:"topIps"`
	TopPaths       []KeyCount       `json:"topPaths"`
	ErrorsOverTime []MinuteCount    `json:"errorsOverTime"`
}

// EventQuery selects a page of events of one LogFile. Zero values of the optional fields mean no filter.
type EventQuery struct {
	Page       int
	Limit      int
	Ip         string
	Status     *int
	From       string
	To         string
	Descending bool
}

type EventPage struct {
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
	Total int      `json:"total"`
	Items []*Event `json:"items"`
}
