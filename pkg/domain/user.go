package domain

import "time"

// User is a tenant; all feed and entry data is partitioned by user
type User struct {
	ID        int64
	Username  string
	IsAdmin   bool
	CreatedAt time.Time
}

// Setting is a per-user key/value preference
type Setting struct {
	UserID int64
	Key    string
	Value  string
}
