package dto

import "time"

type InitializeInput struct {
	EmployeeID  string
	AccessToken string
}

// StateOutput mirrors the engine state observed by the UI. ClockInAt is zero
// and Elapsed is zero while checked out.
type StateOutput struct {
	Status    string
	CheckedIn bool
	ClockInAt time.Time
	Elapsed   time.Duration
	Phase     string
	Reason    string
}
