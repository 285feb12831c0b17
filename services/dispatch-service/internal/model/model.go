package model

import "time"

// Resource is a bookable crew or technician. Resources are created and edited
// by the admin surface; this service only reads them.
type Resource struct {
	ID               string
	Name             string
	AvailabilitySpec string
	HomeLat          *float64
	HomeLng          *float64
	Active           bool
	CreatedAt        time.Time
}

// HasLocation reports whether the resource has a usable home coordinate.
func (r Resource) HasLocation() bool {
	return r.HomeLat != nil && r.HomeLng != nil
}

// Booking is a scheduled job. ResourceID is empty until an assignment is
// accepted. Cancelled bookings never contribute conflict intervals.
type Booking struct {
	ID              string
	Category        string
	Bedrooms        int
	SquareFeet      int
	CustomerName    string
	ScheduledAt     time.Time
	DurationMinutes int
	Lat             *float64
	Lng             *float64
	ResourceID      string
	Status          string
	CancelledAt     *time.Time
	CreatedAt       time.Time
}

func (b Booking) HasLocation() bool {
	return b.Lat != nil && b.Lng != nil
}

const (
	BookingBooked    = "booked"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// Assignment records one offer of a job to a resource. History per job is
// append-only: a decline never mutates the prior row into a new offer.
type Assignment struct {
	ID         string
	JobID      string
	ResourceID string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const (
	AssignmentPending   = "pending"
	AssignmentAccepted  = "accepted"
	AssignmentDeclined  = "declined"
	AssignmentConfirmed = "confirmed"
	AssignmentCancelled = "cancelled"
)
