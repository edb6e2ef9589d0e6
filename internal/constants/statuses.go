package constants

import (
	"database/sql/driver"
	"fmt"
)

// PollStatus is persisted in polls.status
type PollStatus string

const (
	PollActive PollStatus = "active"
	PollEnded  PollStatus = "ended"
)

func (s PollStatus) String() string { return string(s) }

func (s *PollStatus) Scan(src interface{}) error {
	v, err := scanString("PollStatus", src)
	*s = PollStatus(v)
	return err
}

func (s PollStatus) Value() (driver.Value, error) { return string(s), nil }

// TicketStatus is persisted in tickets.status
type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketClosed  TicketStatus = "closed"
	TicketDeleted TicketStatus = "deleted"
)

func (s TicketStatus) String() string { return string(s) }

func (s *TicketStatus) Scan(src interface{}) error {
	v, err := scanString("TicketStatus", src)
	*s = TicketStatus(v)
	return err
}

func (s TicketStatus) Value() (driver.Value, error) { return string(s), nil }

// XPSource labels where an award came from
type XPSource string

const (
	XPSourceMessage XPSource = "message"
	XPSourceVoice   XPSource = "voice"
	XPSourceAdmin   XPSource = "admin"
)

/* ---------- DB adapters so sqlx (or database/sql) scans/values cleanly ---------- */

func scanString(name string, src interface{}) (string, error) {
	switch v := src.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("%s: cannot scan type %T", name, src)
	}
}
