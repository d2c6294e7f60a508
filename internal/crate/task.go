package crate

// DBConnection holds the parameters the downstream worker needs to reach
// the database a query runs against.
type DBConnection struct {
	Host     string
	Name     string
	User     string
	Password string
}

// IsZero reports whether no connection parameter is set.
func (c DBConnection) IsZero() bool {
	return c == DBConnection{}
}

// Task describes one detected job for a single build cycle.
type Task struct {
	ID             string
	QueryFile      string
	Query          []byte
	IsAvailability bool
	DB             DBConnection
}

// Kind returns "is_availability" or "is_distribution".
func (t Task) Kind() string {
	if t.IsAvailability {
		return "is_availability"
	}
	return "is_distribution"
}
