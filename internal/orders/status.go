package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
)

// forward only, one step at a time; completed is terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusConfirmed: true},
	StatusConfirmed: {StatusReady: true},
	StatusReady:     {StatusCompleted: true},
	StatusCompleted: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Cancellable reports whether an order in status s may still be deleted.
func (s Status) Cancellable() bool { return s == StatusPending }

func (s Status) Final() bool { return s == StatusCompleted }
