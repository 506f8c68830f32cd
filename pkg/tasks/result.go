package tasks

// Status is the outcome of a single reward action
type Status int

const (
	// StatusSkipped means the action was not attempted
	StatusSkipped Status = iota
	StatusSuccess
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Task names as they appear in reports and checkpoints
const (
	NameCheckIn  = "check-in"
	NameLottery  = "lottery"
	NameFeed     = "feed"
	NameVisit    = "space-visit"
	NamePoke     = "poke"
	NameExchange = "exchange"
)

// Result is the outcome of one action. Detail is a short human-readable note.
type Result struct {
	Name   string
	Status Status
	Detail string
}

// OK reports a successful action
func (r Result) OK() bool { return r.Status == StatusSuccess }

func success(name, detail string) Result { return Result{Name: name, Status: StatusSuccess, Detail: detail} }
func failure(name, detail string) Result { return Result{Name: name, Status: StatusFailed, Detail: detail} }
func skipped(name, detail string) Result { return Result{Name: name, Status: StatusSkipped, Detail: detail} }

// GreetTargets picks the first n owners seen by the feed scan
func GreetTargets(processed []string, n int) []string {
	if n <= 0 || len(processed) == 0 {
		return nil
	}
	if n > len(processed) {
		n = len(processed)
	}
	out := make([]string, n)
	copy(out, processed[:n])
	return out
}
