package dispatchreminders

// TickReport summarizes one tick. Delivered and Queued count notifications;
// Sent, Rescheduled, Cancelled, Failed and Skipped count reminder outcomes.
type TickReport struct {
	Due         int `json:"due"`
	Delivered   int `json:"delivered"`
	Queued      int `json:"queued"`
	Sent        int `json:"sent"`
	Rescheduled int `json:"rescheduled"`
	Cancelled   int `json:"cancelled"`
	Failed      int `json:"failed"`
	// Skipped reminders left the active state while the tick held them.
	Skipped int `json:"skipped"`
}

type result string

const (
	resultSent        result = "sent"
	resultRescheduled result = "rescheduled"
	resultCancelled   result = "cancelled"
	resultSkipped     result = "skipped"
)

type outcome struct {
	delivered bool
	queued    bool
	result    result
}

func (r *TickReport) add(o outcome) {
	if o.delivered {
		r.Delivered++
	}
	if o.queued {
		r.Queued++
	}
	switch o.result {
	case resultSent:
		r.Sent++
	case resultRescheduled:
		r.Rescheduled++
	case resultCancelled:
		r.Cancelled++
	case resultSkipped:
		r.Skipped++
	}
}

func (r *TickReport) processed() int {
	return r.Sent + r.Rescheduled + r.Cancelled + r.Failed + r.Skipped
}
