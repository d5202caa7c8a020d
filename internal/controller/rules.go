package controller

// ruleAction is what a matched rule does to the job.
type ruleAction int

const (
	actionKeep ruleAction = iota
	actionExtend
	actionDisable
)

// rule is one entry of the ordered rule set. Rules are evaluated top to
// bottom and the first match wins.
type rule struct {
	name   string
	match  func(m JobMetrics) bool
	action ruleAction
	factor float64
}

// rules is the priority-ordered rule set of the controller sweep.
var rules = []rule{
	{
		name:   "keep-on-success",
		match:  func(m JobMetrics) bool { return m.SuccessRate >= 0.95 && m.TotalExecutions >= 20 },
		action: actionKeep,
	},
	{
		name:   "failure-based-backoff",
		match:  func(m JobMetrics) bool { return m.FailureRate > 0.50 && m.TotalExecutions >= 10 },
		action: actionExtend,
		factor: 2.0,
	},
	{
		name:   "timeout-reduction",
		match:  func(m JobMetrics) bool { return m.RecentTimeouts >= 3 && m.TotalExecutions >= 10 },
		action: actionExtend,
		factor: 1.5,
	},
	{
		name: "congestion-decongest",
		match: func(m JobMetrics) bool {
			return m.TotalExecutions >= 10 &&
				m.AverageExecutionTimeMS > 0.8*float64(m.AttemptTimeoutMS)
		},
		action: actionExtend,
		factor: 1.2,
	},
	{
		name:   "failure-streak-disable",
		match:  func(m JobMetrics) bool { return m.RecentFailures >= 3 },
		action: actionDisable,
	},
}

// matchRule returns the first matching rule, or nil when the schedule is
// left alone.
func matchRule(m JobMetrics) *rule {
	for i := range rules {
		if rules[i].match(m) {
			return &rules[i]
		}
	}
	return nil
}
