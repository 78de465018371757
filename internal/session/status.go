package session

import (
	"time"
)

type Status int

const (
	StatusPending Status = iota
	StatusCounting
	StatusExpired
	StatusExecuted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCounting:
		return "counting"
	case StatusExpired:
		return "expired"
	case StatusExecuted:
		return "executed"
	}
	return "unknown"
}

// TxView is a record evaluated against a clock and the wallet policy.
type TxView struct {
	Record
	Status    Status
	Remaining time.Duration
	// Ready means the transaction has enough approvals, or is below the auto-approval threshold.
	Ready        bool
	AutoApproved bool
	CanApprove   bool
	CanRevoke    bool
	CanExecute   bool
}

// Countdown renders the time left before the deadline.
func (v TxView) Countdown() string {
	switch v.Status {
	case StatusCounting:
		return v.Remaining.Truncate(time.Second).String()
	case StatusExpired:
		return "expired"
	}
	return ""
}

// Evaluate classifies a record at now. The deadline check is advisory; the contract decides.
func Evaluate(rec Record, now time.Time) TxView {
	v := TxView{Record: rec}
	switch {
	case rec.Executed:
		v.Status = StatusExecuted
	case !rec.HasDeadline():
		v.Status = StatusPending
	case now.Unix() >= rec.Deadline:
		v.Status = StatusExpired
	default:
		v.Status = StatusCounting
		v.Remaining = time.Unix(rec.Deadline, 0).Sub(now)
	}
	return v
}

// View evaluates every cached transaction. It only uses the snapshot and never reads from chain.
func (s *Session) View(now time.Time) (State, []TxView) {
	st := s.Snapshot()
	busy := s.InFlight()
	views := make([]TxView, len(st.Transactions))
	for i, rec := range st.Transactions {
		views[i] = evaluatePolicy(st, rec, now, s.opts.AutoApproveBelowThreshold, busy)
	}
	return st, views
}

func evaluatePolicy(st State, rec Record, now time.Time, autoApprove, busy bool) TxView {
	v := Evaluate(rec, now)
	if autoApprove && st.Threshold != nil && rec.Value != nil && rec.Value.Cmp(st.Threshold) < 0 {
		v.AutoApproved = true
	}
	v.Ready = v.AutoApproved || (st.Required > 0 && rec.NumApprovals >= st.Required)
	open := !busy && (v.Status == StatusPending || v.Status == StatusCounting)
	v.CanApprove = open && st.IsOwner && !rec.ApprovedByAccount
	v.CanRevoke = open && st.IsOwner && rec.ApprovedByAccount
	v.CanExecute = open && v.Ready
	return v
}
