package entities

import "time"

// Task is a reward pool split evenly across a fixed quota of submissions.
// Only Done changes after creation.
type Task struct {
	TaskID    string
	Title     string
	Amount    int64
	Done      bool
	Options   []Option
	CreatedAt time.Time
}

type Option struct {
	OptionID  string
	TaskID    string
	ImageURL  string
	VoteCount int
}

func (t Task) HasOption(optionID string) bool {
	for _, option := range t.Options {
		if option.OptionID == optionID {
			return true
		}
	}
	return false
}

func (t Task) TotalVotes() int {
	total := 0
	for _, option := range t.Options {
		total += option.VoteCount
	}
	return total
}

// Submission is append-only; (TaskID, WorkerID) is unique.
type Submission struct {
	SubmissionID string
	TaskID       string
	WorkerID     string
	OptionID     string
	Amount       int64
	CreatedAt    time.Time
}
