package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RegisterWorkerRequest struct {
	Wallet string `json:"wallet"`
}

type WorkerResponse struct {
	WorkerID string `json:"worker_id"`
	Wallet   string `json:"wallet"`
	Created  bool   `json:"created"`
}

type OptionResponse struct {
	OptionID string `json:"option_id"`
	ImageURL string `json:"image_url"`
}

type TaskResponse struct {
	TaskID  string           `json:"task_id"`
	Title   string           `json:"title"`
	Amount  int64            `json:"amount"`
	Options []OptionResponse `json:"options"`
}

// NextTaskResponse carries a nil Task when nothing is assignable.
type NextTaskResponse struct {
	Task *TaskResponse `json:"task"`
}

type CreateSubmissionRequest struct {
	TaskID    string `json:"task_id"`
	Selection string `json:"selection"`
}

type SubmissionResponse struct {
	SubmissionID   string        `json:"submission_id"`
	CreditedAmount int64         `json:"amount"`
	TaskDone       bool          `json:"task_done"`
	NextTask       *TaskResponse `json:"next_task"`
}

type BalanceResponse struct {
	PendingAmount int64 `json:"pending_amount"`
	LockedAmount  int64 `json:"locked_amount"`
}

type PayoutResponse struct {
	PayoutID      string `json:"payout_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	Reference     string `json:"reference,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}
