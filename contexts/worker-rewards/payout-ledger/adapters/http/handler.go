package httpadapter

import (
	"context"
	"log/slog"

	"trustpoll/contexts/worker-rewards/payout-ledger/application/commands"
	"trustpoll/contexts/worker-rewards/payout-ledger/application/queries"
	"trustpoll/contexts/worker-rewards/payout-ledger/domain/entities"
	httptransport "trustpoll/contexts/worker-rewards/payout-ledger/transport/http"
)

type Handler struct {
	Register    commands.RegisterWorkerUseCase
	Submissions commands.RecordSubmissionUseCase
	Withdrawals commands.InitiateWithdrawalUseCase
	NextTask    queries.NextTaskUseCase
	Balances    queries.GetBalanceUseCase
	Payouts     queries.GetPayoutUseCase
	Logger      *slog.Logger
}

func (h Handler) RegisterWorkerHandler(ctx context.Context, req httptransport.RegisterWorkerRequest) (httptransport.WorkerResponse, error) {
	result, err := h.Register.Execute(ctx, commands.RegisterWorkerCommand{Wallet: req.Wallet})
	if err != nil {
		return httptransport.WorkerResponse{}, err
	}
	return httptransport.WorkerResponse{
		WorkerID: result.Worker.WorkerID,
		Wallet:   result.Worker.Wallet,
		Created:  result.Created,
	}, nil
}

func (h Handler) NextTaskHandler(ctx context.Context, workerID string) (httptransport.NextTaskResponse, error) {
	task, found, err := h.NextTask.Execute(ctx, workerID)
	if err != nil {
		return httptransport.NextTaskResponse{}, err
	}
	if !found {
		return httptransport.NextTaskResponse{}, nil
	}
	return httptransport.NextTaskResponse{Task: mapTask(task)}, nil
}

func (h Handler) CreateSubmissionHandler(
	ctx context.Context,
	workerID string,
	req httptransport.CreateSubmissionRequest,
) (httptransport.SubmissionResponse, error) {
	result, err := h.Submissions.Execute(ctx, commands.RecordSubmissionCommand{
		WorkerID: workerID,
		TaskID:   req.TaskID,
		OptionID: req.Selection,
	})
	if err != nil {
		return httptransport.SubmissionResponse{}, err
	}
	resp := httptransport.SubmissionResponse{
		SubmissionID:   result.Submission.SubmissionID,
		CreditedAmount: result.CreditedAmount,
		TaskDone:       result.TaskDone,
	}
	if result.HasNextTask {
		resp.NextTask = mapTask(result.NextTask)
	}
	return resp, nil
}

func (h Handler) BalanceHandler(ctx context.Context, workerID string) (httptransport.BalanceResponse, error) {
	balance, err := h.Balances.Execute(ctx, workerID)
	if err != nil {
		return httptransport.BalanceResponse{}, err
	}
	return httptransport.BalanceResponse{
		PendingAmount: balance.Pending,
		LockedAmount:  balance.Locked,
	}, nil
}

// CreatePayoutHandler returns the payout even when the enqueue failed after
// commit, so the caller can report the reconciliation case with its id.
func (h Handler) CreatePayoutHandler(ctx context.Context, workerID string) (httptransport.PayoutResponse, error) {
	result, err := h.Withdrawals.Execute(ctx, commands.InitiateWithdrawalCommand{WorkerID: workerID})
	return mapPayout(result.Payout), err
}

func (h Handler) GetPayoutHandler(ctx context.Context, workerID string, payoutID string) (httptransport.PayoutResponse, error) {
	payout, err := h.Payouts.Execute(ctx, workerID, payoutID)
	if err != nil {
		return httptransport.PayoutResponse{}, err
	}
	return mapPayout(payout), nil
}

func mapTask(task entities.Task) *httptransport.TaskResponse {
	options := make([]httptransport.OptionResponse, 0, len(task.Options))
	for _, option := range task.Options {
		options = append(options, httptransport.OptionResponse{
			OptionID: option.OptionID,
			ImageURL: option.ImageURL,
		})
	}
	return &httptransport.TaskResponse{
		TaskID:  task.TaskID,
		Title:   task.Title,
		Amount:  task.Amount,
		Options: options,
	}
}

func mapPayout(payout entities.Payout) httptransport.PayoutResponse {
	return httptransport.PayoutResponse{
		PayoutID:      payout.PayoutID,
		Amount:        payout.Amount,
		Status:        string(payout.Status),
		Reference:     payout.Reference,
		FailureReason: payout.FailureReason,
	}
}
