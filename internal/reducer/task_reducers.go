package reducer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/events"
	"github.com/Openmesh-Network/openrd-indexer/internal/storage"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

func (e *Engine) applyTaskCreated(ctx context.Context, ev *events.TaskCreated) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		task.Metadata = ev.Metadata
		task.Deadline = ev.Deadline
		task.Manager = ev.Manager
		task.DisputeManager = ev.DisputeManager
		task.Creator = ev.Creator
		task.NativeBudget = ev.NativeBudget
		task.Budget = append([]types.ERC20Transfer(nil), ev.Budget...)
		task.Escrow = ev.Escrow
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	taskID := ev.TaskID.String()
	err = e.storage.Users.Update(func(users storage.UsersCollection) {
		grantRole(users, ev.Creator, ev.ChainID, taskID, types.RoleCreator)
		grantRole(users, ev.Manager, ev.ChainID, taskID, types.RoleManager)
		grantRole(users, ev.DisputeManager, ev.ChainID, taskID, types.RoleDisputeManager)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, ev.Metadata)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			if task := tasks.Get(ev.ChainID, ev.TaskID); task != nil {
				task.CachedMetadata = metadata
			}
		})
	})
	e.enrich(ctx, "price", func(ctx context.Context) error {
		value, err := e.prices.BudgetValue(ctx, ev.ChainID, ev.NativeBudget, ev.Budget)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			if task := tasks.Get(ev.ChainID, ev.TaskID); task != nil {
				task.USDValue = value
			}
		})
	})
	// Read back what actually arrived in escrow; the token may charge a
	// transfer fee.
	e.enrich(ctx, "balance", func(ctx context.Context) error {
		budget, err := e.balances.EscrowBudget(ctx, ev.ChainID, ev.Escrow, ev.Budget)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			if task := tasks.Get(ev.ChainID, ev.TaskID); task != nil {
				task.Budget = budget
			}
		})
	})

	return nil
}

func (e *Engine) applyApplicationCreated(ctx context.Context, ev *events.ApplicationCreated) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		application := ensureApplication(task, ev.ApplicationID)
		application.Metadata = ev.Metadata
		application.Applicant = ev.Applicant
		application.NativeReward = append([]types.NativeReward(nil), ev.NativeReward...)
		application.Reward = append([]types.Reward(nil), ev.Reward...)
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	err = e.storage.Users.Update(func(users storage.UsersCollection) {
		grantRole(users, ev.Applicant, ev.ChainID, ev.TaskID.String(), types.RoleApplicant)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, ev.Metadata)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			task := tasks.Get(ev.ChainID, ev.TaskID)
			if task == nil {
				return
			}
			if application, ok := task.Applications[ev.ApplicationID]; ok {
				application.CachedMetadata = metadata
			}
		})
	})

	return nil
}

func (e *Engine) applyApplicationAccepted(_ context.Context, ev *events.ApplicationAccepted) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		ensureApplication(task, ev.ApplicationID).Accepted = true
		e.recordTaskEvent(task, ev)
	})
}

func (e *Engine) applyTaskTaken(_ context.Context, ev *events.TaskTaken) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	// The applicant is copied out under the store lock; the application
	// object itself must not escape the update.
	var applicant common.Address
	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		applicant = ensureApplication(task, ev.ApplicationID).Applicant
		task.State = types.TaskStateTaken
		task.ExecutorApplication = ev.ApplicationID
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	// A lazily materialized application has no applicant to attribute the
	// executor role to.
	if applicant == (common.Address{}) {
		e.warn(ev, "task taken but executor application has no applicant",
			"task_id", ev.TaskID.String(), "application_id", ev.ApplicationID)
		return nil
	}

	return e.storage.Users.Update(func(users storage.UsersCollection) {
		grantRole(users, applicant, ev.ChainID, ev.TaskID.String(), types.RoleExecutor)
	})
}

func (e *Engine) applySubmissionCreated(ctx context.Context, ev *events.SubmissionCreated) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		ensureSubmission(task, ev.SubmissionID).Metadata = ev.Metadata
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, ev.Metadata)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			task := tasks.Get(ev.ChainID, ev.TaskID)
			if task == nil {
				return
			}
			if submission, ok := task.Submissions[ev.SubmissionID]; ok {
				submission.CachedMetadata = metadata
			}
		})
	})

	return nil
}

func (e *Engine) applySubmissionReviewed(ctx context.Context, ev *events.SubmissionReviewed) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		submission := ensureSubmission(task, ev.SubmissionID)
		submission.Judgement = ev.Judgement
		submission.Feedback = ev.Feedback
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		feedback, err := e.metadata.Fetch(ctx, ev.Feedback)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			task := tasks.Get(ev.ChainID, ev.TaskID)
			if task == nil {
				return
			}
			if submission, ok := task.Submissions[ev.SubmissionID]; ok {
				submission.CachedFeedback = feedback
			}
		})
	})

	return nil
}

func (e *Engine) applyTaskCompleted(_ context.Context, ev *events.TaskCompleted) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		task.State = types.TaskStateClosed
		source := ev.Source
		task.CompletionSource = &source

		// A dispute-sourced completion already drove its payouts through
		// PartialPayment events; only an accepted submission pays the full
		// reward here.
		if ev.Source == types.CompletionSourceSubmissionAccepted {
			executor, ok := task.Applications[task.ExecutorApplication]
			if !ok {
				e.warn(ev, "executor application missing when completing task",
					"task_id", ev.TaskID.String(), "application_id", task.ExecutorApplication)
			} else {
				for i, reward := range executor.NativeReward {
					task.NativePaidOut = accumulateAt(task.NativePaidOut, i, &reward.Amount.Int)
				}
				for i, reward := range executor.Reward {
					task.PaidOut = accumulateAt(task.PaidOut, i, &reward.Amount.Int)
				}
			}
		}

		e.recordTaskEvent(task, ev)
	})
}

func (e *Engine) applyCancelTaskRequested(ctx context.Context, ev *events.CancelTaskRequested) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		ensureCancelTaskRequest(task, ev.RequestID).Metadata = ev.Metadata
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, ev.Metadata)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			task := tasks.Get(ev.ChainID, ev.TaskID)
			if task == nil {
				return
			}
			if request, ok := task.CancelTaskRequests[ev.RequestID]; ok {
				request.CachedMetadata = metadata
			}
		})
	})

	return nil
}

func (e *Engine) applyTaskCancelled(_ context.Context, ev *events.TaskCancelled) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		// Closed without a completion source means cancelled.
		task.State = types.TaskStateClosed
		e.recordTaskEvent(task, ev)
	})
}

func (e *Engine) applyRequestAccepted(_ context.Context, ev *events.RequestAccepted) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		request := resolveRequest(task, ev.RequestType, ev.RequestID)
		if request == nil {
			e.warn(ev, "accepted request of unknown type skipped", "request_type", ev.RequestType)
			return
		}
		request.Accepted = true
		e.recordTaskEvent(task, ev)
	})
}

func (e *Engine) applyRequestExecuted(_ context.Context, ev *events.RequestExecuted) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		request := resolveRequest(task, ev.RequestType, ev.RequestID)
		if request == nil {
			e.warn(ev, "executed request of unknown type skipped", "request_type", ev.RequestType)
			return
		}
		request.Executed = true
		e.recordTaskEvent(task, ev)
	})
}

func (e *Engine) applyDeadlineChanged(_ context.Context, ev *events.DeadlineChanged) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		task.Deadline = ev.NewDeadline
		e.recordTaskEvent(task, ev)
	})
}

func (e *Engine) applyBudgetChanged(ctx context.Context, ev *events.BudgetChanged) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	// The log carries no payload; the new budget is whatever the escrow now
	// holds for the tokens already tracked.
	var escrow common.Address
	var tracked []types.ERC20Transfer
	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		escrow = task.Escrow
		tracked = append([]types.ERC20Transfer(nil), task.Budget...)
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "balance", func(ctx context.Context) error {
		budget, err := e.balances.EscrowBudget(ctx, ev.ChainID, escrow, tracked)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			if task := tasks.Get(ev.ChainID, ev.TaskID); task != nil {
				task.Budget = budget
			}
		})
	})

	return nil
}

func (e *Engine) applyRewardIncreased(_ context.Context, ev *events.RewardIncreased) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		application := ensureApplication(task, ev.ApplicationID)

		if len(ev.NativeIncrease) > len(application.NativeReward) || len(ev.Increase) > len(application.Reward) {
			e.warn(ev, "reward increase has more entries than the application's reward",
				"task_id", ev.TaskID.String(), "application_id", ev.ApplicationID)
		}
		for i, increase := range ev.NativeIncrease {
			if i < len(application.NativeReward) {
				application.NativeReward[i].Amount.Add(&application.NativeReward[i].Amount.Int, &increase.Int)
			}
		}
		for i, increase := range ev.Increase {
			if i < len(application.Reward) {
				application.Reward[i].Amount.Add(&application.Reward[i].Amount.Int, &increase.Int)
			}
		}

		e.recordTaskEvent(task, ev)
	})
}

func (e *Engine) applyMetadataChanged(ctx context.Context, ev *events.MetadataChanged) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		task.Metadata = ev.NewMetadata
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	e.enrich(ctx, "metadata", func(ctx context.Context) error {
		metadata, err := e.metadata.Fetch(ctx, ev.NewMetadata)
		if err != nil {
			return err
		}
		return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
			if task := tasks.Get(ev.ChainID, ev.TaskID); task != nil {
				task.CachedMetadata = metadata
			}
		})
	})

	return nil
}

func (e *Engine) applyManagerChanged(_ context.Context, ev *events.ManagerChanged) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	var oldManager common.Address
	err = e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		oldManager = task.Manager
		task.Manager = ev.NewManager
		e.recordTaskEvent(task, ev)
	})
	if err != nil {
		return err
	}

	taskID := ev.TaskID.String()
	return e.storage.Users.Update(func(users storage.UsersCollection) {
		grantRole(users, ev.NewManager, ev.ChainID, taskID, types.RoleManager)
		if !revokeRole(users, oldManager, ev.ChainID, taskID, types.RoleManager) {
			e.warn(ev, "old manager role not found on manager change",
				"task_id", taskID, "old_manager", oldManager.Hex())
		}
	})
}

func (e *Engine) applyPartialPayment(_ context.Context, ev *events.PartialPayment) error {
	fresh, err := e.consumeTaskEvent(ev)
	if err != nil || !fresh {
		return err
	}

	return e.storage.Tasks.Update(func(tasks storage.TasksCollection) {
		task := tasks.Ensure(ev.ChainID, ev.TaskID)
		for i, amount := range ev.PartialNativeReward {
			task.NativePaidOut = accumulateAt(task.NativePaidOut, i, &amount.Int)
		}
		for i, amount := range ev.PartialReward {
			task.PaidOut = accumulateAt(task.PaidOut, i, &amount.Int)
		}

		// The executor's remaining reward shrinks by what was paid out.
		if executor, ok := task.Applications[task.ExecutorApplication]; ok {
			for i, amount := range ev.PartialNativeReward {
				if i < len(executor.NativeReward) {
					executor.NativeReward[i].Amount.Sub(&executor.NativeReward[i].Amount.Int, &amount.Int)
				}
			}
			for i, amount := range ev.PartialReward {
				if i < len(executor.Reward) {
					executor.Reward[i].Amount.Sub(&executor.Reward[i].Amount.Int, &amount.Int)
				}
			}
		}

		e.recordTaskEvent(task, ev)
	})
}

func ensureApplication(task *types.Task, id uint16) *types.Application {
	application, ok := task.Applications[id]
	if !ok {
		application = &types.Application{
			NativeReward: []types.NativeReward{},
			Reward:       []types.Reward{},
		}
		task.Applications[id] = application
	}
	return application
}

func ensureSubmission(task *types.Task, id uint8) *types.Submission {
	submission, ok := task.Submissions[id]
	if !ok {
		submission = &types.Submission{}
		task.Submissions[id] = submission
	}
	return submission
}

func ensureCancelTaskRequest(task *types.Task, id uint8) *types.CancelTaskRequest {
	request, ok := task.CancelTaskRequests[id]
	if !ok {
		request = &types.CancelTaskRequest{}
		task.CancelTaskRequests[id] = request
	}
	return request
}

// resolveRequest maps the open (requestType, requestId) pair to a concrete
// request record, lazily materializing it. Unknown types yield nil.
func resolveRequest(task *types.Task, requestType types.RequestType, requestID uint8) *types.Request {
	switch requestType {
	case types.RequestTypeCancelTask:
		return &ensureCancelTaskRequest(task, requestID).Request
	default:
		return nil
	}
}
