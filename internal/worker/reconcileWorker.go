package worker

import (
	"time"
)

const (
	reconcileInterval = time.Minute
	reconcileCutoff   = 5 * time.Minute
)

// ReconcileWorker periodically sweeps transactions stuck in processing
// and asks the orchestrator to resolve them against the bank. This is
// what eventually settles payouts left mid-flight by an ambiguous
// gateway error or a crashed process.
func (wk *Worker) ReconcileWorker() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wk.Ctx.Done():
			return
		case <-ticker.C:
			wk.reconcileStuck()
		}
	}
}

func (wk *Worker) reconcileStuck() {
	cutoff := time.Now().Add(-reconcileCutoff)

	stuck, err := wk.DB.Transaction().ListStuckProcessing(cutoff)
	if err != nil {
		wk.Logger.Error("listing stuck transactions", "error", err)
		return
	}

	for _, transaction := range stuck {
		resolved, err := wk.Orchestrator.GetStatus(wk.Ctx, transaction.ID)
		if err != nil {
			wk.Logger.Error("reconciling transaction", "transaction_id", transaction.ID, "error", err)
			continue
		}

		if resolved.Status != transaction.Status {
			wk.Logger.Info("reconciled stuck transaction",
				"transaction_id", transaction.ID,
				"from", transaction.Status,
				"to", resolved.Status)
		}
	}
}
