package jobs

import (
	"context"

	"noteflow/internal/domain/model"
	"noteflow/internal/domain/repository"
)

type Aggregator struct {
	repo repository.JobRepository
}

func NewAggregator(repo repository.JobRepository) *Aggregator {
	return &Aggregator{repo: repo}
}

// Summarize counts the owner's jobs of one kind by status. An owner with no
// jobs gets all zeroes.
func (a *Aggregator) Summarize(ctx context.Context, kind model.JobKind, ownerID string) (model.StatusCounts, error) {
	counts, err := a.repo.CountByStatus(ctx, kind, ownerID)
	if err != nil {
		return model.StatusCounts{}, err
	}

	sc := model.StatusCounts{
		Pending:    counts[model.JobStatusPending],
		Processing: counts[model.JobStatusProcessing],
		Completed:  counts[model.JobStatusCompleted],
		Failed:     counts[model.JobStatusFailed],
	}
	sc.Total = sc.Pending + sc.Processing + sc.Completed + sc.Failed
	return sc, nil
}
