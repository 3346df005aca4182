package mock

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/callpath-core/pkg/model"
)

// RunRepository is a testify mock of repository.RunRepository. CreateRun
// assigns the next ID to runs that have none.
type RunRepository struct {
	mock.Mock
	nextID int64
}

func (m *RunRepository) CreateRun(ctx context.Context, run *model.Run) error {
	if err := m.Called(ctx, run).Error(0); err != nil {
		return err
	}
	if run.ID == 0 {
		m.nextID++
		run.ID = m.nextID
	}
	return nil
}

func (m *RunRepository) StartRun(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RunRepository) FinishRun(ctx context.Context, id int64, summary *model.RunSummary) error {
	return m.Called(ctx, id, summary).Error(0)
}

func (m *RunRepository) FailRun(ctx context.Context, id int64, info string) error {
	return m.Called(ctx, id, info).Error(0)
}

func (m *RunRepository) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	args := m.Called(ctx, id)
	run, _ := args.Get(0).(*model.Run)
	return run, args.Error(1)
}

func (m *RunRepository) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]*model.Run)
	return runs, args.Error(1)
}

// TraceSink is a testify mock of activity.Sink. Accepted batches are
// copied into Records.
type TraceSink struct {
	mock.Mock

	mu      sync.Mutex
	Records []model.TraceRecord
}

func (m *TraceSink) AppendTrace(ctx context.Context, records []model.TraceRecord) error {
	if err := m.Called(ctx, records).Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.Records = append(m.Records, records...)
	m.mu.Unlock()
	return nil
}
