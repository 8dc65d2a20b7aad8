package queue

import (
	"context"
	"time"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
	"go.uber.org/zap"
)

// Fabric wraps a Store with the typed enqueue/dequeue helpers for the three
// item kinds the topology carries, rejecting (and logging) malformed
// entries instead of surfacing decode errors to callers.
type Fabric struct {
	store Store
	log   *zap.Logger
}

func NewFabric(store Store, log *zap.Logger) *Fabric {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fabric{store: store, log: log}
}

func (f *Fabric) Close() error { return f.store.Close() }

func (f *Fabric) Length(ctx context.Context, key string) (int64, error) {
	return f.store.Length(ctx, key)
}

// EnqueueAnalysis appends to the analysis queue for t.
func (f *Fabric) EnqueueAnalysis(ctx context.Context, t analysisconfig.AnalysisType, item QueueItem) error {
	raw, err := item.Marshal()
	if err != nil {
		return err
	}
	return f.store.Append(ctx, AnalysisQueueName(t), raw)
}

// DequeueAnalysis pops the head of the analysis queue for t. A malformed
// entry is logged and dropped; the caller sees it as "nothing available"
// rather than an error.
func (f *Fabric) DequeueAnalysis(ctx context.Context, t analysisconfig.AnalysisType) (QueueItem, bool, error) {
	key := AnalysisQueueName(t)
	raw, ok, err := f.store.HeadPop(ctx, key)
	if err != nil || !ok {
		return QueueItem{}, false, err
	}
	item, perr := UnmarshalQueueItem(raw)
	if perr != nil {
		f.log.Warn("dropping malformed analysis queue item", zap.String("queue", key), zap.Error(perr))
		return QueueItem{}, false, nil
	}
	return item, true, nil
}

// BlockingDequeueAnalysis blocks up to timeout for an item on t's queue.
func (f *Fabric) BlockingDequeueAnalysis(ctx context.Context, t analysisconfig.AnalysisType, timeout time.Duration) (QueueItem, bool, error) {
	key := AnalysisQueueName(t)
	raw, ok, err := f.store.BlockingHeadPop(ctx, key, timeout)
	if err != nil || !ok {
		return QueueItem{}, false, err
	}
	item, perr := UnmarshalQueueItem(raw)
	if perr != nil {
		f.log.Warn("dropping malformed analysis queue item", zap.String("queue", key), zap.Error(perr))
		return QueueItem{}, false, nil
	}
	return item, true, nil
}

// EnqueueCorrective appends to the (stage, type) corrective queue.
func (f *Fabric) EnqueueCorrective(ctx context.Context, stage analysisconfig.QAStage, t analysisconfig.AnalysisType, item CorrectiveQueueItem) error {
	raw, err := item.Marshal()
	if err != nil {
		return err
	}
	return f.store.Append(ctx, CorrectiveQueueName(stage, t), raw)
}

func (f *Fabric) DequeueCorrective(ctx context.Context, stage analysisconfig.QAStage, t analysisconfig.AnalysisType) (CorrectiveQueueItem, bool, error) {
	key := CorrectiveQueueName(stage, t)
	raw, ok, err := f.store.HeadPop(ctx, key)
	if err != nil || !ok {
		return CorrectiveQueueItem{}, false, err
	}
	item, perr := UnmarshalCorrectiveQueueItem(raw)
	if perr != nil {
		f.log.Warn("dropping malformed corrective queue item", zap.String("queue", key), zap.Error(perr))
		return CorrectiveQueueItem{}, false, nil
	}
	return item, true, nil
}

// EnqueueManagement appends item to one of the 3 operator-visible queues.
func (f *Fabric) EnqueueManagement(ctx context.Context, queueName string, item ManagementQueueItem) error {
	raw, err := item.Marshal()
	if err != nil {
		return err
	}
	return f.store.Append(ctx, queueName, raw)
}

func (f *Fabric) DequeueManagement(ctx context.Context, queueName string) (ManagementQueueItem, bool, error) {
	raw, ok, err := f.store.HeadPop(ctx, queueName)
	if err != nil || !ok {
		return ManagementQueueItem{}, false, err
	}
	item, perr := UnmarshalManagementQueueItem(raw)
	if perr != nil {
		f.log.Warn("dropping malformed management queue item", zap.String("queue", queueName), zap.Error(perr))
		return ManagementQueueItem{}, false, nil
	}
	return item, true, nil
}

// RawHeadPop exposes the store's untyped head-pop, returning the entry
// without decoding or validating it.
func (f *Fabric) RawHeadPop(ctx context.Context, key string) (string, bool, error) {
	return f.store.HeadPop(ctx, key)
}

// RawAppend exposes the store's untyped append.
func (f *Fabric) RawAppend(ctx context.Context, key, value string) error {
	return f.store.Append(ctx, key, value)
}
