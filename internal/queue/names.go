// Package queue implements the fixed 87-queue topology (C2 in the design:
// 21 analysis + 63 corrective + 3 management) and the round-robin-friendly
// naming scheme it exposes to the worker coordinator and queue monitor.
package queue

import (
	"fmt"
	"strings"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
)

// Kind classifies a queue name by which third of the topology it belongs to.
type Kind int

const (
	KindAnalysis Kind = iota
	KindCorrective
	KindManagement
	KindUnknown
)

// ParseQueueName reverses AnalysisQueueName/CorrectiveQueueName/the
// management constants, for dispatch code that only has the queue name a
// rotation popped from.
func ParseQueueName(name string) (kind Kind, stage analysisconfig.QAStage, analysisType analysisconfig.AnalysisType) {
	switch {
	case strings.HasPrefix(name, "analysis:"):
		return KindAnalysis, "", analysisconfig.AnalysisType(strings.TrimPrefix(name, "analysis:"))
	case strings.HasPrefix(name, "corrective:"):
		rest := strings.TrimPrefix(name, "corrective:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return KindUnknown, "", ""
		}
		return KindCorrective, analysisconfig.QAStage(parts[0]), analysisconfig.AnalysisType(parts[1])
	case strings.HasPrefix(name, "mgmt:"):
		return KindManagement, "", ""
	default:
		return KindUnknown, "", ""
	}
}

func AnalysisQueueName(t analysisconfig.AnalysisType) string {
	return fmt.Sprintf("analysis:%s", t)
}

func CorrectiveQueueName(stage analysisconfig.QAStage, t analysisconfig.AnalysisType) string {
	return fmt.Sprintf("corrective:%s:%s", stage, t)
}

const (
	ManagementManualReview      = "mgmt:manual_review"
	ManagementPriorityProcessing = "mgmt:priority_processing"
	ManagementBatchCompletion   = "mgmt:batch_completion"
)

// AllAnalysisQueueNames returns the 21 analysis queue names in the
// canonical AnalysisType order.
func AllAnalysisQueueNames() []string {
	names := make([]string, 0, len(analysisconfig.AllAnalysisTypes))
	for _, t := range analysisconfig.AllAnalysisTypes {
		names = append(names, AnalysisQueueName(t))
	}
	return names
}

// AllCorrectiveQueueNames returns the 63 corrective queue names, grouped
// first by stage (canonical order) then by analysis type.
func AllCorrectiveQueueNames() []string {
	names := make([]string, 0, len(analysisconfig.CanonicalStageOrder)*len(analysisconfig.AllAnalysisTypes))
	for _, stage := range analysisconfig.CanonicalStageOrder {
		for _, t := range analysisconfig.AllAnalysisTypes {
			names = append(names, CorrectiveQueueName(stage, t))
		}
	}
	return names
}

// AllManagementQueueNames returns the 3 operator-visible queues.
func AllManagementQueueNames() []string {
	return []string{ManagementManualReview, ManagementPriorityProcessing, ManagementBatchCompletion}
}

// AllQueueNames returns the full 87-queue topology in the order the worker
// coordinator builds its round-robin rotation: 21 analysis, then 63
// corrective (stage-major), then the 3 management queues.
func AllQueueNames() []string {
	all := make([]string, 0, 87)
	all = append(all, AllAnalysisQueueNames()...)
	all = append(all, AllCorrectiveQueueNames()...)
	all = append(all, AllManagementQueueNames()...)
	return all
}
