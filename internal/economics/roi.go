package economics

import (
	"sort"

	"github.com/ocx/econcore/internal/core"
)

// NetROI returns (value-cost)/cost as a percentage. A non-positive cost
// yields 0 rather than an infinite return.
func NetROI(cost, value float64) float64 {
	if cost <= 0 {
		return 0
	}
	return finite((value - cost) / cost * 100)
}

// RankPaths computes NetROI for every path and returns a new slice sorted
// by ROI descending. Ties keep their input order. The first path is marked
// chosen; the input slice is not modified.
func RankPaths(paths []core.WorkflowPath) []core.WorkflowPath {
	ranked := make([]core.WorkflowPath, len(paths))
	for i, p := range paths {
		p.NetROI = NetROI(p.ProjectedCost, p.ProjectedValue)
		p.Chosen = false
		p.Steps = append([]string(nil), p.Steps...)
		ranked[i] = p
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].NetROI > ranked[j].NetROI
	})
	if len(ranked) > 0 {
		ranked[0].Chosen = true
	}
	return ranked
}

// StandardPaths returns the three reference paths for a task of the given
// potential value: a premium single-model path, a hybrid path and a
// budget-native path.
func StandardPaths(potentialValue float64) []core.WorkflowPath {
	return []core.WorkflowPath{
		{ID: "path_standard", Name: "Standard Pro-Only", Steps: []string{"Reasoning (Pro)", "Tools (Search)", "Output"},
			ProjectedCost: 0.12, ProjectedValue: potentialValue, Confidence: 95},
		{ID: "path_optimized", Name: "ROI-Optimized Hybrid", Steps: []string{"Classification (Lite)", "Reasoning (Flash)", "Tools (Local)", "Review (Pro)"},
			ProjectedCost: 0.04, ProjectedValue: potentialValue * 0.95, Confidence: 92},
		{ID: "path_lite", Name: "Budget-Native", Steps: []string{"Reasoning (Lite)", "Tools (Lite)"},
			ProjectedCost: 0.005, ProjectedValue: potentialValue * 0.70, Confidence: 75},
	}
}
