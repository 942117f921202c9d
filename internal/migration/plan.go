package migration

import (
	"fmt"

	"github.com/rflorenc/esmigrate/internal/models"
)

// ComputePlan diffs the source and destination inventories into the set of
// actions to perform on the destination. It does not touch either cluster.
//
// Extra destination indexes are determined against the eligible source set
// (green, non-empty) before the overwrite rule narrows it, so an index that
// is skipped as already migrated is never removed.
func ComputePlan(source, dest []models.IndexRecord, policy models.Policy) *models.MigrationPlan {
	plan := &models.MigrationPlan{
		ToRemove:   []string{},
		ToTruncate: []string{},
		ToCopy:     []string{},
		Documents:  make(map[string]int64),
		Skipped:    []models.SkippedIndex{},
	}
	if policy.NamePattern != nil {
		plan.Pattern = policy.NamePattern.String()
	}

	source = FilterByPattern(source, policy.NamePattern)
	dest = FilterByPattern(dest, policy.NamePattern)

	destByName := make(map[string]models.IndexRecord, len(dest))
	for _, d := range dest {
		destByName[d.Name] = d
	}

	// Only green indexes with documents are worth copying.
	var eligible []models.IndexRecord
	for _, s := range source {
		if s.Health != models.HealthGreen {
			plan.Skipped = append(plan.Skipped, models.SkippedIndex{
				Name:   s.Name,
				Reason: models.SkipUnhealthy,
				Detail: fmt.Sprintf("health is %s", s.Health),
			})
			continue
		}
		if s.DocumentCount == 0 {
			plan.Skipped = append(plan.Skipped, models.SkippedIndex{
				Name:   s.Name,
				Reason: models.SkipEmpty,
				Detail: "0 documents",
			})
			continue
		}
		eligible = append(eligible, s)
	}

	if policy.RemoveExtra {
		onSource := make(map[string]bool, len(eligible))
		for _, s := range eligible {
			onSource[s.Name] = true
		}
		for _, d := range dest {
			if !onSource[d.Name] {
				plan.ToRemove = append(plan.ToRemove, d.Name)
			}
		}
	}

	for _, s := range eligible {
		d, exists := destByName[s.Name]
		populated := exists && d.DocumentCount > 0
		if populated && !policy.Overwrite {
			plan.Skipped = append(plan.Skipped, models.SkippedIndex{
				Name:   s.Name,
				Reason: models.SkipExists,
				Detail: fmt.Sprintf("already exists with %d document(s)", d.DocumentCount),
			})
			continue
		}
		if populated {
			plan.ToTruncate = append(plan.ToTruncate, s.Name)
		}
		plan.ToCopy = append(plan.ToCopy, s.Name)
		plan.Documents[s.Name] = s.DocumentCount
	}

	return plan
}
