package migration

import (
	"context"
	"fmt"
	"regexp"

	"github.com/juju/loggo"

	"github.com/rflorenc/esmigrate/internal/cluster"
	"github.com/rflorenc/esmigrate/internal/models"
)

var logger = loggo.GetLogger("esmigrate.migration")

// Inventory is the index listing of one cluster.
type Inventory struct {
	Cluster string
	Indexes []models.IndexRecord
	// Warning is set when the listing failed in a way that was tolerated;
	// Indexes is then empty.
	Warning error
}

// ListIndexes lists the indexes of c. Connectivity failures are returned;
// any other failure is logged and yields an empty inventory with Warning set.
func ListIndexes(ctx context.Context, c cluster.Cluster, log func(string)) (Inventory, error) {
	name := c.Info().Redacted()
	inv := Inventory{Cluster: name}
	records, err := c.ListIndexes(ctx)
	if err != nil {
		if cluster.IsConnectivity(err) || ctx.Err() != nil {
			return inv, fmt.Errorf("listing indexes on %s: %w", name, err)
		}
		logger.Debugf("listIndexes %s: %v", name, err)
		log(fmt.Sprintf("WARNING: could not list indexes on %s: %v", name, err))
		inv.Warning = err
		return inv, nil
	}
	inv.Indexes = records
	logger.Debugf("%s index count %d", name, len(records))
	return inv, nil
}

// FilterByPattern returns the records whose name matches pattern. The match is
// unanchored; a nil pattern keeps every record.
func FilterByPattern(records []models.IndexRecord, pattern *regexp.Regexp) []models.IndexRecord {
	if pattern == nil {
		return records
	}
	filtered := make([]models.IndexRecord, 0, len(records))
	for _, r := range records {
		if pattern.MatchString(r.Name) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// CompilePattern compiles an index name filter. An empty expression matches
// everything.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		expr = ".*"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid index pattern %q: %w", expr, err)
	}
	return re, nil
}
