package migration

import (
	"reflect"
	"regexp"
	"testing"

	"github.com/rflorenc/esmigrate/internal/models"
)

func TestComputePlan(t *testing.T) {
	source := []models.IndexRecord{green("a", 100), green("b", 0), yellow("c", 50)}
	dest := []models.IndexRecord{green("a", 100)}

	tests := []struct {
		name         string
		source, dest []models.IndexRecord
		policy       models.Policy
		wantRemove   []string
		wantTruncate []string
		wantCopy     []string
		wantSkipped  map[string]models.SkipReason
	}{
		{
			name:         "existing destination index is skipped",
			source:       source,
			dest:         dest,
			wantRemove:   []string{},
			wantTruncate: []string{},
			wantCopy:     []string{},
			wantSkipped: map[string]models.SkipReason{
				"a": models.SkipExists,
				"b": models.SkipEmpty,
				"c": models.SkipUnhealthy,
			},
		},
		{
			name:         "overwrite truncates then copies",
			source:       source,
			dest:         dest,
			policy:       models.Policy{Overwrite: true},
			wantRemove:   []string{},
			wantTruncate: []string{"a"},
			wantCopy:     []string{"a"},
			wantSkipped: map[string]models.SkipReason{
				"b": models.SkipEmpty,
				"c": models.SkipUnhealthy,
			},
		},
		{
			name:         "empty destination index is copied without truncation",
			source:       []models.IndexRecord{green("logs", 10)},
			dest:         []models.IndexRecord{green("logs", 0)},
			wantRemove:   []string{},
			wantTruncate: []string{},
			wantCopy:     []string{"logs"},
			wantSkipped:  map[string]models.SkipReason{},
		},
		{
			name:         "remove extra keeps skipped and copied names",
			source:       []models.IndexRecord{green("a", 1), green("b", 2), yellow("c", 3)},
			dest:         []models.IndexRecord{green("a", 1), green("old", 7), green("c", 3)},
			policy:       models.Policy{RemoveExtra: true},
			wantRemove:   []string{"old", "c"},
			wantTruncate: []string{},
			wantCopy:     []string{"b"},
			wantSkipped: map[string]models.SkipReason{
				"a": models.SkipExists,
				"c": models.SkipUnhealthy,
			},
		},
		{
			name:         "pattern filters both sides",
			source:       []models.IndexRecord{green("logs-1", 5), green("metrics-1", 5)},
			dest:         []models.IndexRecord{green("logs-old", 1), green("metrics-old", 1)},
			policy:       models.Policy{RemoveExtra: true, NamePattern: regexp.MustCompile("^logs-")},
			wantRemove:   []string{"logs-old"},
			wantTruncate: []string{},
			wantCopy:     []string{"logs-1"},
			wantSkipped:  map[string]models.SkipReason{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := ComputePlan(tt.source, tt.dest, tt.policy)
			if !reflect.DeepEqual(plan.ToRemove, tt.wantRemove) {
				t.Errorf("ToRemove = %v, want %v", plan.ToRemove, tt.wantRemove)
			}
			if !reflect.DeepEqual(plan.ToTruncate, tt.wantTruncate) {
				t.Errorf("ToTruncate = %v, want %v", plan.ToTruncate, tt.wantTruncate)
			}
			if !reflect.DeepEqual(plan.ToCopy, tt.wantCopy) {
				t.Errorf("ToCopy = %v, want %v", plan.ToCopy, tt.wantCopy)
			}
			got := make(map[string]models.SkipReason)
			for _, s := range plan.Skipped {
				got[s.Name] = s.Reason
			}
			if !reflect.DeepEqual(got, tt.wantSkipped) {
				t.Errorf("Skipped = %v, want %v", got, tt.wantSkipped)
			}
		})
	}
}

func TestComputePlan_Documents(t *testing.T) {
	plan := ComputePlan([]models.IndexRecord{green("a", 100), green("b", 20)}, nil, models.Policy{})
	if plan.TotalDocuments() != 120 {
		t.Errorf("TotalDocuments = %d, want 120", plan.TotalDocuments())
	}
	if plan.Documents["b"] != 20 {
		t.Errorf("Documents[b] = %d, want 20", plan.Documents["b"])
	}
}

// inventories covers a spread of overlapping source/destination states.
var inventories = []struct {
	name         string
	source, dest []models.IndexRecord
}{
	{"both empty", nil, nil},
	{"disjoint", []models.IndexRecord{green("a", 1), green("b", 2)}, []models.IndexRecord{green("x", 1)}},
	{"overlap", []models.IndexRecord{green("a", 1), green("b", 2), yellow("c", 3)}, []models.IndexRecord{green("a", 5), green("c", 3), green("d", 0)}},
	{"destination empty copies", []models.IndexRecord{green("a", 1)}, []models.IndexRecord{green("a", 0), green("z", 9)}},
	{"all unhealthy", []models.IndexRecord{yellow("a", 1), {Name: "b", Health: models.HealthRed}}, []models.IndexRecord{green("a", 1)}},
}

var policies = []models.Policy{
	{},
	{Overwrite: true},
	{RemoveExtra: true},
	{Overwrite: true, RemoveExtra: true},
}

func TestComputePlan_Disjoint(t *testing.T) {
	for _, inv := range inventories {
		for _, policy := range policies {
			plan := ComputePlan(inv.source, inv.dest, policy)
			removed := toSet(plan.ToRemove)
			for _, name := range plan.ToCopy {
				if removed[name] {
					t.Errorf("%s %+v: %s both removed and copied", inv.name, policy, name)
				}
			}
			for _, name := range plan.ToTruncate {
				if removed[name] {
					t.Errorf("%s %+v: %s both removed and truncated", inv.name, policy, name)
				}
			}
		}
	}
}

func TestComputePlan_Idempotent(t *testing.T) {
	for _, inv := range inventories {
		first := ComputePlan(inv.source, inv.dest, models.Policy{})

		// Reflect the first run in the destination inventory.
		counts := make(map[string]models.IndexRecord)
		var order []string
		for _, d := range inv.dest {
			counts[d.Name] = d
			order = append(order, d.Name)
		}
		for _, name := range first.ToCopy {
			if _, ok := counts[name]; !ok {
				order = append(order, name)
			}
			counts[name] = green(name, first.Documents[name])
		}
		var after []models.IndexRecord
		for _, name := range order {
			after = append(after, counts[name])
		}

		second := ComputePlan(inv.source, after, models.Policy{})
		if len(second.ToCopy) != 0 {
			t.Errorf("%s: second plan copies %v", inv.name, second.ToCopy)
		}
	}
}

func TestComputePlan_RemoveExtraOnlyAddsRemovals(t *testing.T) {
	for _, inv := range inventories {
		for _, overwrite := range []bool{false, true} {
			without := ComputePlan(inv.source, inv.dest, models.Policy{Overwrite: overwrite})
			with := ComputePlan(inv.source, inv.dest, models.Policy{Overwrite: overwrite, RemoveExtra: true})
			if !reflect.DeepEqual(without.ToCopy, with.ToCopy) {
				t.Errorf("%s overwrite=%v: ToCopy %v != %v", inv.name, overwrite, without.ToCopy, with.ToCopy)
			}
			if !reflect.DeepEqual(without.ToTruncate, with.ToTruncate) {
				t.Errorf("%s overwrite=%v: ToTruncate %v != %v", inv.name, overwrite, without.ToTruncate, with.ToTruncate)
			}
			if len(without.ToRemove) != 0 {
				t.Errorf("%s overwrite=%v: removals without RemoveExtra: %v", inv.name, overwrite, without.ToRemove)
			}
		}
	}
}

func TestComputePlan_OverwriteTruncatesPopulatedCopies(t *testing.T) {
	for _, inv := range inventories {
		plan := ComputePlan(inv.source, inv.dest, models.Policy{Overwrite: true})

		populated := make(map[string]bool)
		for _, d := range inv.dest {
			if d.DocumentCount > 0 {
				populated[d.Name] = true
			}
		}
		var want []string
		for _, name := range plan.ToCopy {
			if populated[name] {
				want = append(want, name)
			}
		}
		if want == nil {
			want = []string{}
		}
		if !reflect.DeepEqual(plan.ToTruncate, want) {
			t.Errorf("%s: ToTruncate = %v, want ToCopy ∩ populated = %v", inv.name, plan.ToTruncate, want)
		}
	}
}

func TestFilterByPattern(t *testing.T) {
	records := []models.IndexRecord{green("logs-2024", 1), green("metrics", 1), green("app-logs", 1)}

	tests := []struct {
		expr string
		want []string
	}{
		{"", []string{"logs-2024", "metrics", "app-logs"}},
		{"logs", []string{"logs-2024", "app-logs"}},
		{"^logs", []string{"logs-2024"}},
		{"nomatch", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			re, err := CompilePattern(tt.expr)
			if err != nil {
				t.Fatalf("CompilePattern: %v", err)
			}
			got := []string{}
			for _, r := range FilterByPattern(records, re) {
				got = append(got, r.Name)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if got := FilterByPattern(records, nil); len(got) != len(records) {
		t.Errorf("nil pattern kept %d records, want %d", len(got), len(records))
	}
}

func TestCompilePattern_Invalid(t *testing.T) {
	if _, err := CompilePattern("("); err == nil {
		t.Error("expected error for invalid pattern")
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
