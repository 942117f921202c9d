package models

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestJob_Lifecycle(t *testing.T) {
	store := NewJobStore()
	j := store.Create(JobMigrationRun, "src", "dst")
	if j.CurrentStatus() != "running" || j.Done() {
		t.Fatalf("new job status = %q", j.CurrentStatus())
	}

	j.AppendLog("one")
	j.AppendLog("two")
	if lines := j.LogsSince(1); len(lines) != 1 || lines[0] != "two" {
		t.Errorf("LogsSince(1) = %v", lines)
	}
	if lines := j.LogsSince(5); lines != nil {
		t.Errorf("LogsSince(5) = %v, want nil", lines)
	}

	if _, ok := j.LatestProgress(); ok {
		t.Error("LatestProgress should be empty before SetProgress")
	}
	j.SetProgress(Progress{Documents: 5, Total: 10, Ratio: 0.5})
	if p, ok := j.LatestProgress(); !ok || p.Ratio != 0.5 {
		t.Errorf("LatestProgress() = %+v, %v", p, ok)
	}

	j.Fail("boom")
	if !j.Done() || j.Error != "boom" || j.FinishedAt == nil {
		t.Errorf("Fail not applied: status=%q error=%q", j.CurrentStatus(), j.Error)
	}
}

func TestJob_Cancel(t *testing.T) {
	store := NewJobStore()
	j := store.Create(JobMigrationRun, "src", "dst")
	if j.Cancel() {
		t.Error("Cancel without a cancel func should return false")
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.SetCancel(cancel)
	if !j.Cancel() {
		t.Fatal("Cancel returned false for running job")
	}
	if ctx.Err() == nil {
		t.Error("Cancel did not cancel the context")
	}
	j.Complete()
	if j.Cancel() {
		t.Error("Cancel on a completed job should return false")
	}
}

func TestJob_MarshalJSON(t *testing.T) {
	store := NewJobStore()
	j := store.Create(JobMigrationPreview, "src", "dst")
	j.AppendLog("hello")
	data, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["type"] != JobMigrationPreview || decoded["status"] != "running" {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestJobStore_ListMostRecentFirst(t *testing.T) {
	store := NewJobStore()
	first := store.Create(JobMigrationPreview, "", "")
	first.StartedAt = time.Now().Add(-time.Minute)
	second := store.Create(JobMigrationRun, "", "")

	list := store.List()
	if len(list) != 2 || list[0].ID != second.ID {
		t.Errorf("List() order wrong: %s first, want %s", list[0].ID, second.ID)
	}
	if store.Get(first.ID) != first {
		t.Error("Get did not return the stored job")
	}
}
