package jobs_test

import (
	"net/url"
	"testing"

	"github.com/atelier-systems/tailor/internal/jobs"
)

func TestStageOrder(t *testing.T) {
	want := []jobs.Stage{
		jobs.StageIntake,
		jobs.StageParse,
		jobs.StageEmbed,
		jobs.StageRetrieve,
		jobs.StageGenerate,
		jobs.StageValidate,
		jobs.StageRender,
		jobs.StagePersist,
		jobs.StageDone,
	}

	if len(jobs.StageOrder) != len(want) {
		t.Fatalf("StageOrder has %d stages, want %d", len(jobs.StageOrder), len(want))
	}
	for i, stage := range want {
		if jobs.StageOrder[i] != stage {
			t.Errorf("StageOrder[%d] = %s, want %s", i, jobs.StageOrder[i], stage)
		}
	}
}

func TestStageIndex(t *testing.T) {
	if got := jobs.StageIntake.Index(); got != 0 {
		t.Errorf("INTAKE index = %d, want 0", got)
	}
	if got := jobs.StageDone.Index(); got != len(jobs.StageOrder)-1 {
		t.Errorf("DONE index = %d, want %d", got, len(jobs.StageOrder)-1)
	}
	if got := jobs.Stage("BOGUS").Index(); got != -1 {
		t.Errorf("unknown stage index = %d, want -1", got)
	}
}

func TestStageNext(t *testing.T) {
	next, ok := jobs.StageValidate.Next()
	if !ok || next != jobs.StageRender {
		t.Errorf("VALIDATE.Next() = %s, %v; want RENDER, true", next, ok)
	}

	if _, ok := jobs.StageDone.Next(); ok {
		t.Error("DONE.Next() ok = true, want false")
	}
	if _, ok := jobs.Stage("BOGUS").Next(); ok {
		t.Error("unknown stage Next() ok = true, want false")
	}
}

func TestStageMonotonicOrder(t *testing.T) {
	// Every stage's successor sits strictly later in the order.
	for _, stage := range jobs.StageOrder[:len(jobs.StageOrder)-1] {
		next, ok := stage.Next()
		if !ok {
			t.Fatalf("%s.Next() ok = false", stage)
		}
		if next.Index() <= stage.Index() {
			t.Errorf("%s.Next() = %s does not advance", stage, next)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status jobs.Status
		want   bool
	}{
		{jobs.StatusPending, false},
		{jobs.StatusRunning, false},
		{jobs.StatusSucceeded, true},
		{jobs.StatusFailed, true},
		{jobs.StatusCancelled, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestFiltersFromQuery(t *testing.T) {
	values := url.Values{}
	values.Set("status", "RUNNING")
	values.Set("stage", "GENERATE")

	f := jobs.FiltersFromQuery(values)

	if f.Status == nil || *f.Status != "RUNNING" {
		t.Errorf("Status = %v, want RUNNING", f.Status)
	}
	if f.Stage == nil || *f.Stage != "GENERATE" {
		t.Errorf("Stage = %v, want GENERATE", f.Stage)
	}

	empty := jobs.FiltersFromQuery(url.Values{})
	if empty.Status != nil || empty.Stage != nil {
		t.Errorf("empty query produced filters: %+v", empty)
	}
}
