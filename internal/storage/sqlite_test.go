package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/mitigate/internal/job"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(number string) job.Record {
	return job.Record{
		JobDetails: job.JobDetails{CompanyName: "DryRight", JobNumber: job.Text(number), LossCategory: job.Category2},
		Insured:    job.Insured{Name: "Pat Doe"},
		Inspection: job.Inspection{Checklist: job.InspectionChecklist{job.FlagVisibleMold}},
		Rooms: []job.Room{{
			Name:      "Hall Bath",
			Checklist: job.RoomChecklist{job.ActionBaseboardsRemoved, "Custom Step"},
			DryLogs:   []job.DryLogEntry{{Date: "2024-01-02", Reading: "14%"}},
			Photos:    []job.Photo{{Name: "a.jpg", Caption: "vanity"}},
		}},
	}
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if _, err := s1.SaveJob("persisted", sampleRecord("1")); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}

	jobs, err := s2.ListJobs(ListOptions{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "persisted" {
		t.Errorf("jobs after reopen = %+v", jobs)
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_job_snapshots_created", "idx_job_snapshots_job_number"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestSaveAndLoadJob(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2024, 1, 2, 9, 30, 0, 123, time.UTC)
	s.now = func() time.Time { return fixed }

	rec := sampleRecord("4471")
	saved, err := s.SaveJob("  Hall bath loss  ", rec)
	if err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if _, err := uuid.Parse(saved.ID); err != nil {
		t.Errorf("ID %q is not a uuid: %v", saved.ID, err)
	}
	if saved.Name != "Hall bath loss" {
		t.Errorf("Name = %q, want trimmed name", saved.Name)
	}

	got, err := s.LoadJob(saved.ID)
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if !got.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, fixed)
	}
	if got.Record.JobDetails.JobNumber != "4471" || got.Record.JobDetails.LossCategory != job.Category2 {
		t.Errorf("job details = %+v", got.Record.JobDetails)
	}
	if len(got.Record.Rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(got.Record.Rooms))
	}
	room := got.Record.Rooms[0]
	if len(room.Checklist) != 2 || room.Checklist[1] != "Custom Step" {
		t.Errorf("room checklist = %v", room.Checklist)
	}
	if len(room.Photos) != 1 || room.Photos[0].Caption != "vanity" {
		t.Errorf("room photos = %+v", room.Photos)
	}
	if len(got.Record.Inspection.Checklist) != 1 || got.Record.Inspection.Checklist[0] != job.FlagVisibleMold {
		t.Errorf("inspection checklist = %v", got.Record.Inspection.Checklist)
	}
}

func TestSaveJob_DefaultName(t *testing.T) {
	s := openTestStore(t)

	saved, err := s.SaveJob("", sampleRecord("4471"))
	if err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if saved.Name != "DryRight #4471" {
		t.Errorf("Name = %q, want display name", saved.Name)
	}
}

func TestLoadJobNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.LoadJob("does-not-exist")
	if err != ErrNotFound {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestListJobs_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 3 {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		if _, err := s.SaveJob(fmt.Sprintf("job-%d", i), sampleRecord(fmt.Sprint(100+i))); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	jobs, err := s.ListJobs(ListOptions{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	for i, want := range []string{"job-2", "job-1", "job-0"} {
		if jobs[i].Name != want {
			t.Errorf("jobs[%d].Name = %q, want %q", i, jobs[i].Name, want)
		}
	}
	if jobs[0].JobNumber != "102" || jobs[0].InsuredName != "Pat Doe" {
		t.Errorf("summary = %+v", jobs[0])
	}
}

func TestListJobs_SameTimestampUsesInsertOrder(t *testing.T) {
	s := openTestStore(t)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	for _, name := range []string{"first", "second"} {
		if _, err := s.SaveJob(name, job.Record{}); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}
	jobs, err := s.ListJobs(ListOptions{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Name != "second" || jobs[1].Name != "first" {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestListJobs_LimitOffset(t *testing.T) {
	s := openTestStore(t)
	for i := range 5 {
		if _, err := s.SaveJob(fmt.Sprintf("job-%d", i), job.Record{}); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	page, err := s.ListJobs(ListOptions{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(page) != 2 || page[0].Name != "job-3" || page[1].Name != "job-2" {
		t.Errorf("page = %+v", page)
	}

	all, err := s.ListJobs(ListOptions{Limit: -1, Offset: -4})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 5 {
		t.Errorf("got %d jobs with default limit, want 5", len(all))
	}
}

func TestListJobs_Query(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"Smith basement", "Jones kitchen", "100%_done"} {
		if _, err := s.SaveJob(name, sampleRecord("A-"+name[:3])); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	tests := []struct {
		query string
		want  int
	}{
		{"smith", 1},
		{"KITCHEN", 1},
		{"A-Jon", 1},
		{"%", 1},
		{"_", 1},
		{"nothing", 0},
	}
	for _, tc := range tests {
		got, err := s.ListJobs(ListOptions{Query: tc.query})
		if err != nil {
			t.Fatalf("ListJobs(%q): %v", tc.query, err)
		}
		if len(got) != tc.want {
			t.Errorf("ListJobs(%q) = %d results, want %d", tc.query, len(got), tc.want)
		}
	}
}

func TestListJobs_EmptyIsNotNil(t *testing.T) {
	s := openTestStore(t)
	jobs, err := s.ListJobs(ListOptions{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if jobs == nil {
		t.Error("ListJobs returned nil slice, want empty")
	}
}

func TestDeleteJob(t *testing.T) {
	s := openTestStore(t)

	saved, err := s.SaveJob("doomed", job.Record{})
	if err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if err := s.DeleteJob(saved.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := s.LoadJob(saved.ID); err != ErrNotFound {
		t.Errorf("LoadJob after delete: %v, want ErrNotFound", err)
	}
	if err := s.DeleteJob(saved.ID); err != ErrNotFound {
		t.Errorf("second DeleteJob: %v, want ErrNotFound", err)
	}
}
