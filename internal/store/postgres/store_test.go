package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ankittk/usagi/pkg/models"
)

func TestOpen_skipIfNoDatabaseURL(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	st, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	id := "pgtest-" + time.Now().Format("20060102150405.000000000")
	if err := st.StartJob(ctx, models.Job{JobID: id, Source: "inputs/a.md", Project: "p"}); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if err := st.FinishJob(ctx, id, models.JobDone, ""); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	j, err := st.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Result != models.JobDone {
		t.Fatalf("result = %q", j.Result)
	}
	if err := st.RecordMerge(ctx, models.Merge{Key: id, Branch: "team/x", Result: models.MergeSkipped}); err != nil {
		t.Fatalf("RecordMerge: %v", err)
	}
	done, err := st.MergeDone(ctx, id)
	if err != nil || !done {
		t.Fatalf("MergeDone = %v, %v", done, err)
	}
}
