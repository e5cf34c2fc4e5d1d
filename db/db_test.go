package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/chat-triage/backend/db"
	"github.com/onnwee/chat-triage/backend/testutil"
	"github.com/onnwee/chat-triage/backend/triage"
)

func TestRecordCommentAndReplies(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	store := &db.Store{DB: conn}
	ctx := context.Background()

	c := triage.Comment{
		ID:          "test-comment-1",
		Kind:        triage.KindChat,
		Content:     "how much is the lunch set?",
		UserID:      "u1",
		DisplayName: "viewer",
		ReceivedAt:  time.Now().UTC(),
	}
	d := triage.Decision{Accepted: true, Reason: triage.ReasonAdmitted}
	sc := triage.Score{KeywordScore: 0.9, Probability: 0.85, Category: "price"}

	if err := store.RecordComment(ctx, c, d, sc); err != nil {
		t.Fatalf("RecordComment() error = %v", err)
	}
	// Replays are idempotent.
	if err := store.RecordComment(ctx, c, d, sc); err != nil {
		t.Fatalf("RecordComment() replay error = %v", err)
	}

	if err := store.InsertReply(ctx, c.ID, "sets start at twenty", 0.85, false, ""); err != nil {
		t.Fatalf("InsertReply() error = %v", err)
	}
	// Operator reply with no source comment.
	if err := store.InsertReply(ctx, "", "we close early today", 1.0, false, ""); err != nil {
		t.Fatalf("InsertReply() operator error = %v", err)
	}

	replies, err := store.RecentReplies(ctx, 10)
	if err != nil {
		t.Fatalf("RecentReplies() error = %v", err)
	}
	if len(replies) < 2 {
		t.Fatalf("replies = %d, want at least 2", len(replies))
	}
	var sawJoined, sawOperator bool
	for _, r := range replies {
		if r.CommentID == c.ID && r.Content == c.Content {
			sawJoined = true
		}
		if r.CommentID == "" && r.ReplyText == "we close early today" {
			sawOperator = true
		}
	}
	if !sawJoined {
		t.Error("missing reply joined to its source comment")
	}
	if !sawOperator {
		t.Error("missing operator reply with empty comment id")
	}
}

func TestLedgerRoundtrip(t *testing.T) {
	conn := testutil.SetupTestDB(t)
	ledger := &db.Ledger{DB: conn}
	ctx := context.Background()
	day := "2091-01-02"

	spent, err := ledger.LoadSpend(ctx, day)
	if err != nil {
		t.Fatalf("LoadSpend() error = %v", err)
	}
	if spent != 0 {
		t.Fatalf("spend for an unseen day = %v, want 0", spent)
	}

	if err := ledger.SaveSpend(ctx, day, 0.042); err != nil {
		t.Fatalf("SaveSpend() error = %v", err)
	}
	if err := ledger.SaveSpend(ctx, day, 0.084); err != nil {
		t.Fatalf("SaveSpend() upsert error = %v", err)
	}
	spent, err = ledger.LoadSpend(ctx, day)
	if err != nil {
		t.Fatalf("LoadSpend() error = %v", err)
	}
	if spent != 0.084 {
		t.Fatalf("spend = %v, want the upserted value", spent)
	}
}
