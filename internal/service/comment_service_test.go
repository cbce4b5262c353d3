package service

import (
	"errors"
	"testing"

	"github.com/noirblog/internal/db"
)

func TestCommentService_CreateAndList(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewCommentService(gdb)
	user := createTestUser(t, gdb, "commenter")
	topic := createTestTopic(t, gdb, "Misc")

	post := db.Post{Title: "Target", Body: "body text here", UserID: user.ID, TopicID: topic.ID}
	if err := gdb.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}

	for _, body := range []string{"first!", "  second  "} {
		if _, err := svc.Create(post.ID, user.ID, CommentInput{Body: body}); err != nil {
			t.Fatalf("create comment: %v", err)
		}
	}

	comments, err := svc.ListForPost(post.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(comments) != 2 || comments[0].Body != "first!" || comments[1].Body != "second" {
		t.Fatalf("expected oldest first, got %+v", comments)
	}
	if comments[0].User.Username != "commenter" {
		t.Fatalf("expected author preloaded")
	}
}

func TestCommentService_Validation(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewCommentService(gdb)
	user := createTestUser(t, gdb, "commenter")

	if _, err := svc.Create(1, user.ID, CommentInput{Body: " x "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.Create(404, user.ID, CommentInput{Body: "valid body"}); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}
}

func TestCommentService_Delete(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewCommentService(gdb)
	user := createTestUser(t, gdb, "commenter")
	topic := createTestTopic(t, gdb, "Misc")

	post := db.Post{Title: "Target", Body: "body text here", UserID: user.ID, TopicID: topic.ID}
	if err := gdb.Create(&post).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	comment, err := svc.Create(post.ID, user.ID, CommentInput{Body: "delete me"})
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}

	if err := svc.Delete(comment.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(comment.ID); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
	if err := svc.Delete(comment.ID); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound on second delete, got %v", err)
	}
}
