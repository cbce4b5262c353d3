package service

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/noirblog/internal/db"
	"github.com/noirblog/internal/logging"
	"gorm.io/gorm"
)

func validRegistration(username string) RegisterInput {
	return RegisterInput{
		Username: username,
		Email:    username + "@Example.com",
		Password: "secret123",
		Confirm:  "secret123",
	}
}

func TestUserService_RegisterHashesPassword(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewUserService(gdb, nil, logging.Nop())

	input := validRegistration("alice")
	input.Age = "31"
	input.Job = " engineer "
	user, err := svc.Register(input)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if user.Email != "alice@example.com" {
		t.Fatalf("expected lower-cased email, got %q", user.Email)
	}
	if user.PasswordHash == "secret123" || !user.CheckPassword("secret123") {
		t.Fatalf("password must be stored as a digest")
	}
	if user.Age == nil || *user.Age != 31 {
		t.Fatalf("expected age 31, got %v", user.Age)
	}
	if user.Job != "engineer" {
		t.Fatalf("expected trimmed job, got %q", user.Job)
	}
}

func TestUserService_RegisterRejectsDuplicates(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewUserService(gdb, nil, logging.Nop())

	if _, err := svc.Register(validRegistration("alice")); err != nil {
		t.Fatalf("register: %v", err)
	}

	sameName := validRegistration("alice")
	sameName.Email = "other@example.com"
	if _, err := svc.Register(sameName); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	sameEmail := validRegistration("alice2")
	sameEmail.Email = "ALICE@example.com"
	if _, err := svc.Register(sameEmail); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	var count int64
	gdb.Model(&db.User{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single user, got %d", count)
	}
}

func TestUserService_RegisterValidation(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewUserService(gdb, nil, logging.Nop())

	input := RegisterInput{Username: "al", Email: "nope", Password: "123", Confirm: "456", Age: "abc"}
	_, err := svc.Register(input)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	for _, field := range []string{"username", "email", "password", "confirm", "age"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected error for %s, got %v", field, verr.Fields)
		}
	}

	outOfRange := validRegistration("bob")
	outOfRange.Age = "200"
	if _, err := svc.Register(outOfRange); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected age range error, got %v", err)
	}
}

func TestUserService_Authenticate(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewUserService(gdb, nil, logging.Nop())

	if _, err := svc.Register(validRegistration("carol")); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, credential := range []string{"carol", "carol@example.com", " CAROL@example.com "} {
		user, err := svc.Authenticate(credential, "secret123")
		if err != nil {
			t.Fatalf("authenticate %q: %v", credential, err)
		}
		if user.Username != "carol" {
			t.Fatalf("unexpected user %q", user.Username)
		}
	}

	if _, err := svc.Authenticate("carol", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate("nobody", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestUserService_UpdateProfile(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewUserService(gdb, nil, logging.Nop())

	dave, err := svc.Register(validRegistration("dave"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(validRegistration("erin")); err != nil {
		t.Fatalf("register: %v", err)
	}

	updated, err := svc.UpdateProfile(dave.ID, ProfileInput{
		RealName: "Dave D",
		Email:    "dave@new.example.com",
		Bio:      "hello",
		Password: "newsecret",
		Confirm:  "newsecret",
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.RealName != "Dave D" || updated.Email != "dave@new.example.com" {
		t.Fatalf("profile not updated: %+v", updated)
	}
	if !updated.CheckPassword("newsecret") {
		t.Fatalf("password should be changed")
	}

	if _, err := svc.UpdateProfile(dave.ID, ProfileInput{Email: "erin@example.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := svc.UpdateProfile(9999, ProfileInput{Email: "ghost@example.com"}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_DeleteAccountCascades(t *testing.T) {
	gdb := setupServiceTestDB(t)
	store := newTestStore(t)
	users := NewUserService(gdb, store, logging.Nop())
	posts := NewPostService(gdb, store, logging.Nop())
	comments := NewCommentService(gdb)
	topic := createTestTopic(t, gdb, "Go")

	owner := createTestUser(t, gdb, "owner")
	other := createTestUser(t, gdb, "other")

	ownPost, err := posts.Create(PostInput{
		Title:   "Owner post",
		Body:    "a body long enough",
		TopicID: topic.ID,
		UserID:  owner.ID,
	}, &Upload{Filename: "notes.txt", Reader: strings.NewReader("attached")})
	if err != nil {
		t.Fatalf("create owner post: %v", err)
	}
	otherPost, err := posts.Create(PostInput{
		Title:   "Other post",
		Body:    "another body here",
		TopicID: topic.ID,
		UserID:  other.ID,
	}, nil)
	if err != nil {
		t.Fatalf("create other post: %v", err)
	}

	mustComment := func(postID, userID uint) {
		t.Helper()
		if _, err := comments.Create(postID, userID, CommentInput{Body: "nice one"}); err != nil {
			t.Fatalf("create comment: %v", err)
		}
	}
	mustComment(ownPost.ID, other.ID)
	mustComment(otherPost.ID, owner.ID)
	mustComment(otherPost.ID, other.ID)

	if err := users.DeleteAccount(owner.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	if _, err := users.Get(owner.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected owner to be gone, got %v", err)
	}
	if _, err := posts.Get(ownPost.ID); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected owner post to be gone, got %v", err)
	}

	remaining, err := comments.ListForPost(otherPost.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(remaining) != 1 || remaining[0].UserID != other.ID {
		t.Fatalf("expected only the other user's comment to remain, got %+v", remaining)
	}

	var orphaned int64
	gdb.Model(&db.Comment{}).Where("post_id = ?", ownPost.ID).Count(&orphaned)
	if orphaned != 0 {
		t.Fatalf("expected no comments on deleted post, got %d", orphaned)
	}

	path, _ := store.Path(ownPost.AttachmentFilename)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected attachment file to be removed, stat err %v", err)
	}

	if _, err := posts.Get(otherPost.ID); err != nil {
		t.Fatalf("other user's post must survive: %v", err)
	}
}

func TestUserService_DeleteMissingAccount(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewUserService(gdb, nil, logging.Nop())

	if err := svc.DeleteAccount(42); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_DuplicateCauseNamesConflictingField(t *testing.T) {
	gdb := setupServiceTestDB(t)
	svc := NewUserService(gdb, nil, logging.Nop())
	createTestUser(t, gdb, "alice")

	tests := []struct {
		name     string
		username string
		email    string
		want     error
	}{
		{name: "username", username: "alice", email: "fresh@example.com", want: ErrUsernameTaken},
		{name: "email", username: "bob", email: "alice@example.com", want: ErrEmailTaken},
		{name: "neither", username: "bob", email: "bob@example.com", want: gorm.ErrDuplicatedKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.duplicateCause(tt.username, tt.email); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
