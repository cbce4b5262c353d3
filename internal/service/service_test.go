package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/noirblog/internal/db"
	"gorm.io/gorm"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:service-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := db.Open(db.Options{Driver: db.DriverSQLite, DSN: dsn, Silent: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func createTestUser(t *testing.T, gdb *gorm.DB, username string) db.User {
	t.Helper()
	user := db.User{Username: username, Email: username + "@example.com", PasswordHash: "hashed"}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func createTestTopic(t *testing.T, gdb *gorm.DB, name string) db.Topic {
	t.Helper()
	topic := db.Topic{Name: name, Slug: Slugify(name)}
	if err := gdb.Create(&topic).Error; err != nil {
		t.Fatalf("create topic %s: %v", name, err)
	}
	return topic
}
