package main

import (
	"errors"
	"fmt"

	"github.com/noirblog/internal/db"
	"github.com/noirblog/internal/service"
	"github.com/spf13/cobra"
)

var initDBCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Create or upgrade the database schema",
	Args:  cobra.NoArgs,
	RunE:  initDB,
}

var seedTopicsCmd = &cobra.Command{
	Use:   "seed-topics",
	Short: "Insert the default topics that are missing",
	Args:  cobra.NoArgs,
	RunE:  seedTopics,
}

var createUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create an account",
	Args:  cobra.NoArgs,
	RunE:  createUser,
}

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Populate an empty database with a demo account and sample posts",
	Args:  cobra.NoArgs,
	RunE:  seedDemo,
}

var (
	newUsername string
	newEmail    string
	newPassword string
)

func init() {
	RootCmd.AddCommand(initDBCmd)
	RootCmd.AddCommand(seedTopicsCmd)
	RootCmd.AddCommand(createUserCmd)
	RootCmd.AddCommand(seedDemoCmd)

	createUserCmd.Flags().StringVar(&newUsername, "username", "", "login name")
	createUserCmd.Flags().StringVar(&newEmail, "email", "", "email address")
	createUserCmd.Flags().StringVar(&newPassword, "password", "", "initial password")
	_ = createUserCmd.MarkFlagRequired("username")
	_ = createUserCmd.MarkFlagRequired("email")
	_ = createUserCmd.MarkFlagRequired("password")
}

func initDB(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	fmt.Fprintf(cmd.OutOrStdout(), "schema ready (%s)\n", env.cfg.DatabaseDriver)
	return nil
}

func seedTopics(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	created, err := service.NewTopicService(env.db).Seed(service.DefaultTopics)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created %d topics\n", created)
	return nil
}

func createUser(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	user, err := service.NewUserService(env.db, nil, env.logger).Register(service.RegisterInput{
		Username: newUsername,
		Email:    newEmail,
		Password: newPassword,
		Confirm:  newPassword,
	})
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			for _, msg := range verr.Messages() {
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
			}
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
	return nil
}

type demoPost struct {
	Topic string
	Title string
	Body  string
}

var demoPosts = []demoPost{
	{Topic: "general", Title: "Hello, Noir Blog", Body: "# Welcome\n\nThis is the first post on a fresh install. Edit or delete it once you have written your own."},
	{Topic: "engineering", Title: "Shipping with a single binary", Body: "Static binaries make deployments boring:\n\n1. build\n2. copy\n3. restart"},
	{Topic: "field-notes", Title: "Markdown cheat sheet", Body: "| syntax | result |\n|---|---|\n| `**bold**` | **bold** |\n| `_italic_` | _italic_ |"},
}

// seedDemo 仅在没有任何文章时写入示例数据，可重复执行。
func seedDemo(cmd *cobra.Command, args []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	var count int64
	if err := env.db.Model(&db.Post{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "posts already exist, skipping demo data")
		return nil
	}

	topics := service.NewTopicService(env.db)
	if _, err := topics.Seed(service.DefaultTopics); err != nil {
		return err
	}

	users := service.NewUserService(env.db, nil, env.logger)
	demo, err := users.GetByUsername("demo")
	if errors.Is(err, service.ErrUserNotFound) {
		demo, err = users.Register(service.RegisterInput{
			Username: "demo",
			Email:    "demo@example.com",
			Password: "demo1234",
			Confirm:  "demo1234",
			Bio:      "Sample account created by blogctl seed-demo.",
		})
	}
	if err != nil {
		return err
	}

	files := service.NewAttachmentStore(env.cfg.UploadDir, env.logger)
	posts := service.NewPostService(env.db, files, env.logger)
	for _, sample := range demoPosts {
		topic, err := topics.GetBySlug(sample.Topic)
		if err != nil {
			return fmt.Errorf("topic %s: %w", sample.Topic, err)
		}
		if _, err := posts.Create(service.PostInput{
			Title:   sample.Title,
			Body:    sample.Body,
			TopicID: topic.ID,
			UserID:  demo.ID,
		}, nil); err != nil {
			return fmt.Errorf("create %q: %w", sample.Title, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created demo user %s (password demo1234) and %d posts\n", demo.Username, len(demoPosts))
	return nil
}
