package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anooppandey17/virtual-teacher/internal/app"
	"github.com/anooppandey17/virtual-teacher/internal/auth"
	"github.com/anooppandey17/virtual-teacher/internal/config"
	"github.com/anooppandey17/virtual-teacher/internal/database"
	"github.com/anooppandey17/virtual-teacher/internal/model"
	"github.com/anooppandey17/virtual-teacher/internal/repository"
)

// NewRootCmd creates the root command. Without a subcommand it serves the API.
func NewRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "virtual-teacher",
		Short: "Virtual Teacher - conversational tutoring backend",
		Long: `Virtual Teacher serves the conversation API used by learners, teachers,
parents and admins, relaying learner questions to an LLM tutor.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			cfg = loaded
			app.SetupLogger(cfg.LogLevel)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, cfg)
		},
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, cfg)
		},
	})
	rootCmd.AddCommand(newTokenCmd(func() *config.Config { return cfg }))
	rootCmd.AddCommand(newLinkLearnerCmd(func() *config.Config { return cfg }))

	return rootCmd
}

func serve(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx, cfg)
}

// newTokenCmd mints a bearer token for local development.
func newTokenCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		Long: `Issue a signed bearer token for a user, using JWT_SECRET.
Example: virtual-teacher token --user=learner-1 --role=learner --grade=4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			roleName, _ := cmd.Flags().GetString("role")
			grade, _ := cmd.Flags().GetString("grade")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			role, ok := model.ParseRole(roleName)
			if !ok {
				return fmt.Errorf("unknown role %q", roleName)
			}
			issuer, err := auth.NewIssuer(cfg().JWTSecret)
			if err != nil {
				return fmt.Errorf("JWT_SECRET must be set: %w", err)
			}
			token, err := issuer.Issue(model.User{ID: userID, Role: role, Grade: grade}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("user", "", "User id placed in the token subject")
	cmd.Flags().String("role", "learner", "One of admin, teacher, parent, learner")
	cmd.Flags().String("grade", "", "Learner grade level")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// newLinkLearnerCmd records which teacher and parent may view a learner's
// conversations.
func newLinkLearnerCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link-learner",
		Short: "Link a learner to a teacher and/or parent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			learnerID, _ := cmd.Flags().GetString("learner")
			teacherID, _ := cmd.Flags().GetString("teacher")
			parentID, _ := cmd.Flags().GetString("parent")
			if teacherID == "" && parentID == "" {
				return errors.New("at least one of --teacher or --parent is required")
			}

			db, err := database.InitDB(cfg().DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			profile := &model.LearnerProfile{LearnerID: learnerID}
			if teacherID != "" {
				profile.TeacherID = &teacherID
			}
			if parentID != "" {
				profile.ParentID = &parentID
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := repository.NewSQLiteRepository(db).UpsertLearnerProfile(ctx, profile); err != nil {
				return fmt.Errorf("failed to link learner: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "linked learner %s\n", learnerID)
			return nil
		},
	}

	cmd.Flags().String("learner", "", "Learner user id")
	cmd.Flags().String("teacher", "", "Teacher user id")
	cmd.Flags().String("parent", "", "Parent user id")
	_ = cmd.MarkFlagRequired("learner")

	return cmd
}
