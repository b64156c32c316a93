package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/guardgate/portal/config"
	"github.com/guardgate/portal/internal/bootstrap"
	"github.com/guardgate/portal/internal/data"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
}

const defaultMigrationTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmdName)
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"create-user": {
			name:        "create-user",
			description: "Provision an internal user account",
			run:         runCreateUser,
		},
		"set-password": {
			name:        "set-password",
			description: "Rotate an internal user's password",
			run:         runSetPassword,
		},
		"list-users": {
			name:        "list-users",
			description: "List internal user accounts",
			run:         runListUsers,
		},
		"list-workflows": {
			name:        "list-workflows",
			description: "List configured portal workflows",
			run:         runListWorkflows,
		},
		"delete-session": {
			name:        "delete-session",
			description: "Delete a portal session from the session store",
			run:         runDeleteSession,
		},
	}
}

func printUsage() {
	fmt.Println("Usage: portal-admin <command> [flags]")
	fmt.Println()
	fmt.Println("Available commands:")
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-16s %s\n", name, cmds[name].description)
	}
}

func withDB(cmdCtx *commandContext, fn func(users *data.UserRepo, workflows *data.WorkflowRepo) error) error {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cmdCtx.Config.Postgres,
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()
	return fn(data.NewUserRepo(db), data.NewWorkflowRepo(db))
}

func runMigrations(cmdCtx *commandContext, _ []string) error {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cmdCtx.Config.Postgres,
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Error("close database failed", "error", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultMigrationTimeout)
	defer cancel()
	return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
}

func runCreateUser(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	login := fs.String("login", "", "account login (required)")
	password := fs.String("password", "", "account password (required)")
	email := fs.String("email", "", "contact email for one-time keys")
	phone := fs.String("phone", "", "contact phone for one-time keys")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *login == "" || *password == "" {
		return fmt.Errorf("create-user requires -login and -password")
	}

	return withDB(cmdCtx, func(users *data.UserRepo, _ *data.WorkflowRepo) error {
		user, err := users.Create(cmdCtx.Ctx, data.CreateUserRequest{
			Login:    *login,
			Password: *password,
			Email:    *email,
			Phone:    *phone,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created user %s (%s)\n", user.Login, user.ID)
		return nil
	})
}

func runSetPassword(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("set-password", flag.ContinueOnError)
	login := fs.String("login", "", "account login (required)")
	password := fs.String("password", "", "new password (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *login == "" || *password == "" {
		return fmt.Errorf("set-password requires -login and -password")
	}

	return withDB(cmdCtx, func(users *data.UserRepo, _ *data.WorkflowRepo) error {
		if err := users.SetPassword(cmdCtx.Ctx, *login, *password); err != nil {
			return err
		}
		fmt.Printf("password updated for %s\n", *login)
		return nil
	})
}

func runListUsers(cmdCtx *commandContext, _ []string) error {
	return withDB(cmdCtx, func(users *data.UserRepo, _ *data.WorkflowRepo) error {
		list, err := users.List(cmdCtx.Ctx, 0, 0)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "LOGIN\tEMAIL\tLOCKED\tCREATED")
		for _, u := range list {
			email := ""
			if u.Email != nil {
				email = *u.Email
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\n",
				u.Login, email, u.Locked, u.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	})
}

func runListWorkflows(cmdCtx *commandContext, _ []string) error {
	return withDB(cmdCtx, func(_ *data.UserRepo, workflows *data.WorkflowRepo) error {
		list, err := workflows.List(cmdCtx.Ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tAUTH\tTYPE\tBACKENDS")
		for _, wf := range list {
			authType, backendCount := "-", 0
			if wf.RequiresAuthentication() {
				authType = string(wf.Authentication.AuthType)
				backendCount = len(wf.BackendIDs())
			}
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%d\n",
				wf.ID, wf.Name, wf.RequiresAuthentication(), authType, backendCount)
		}
		return w.Flush()
	})
}

func runDeleteSession(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("delete-session", flag.ContinueOnError)
	cookie := fs.String("cookie", "", "portal session cookie value (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*cookie) == "" {
		return fmt.Errorf("delete-session requires -cookie")
	}

	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		DBConfig:    cmdCtx.Config.Postgres,
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Error("close redis failed", "error", cerr)
		}
	}()

	deleted, err := client.Del(cmdCtx.Ctx, "portal_"+*cookie).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	fmt.Printf("deleted %d session(s)\n", deleted)
	return nil
}
