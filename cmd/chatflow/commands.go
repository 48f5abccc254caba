package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ex-chatflow/internal/filter"
	"ex-chatflow/pkg/chatflow"
	"ex-chatflow/pkg/stream"
)

// newRootCommand constructs the chatflow command tree.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatflow",
		Short:         "Local chat history, profiles and settings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to a TOML config file")
	root.PersistentFlags().String("data-dir", "", "Override the Pebble data directory")
	root.PersistentFlags().String("log-level", "", "Override the log level (debug, info, warn, error)")

	root.AddCommand(
		newAppendCommand(),
		newRecentCommand(),
		newTraceCommand(),
		newProfileCommand(),
		newSettingCommand(),
	)

	return root
}

// withApp loads configuration, applies flag overrides and runs fn against a
// started app. The app is shut down before withApp returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, application *app) error) (err error) {
	configPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	logLevel, _ := cmd.Flags().GetString("log-level")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dataDir = strings.TrimSpace(dataDir); dataDir != "" {
		cfg.dataDir = dataDir
	}
	if strings.TrimSpace(logLevel) != "" {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return fmt.Errorf("parse --log-level: %w", err)
		}
		cfg.logLevel = level
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	application, err := openApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := application.Close(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(ctx, application)
}

func newAppendCommand() *cobra.Command {
	appendCmd := &cobra.Command{
		Use:   "append",
		Short: "Append one interaction and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			profileID, _ := cmd.Flags().GetString("profile")
			contextID, _ := cmd.Flags().GetString("context")
			kind, _ := cmd.Flags().GetString("kind")
			role, _ := cmd.Flags().GetString("role")
			content, _ := cmd.Flags().GetString("content")
			rawAt, _ := cmd.Flags().GetString("at")

			createdAt, err := parseTimeFlag(rawAt, "--at")
			if err != nil {
				return err
			}

			if role == "" && chatflow.Kind(kind) == chatflow.KindChat {
				role = string(chatflow.RoleUser)
			}

			return withApp(cmd, func(ctx context.Context, application *app) error {
				appended, err := application.chats.Append(ctx, chatflow.Interaction{
					ID:        id,
					Kind:      chatflow.Kind(kind),
					ContextID: contextID,
					ProfileID: profileID,
					Role:      chatflow.Role(role),
					Content:   content,
					CreatedAt: createdAt,
				})
				if err != nil {
					return err
				}

				return writeJSONLine(cmd.OutOrStdout(), appended)
			})
		},
	}
	appendCmd.Flags().String("id", "", "Interaction ID (generated when empty)")
	appendCmd.Flags().String("profile", "", "Profile ID")
	appendCmd.Flags().String("context", "", "Containing context ID")
	appendCmd.Flags().String("kind", string(chatflow.KindChat), "Kind: chat, context or root")
	appendCmd.Flags().String("role", "", "Author role for chat turns (user when empty)")
	appendCmd.Flags().String("content", "", "Turn text or container title")
	appendCmd.Flags().String("at", "", "Creation time as RFC3339 (now when empty)")

	return appendCmd
}

func newRecentCommand() *cobra.Command {
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Print interactions newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			contextID, _ := cmd.Flags().GetString("context")
			rawBefore, _ := cmd.Flags().GetString("before")
			limit, _ := cmd.Flags().GetInt("limit")
			expr, _ := cmd.Flags().GetString("filter")

			before, err := parseTimeFlag(rawBefore, "--before")
			if err != nil {
				return err
			}
			predicate, err := filter.Compile(expr)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, application *app) error {
				items := application.chats.Recent(contextID, before)
				return printStream(ctx, cmd.OutOrStdout(), items, predicate, limit)
			})
		},
	}
	recentCmd.Flags().String("context", "", "Only list children of this context")
	recentCmd.Flags().String("before", "", "Start strictly before this RFC3339 time")
	recentCmd.Flags().Int("limit", 20, "Maximum interactions to print (0 for all)")
	recentCmd.Flags().String("filter", "", "CEL expression selecting interactions")

	return recentCmd
}

func newTraceCommand() *cobra.Command {
	traceCmd := &cobra.Command{
		Use:   "trace <id>",
		Short: "Print the history leading up to one interaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			expr, _ := cmd.Flags().GetString("filter")

			predicate, err := filter.Compile(expr)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, application *app) error {
				items, err := application.chats.TraceBack(ctx, args[0])
				if err != nil {
					return err
				}

				return printStream(ctx, cmd.OutOrStdout(), items, predicate, limit)
			})
		},
	}
	traceCmd.Flags().Int("limit", 0, "Maximum interactions to print (0 for all)")
	traceCmd.Flags().String("filter", "", "CEL expression selecting interactions")

	return traceCmd
}

func newProfileCommand() *cobra.Command {
	profileCmd := &cobra.Command{Use: "profile", Short: "Profile operations"}

	getCmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print one profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app) error {
				profile, found, err := application.profiles.Profile(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("profile %s: %w", args[0], chatflow.ErrNotFound)
				}

				return writeJSONLine(cmd.OutOrStdout(), profile)
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Create a profile or change the given fields of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apply := func(profile chatflow.Profile) chatflow.Profile {
				if cmd.Flags().Changed("name") {
					profile.Name, _ = cmd.Flags().GetString("name")
				}
				if cmd.Flags().Changed("model") {
					profile.Model, _ = cmd.Flags().GetString("model")
				}
				if cmd.Flags().Changed("system-prompt") {
					profile.SystemPrompt, _ = cmd.Flags().GetString("system-prompt")
				}
				return profile
			}

			return withApp(cmd, func(ctx context.Context, application *app) error {
				_, found, err := application.profiles.Profile(ctx, args[0])
				if err != nil {
					return err
				}

				var saved chatflow.Profile
				if found {
					saved, err = application.profiles.Update(ctx, args[0], func(current chatflow.Profile) (chatflow.Profile, error) {
						return apply(current), nil
					})
				} else {
					saved, err = application.profiles.Save(ctx, apply(chatflow.Profile{ID: args[0]}))
				}
				if err != nil {
					return err
				}

				return writeJSONLine(cmd.OutOrStdout(), saved)
			})
		},
	}
	setCmd.Flags().String("name", "", "Display name")
	setCmd.Flags().String("model", "", "Backing model")
	setCmd.Flags().String("system-prompt", "", "System prompt")

	profileCmd.AddCommand(getCmd, setCmd)

	return profileCmd
}

type settingLine struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func newSettingCommand() *cobra.Command {
	settingCmd := &cobra.Command{Use: "setting", Short: "Setting operations"}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app) error {
				value, found, err := application.settings.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("setting %s: %w", args[0], chatflow.ErrNotFound)
				}

				return writeJSONLine(cmd.OutOrStdout(), settingLine{Key: args[0], Value: value})
			})
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, application *app) error {
				if err := application.settings.Set(ctx, args[0], args[1]); err != nil {
					return err
				}

				return writeJSONLine(cmd.OutOrStdout(), settingLine{Key: args[0], Value: args[1]})
			})
		},
	}

	settingCmd.AddCommand(getCmd, setCmd)

	return settingCmd
}

// printStream writes the items of src accepted by predicate as JSON lines,
// stopping after limit items when limit is positive.
func printStream(
	ctx context.Context,
	out io.Writer,
	src *stream.Stream[chatflow.Interaction],
	predicate filter.Predicate,
	limit int,
) error {
	items := src
	if predicate.Enabled() {
		items = stream.Filter(src, predicate.Match)
	}
	defer func() {
		_ = items.Close()
	}()

	printed := 0
	for item, err := range items.All(ctx) {
		if err != nil {
			return err
		}
		if err := writeJSONLine(out, item); err != nil {
			return err
		}
		printed++
		if limit > 0 && printed >= limit {
			break
		}
	}

	return nil
}

// parseTimeFlag parses an optional RFC3339 flag value. Empty yields the zero time.
func parseTimeFlag(raw string, flag string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s; expected RFC3339: %w", flag, err)
	}

	return parsed, nil
}

func writeJSONLine(out io.Writer, value any) error {
	if err := json.NewEncoder(out).Encode(value); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}
