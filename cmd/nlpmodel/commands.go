package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/nlpmodel/internal/config"
	"github.com/kalambet/nlpmodel/internal/model"
	"github.com/kalambet/nlpmodel/internal/sqlgen"
)

// --- user ---

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the user directory",
}

var userShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a user descriptor as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, _ := cmd.Flags().GetBool("summary")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runUserShow(cmd.Context(), client, os.Stdout, args[0], summary)
	},
}

func runUserShow(ctx context.Context, client *apiClient, w io.Writer, id string, summary bool) error {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return fmt.Errorf("invalid user id %q", id)
	}

	if summary {
		resp, err := client.get(ctx, "/users/"+id+"/summary")
		if err != nil {
			return err
		}
		var out struct {
			Summary string `json:"summary"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		fmt.Fprintln(w, out.Summary)
		return nil
	}

	resp, err := client.get(ctx, "/users/"+id)
	if err != nil {
		return err
	}
	var u model.User
	if err := decodeJSON(resp, &u); err != nil {
		return err
	}
	return printJSON(w, u)
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace a user",
	Long: `Add or replace a user descriptor.

Name, email, avatar and property flags that are not given are stored as
absent; passing an empty value (e.g. --email "") stores an empty string.

Examples:
  nlpmodel user add --id 42 --first Jane --last Doe --email jane@example.com
  nlpmodel user add --id 7 --admin --prop team=core --prop plan=pro`,
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := userFromFlags(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runUserAdd(cmd.Context(), client, u)
	},
}

func userFromFlags(cmd *cobra.Command) (model.User, error) {
	flags := cmd.Flags()
	if !flags.Changed("id") {
		return model.User{}, fmt.Errorf("--id is required")
	}
	id, _ := flags.GetInt64("id")

	optString := func(name string) model.Optional[string] {
		if !flags.Changed(name) {
			return model.None[string]()
		}
		v, _ := flags.GetString(name)
		return model.Some(v)
	}

	props := model.None[map[string]string]()
	if flags.Changed("prop") {
		p, _ := flags.GetStringToString("prop")
		props = model.Some(p)
	}

	admin, _ := flags.GetBool("admin")
	signup, _ := flags.GetInt64("signup")
	if !flags.Changed("signup") {
		signup = time.Now().UnixMilli()
	}

	return model.NewUser(id, optString("first"), optString("last"), optString("email"), optString("avatar"),
		props, admin, signup), nil
}

func runUserAdd(ctx context.Context, client *apiClient, u model.User) error {
	resp, err := client.post(ctx, "/users", u)
	if err != nil {
		return err
	}
	var saved model.User
	if err := decodeJSON(resp, &saved); err != nil {
		return err
	}
	printSuccess("Saved user %d", saved.ID())
	return nil
}

var userRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runUserRm(cmd.Context(), client, args[0])
	},
}

func runUserRm(ctx context.Context, client *apiClient, id string) error {
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return fmt.Errorf("invalid user id %q", id)
	}
	resp, err := client.delete(ctx, "/users/"+id)
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}
	printSuccess("Removed user %s", id)
	return nil
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runUserList(cmd.Context(), client, os.Stdout, limit, offset)
	},
}

func runUserList(ctx context.Context, client *apiClient, w io.Writer, limit, offset int) error {
	resp, err := client.get(ctx, fmt.Sprintf("/users?limit=%d&offset=%d", limit, offset))
	if err != nil {
		return err
	}
	var users []model.User
	if err := decodeJSON(resp, &users); err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Fprintln(w, "No users found.")
		return nil
	}

	for _, u := range users {
		name := strings.TrimSpace(u.FirstName().OrElse("") + " " + u.LastName().OrElse(""))
		if name == "" {
			name = "-"
		}
		role := ""
		if u.IsAdmin() {
			role = " [admin]"
		}
		fmt.Fprintf(w, "%s  %s  %s%s\n",
			colorize(colorCyan, strconv.FormatInt(u.ID(), 10)),
			name,
			u.Email().OrElse("-"),
			role,
		)
	}
	return nil
}

func init() {
	userShowCmd.Flags().Bool("summary", false, "print the one-paragraph profile summary instead of JSON")

	userAddCmd.Flags().Int64("id", 0, "user id (required)")
	userAddCmd.Flags().String("first", "", "first name")
	userAddCmd.Flags().String("last", "", "last name")
	userAddCmd.Flags().String("email", "", "email address")
	userAddCmd.Flags().String("avatar", "", "avatar URL")
	userAddCmd.Flags().StringToString("prop", nil, "property as key=value (repeatable)")
	userAddCmd.Flags().Bool("admin", false, "mark the user as an administrator")
	userAddCmd.Flags().Int64("signup", 0, "signup time in epoch milliseconds (default: now)")

	userListCmd.Flags().Int("limit", 20, "maximum number of users to list")
	userListCmd.Flags().Int("offset", 0, "number of users to skip")

	userCmd.AddCommand(userShowCmd)
	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userRmCmd)
	userCmd.AddCommand(userListCmd)
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect compiled schema metadata",
}

var schemaTablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List known tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSchemaTables(cmd.Context(), client, os.Stdout)
	},
}

func runSchemaTables(ctx context.Context, client *apiClient, w io.Writer) error {
	resp, err := client.get(ctx, "/schema/tables")
	if err != nil {
		return err
	}
	var tables []sqlgen.TableView
	if err := decodeJSON(resp, &tables); err != nil {
		return err
	}

	if len(tables) == 0 {
		fmt.Fprintln(w, "No tables found.")
		return nil
	}
	for _, t := range tables {
		fmt.Fprintf(w, "%s  %d columns  %s\n", colorize(colorBold, t.Name), len(t.Columns), formatSorts(t.DefaultSort))
	}
	return nil
}

var schemaDescribeCmd = &cobra.Command{
	Use:   "describe <table>",
	Short: "Show columns and default sort of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSchemaDescribe(cmd.Context(), client, os.Stdout, args[0])
	},
}

func runSchemaDescribe(ctx context.Context, client *apiClient, w io.Writer, table string) error {
	resp, err := client.get(ctx, "/schema/tables/"+url.PathEscape(table))
	if err != nil {
		return err
	}
	var t sqlgen.TableView
	if err := decodeJSON(resp, &t); err != nil {
		return err
	}

	fmt.Fprintln(w, colorize(colorBold, t.Name))
	for _, c := range t.Columns {
		var flags []string
		if c.PrimaryKey {
			flags = append(flags, "primary key")
		}
		if c.Nullable {
			flags = append(flags, "nullable")
		}
		fmt.Fprintf(w, "  %-24s %-12s %s\n", c.Name, c.DataType, strings.Join(flags, ", "))
	}
	fmt.Fprintf(w, "  default sort: %s\n", formatSorts(t.DefaultSort))
	return nil
}

var schemaSortCmd = &cobra.Command{
	Use:   "sort <table> <phrase...>",
	Short: "Resolve a natural-language sort phrase against a table",
	Long: `Resolve a natural-language sort phrase against a table.

Examples:
  nlpmodel schema sort orders newest first
  nlpmodel schema sort orders by total --desc
  nlpmodel schema sort users --subject "signup tstamp" oldest`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		asc, _ := cmd.Flags().GetBool("asc")
		desc, _ := cmd.Flags().GetBool("desc")
		if asc && desc {
			return fmt.Errorf("--asc and --desc are mutually exclusive")
		}

		tok := sqlgen.Token{Text: strings.Join(args[1:], " "), Subject: subject}
		switch {
		case asc:
			tok.Ascending = model.Some(true)
		case desc:
			tok.Ascending = model.Some(false)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runSchemaSort(cmd.Context(), client, os.Stdout, args[0], tok)
	},
}

func runSchemaSort(ctx context.Context, client *apiClient, w io.Writer, table string, tok sqlgen.Token) error {
	resp, err := client.post(ctx, "/schema/tables/"+url.PathEscape(table)+"/sort", tok)
	if err != nil {
		return err
	}
	var s sqlgen.SortView
	if err := decodeJSON(resp, &s); err != nil {
		return err
	}
	fmt.Fprintln(w, formatSorts([]sqlgen.SortView{s}))
	return nil
}

var schemaRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild schema metadata now",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/schema/refresh", nil)
		if err != nil {
			return err
		}
		var result struct {
			Tables int `json:"tables"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Schema refreshed (%d tables)", result.Tables)
		return nil
	},
}

func formatSorts(sorts []sqlgen.SortView) string {
	if len(sorts) == 0 {
		return "-"
	}
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		dir := "asc"
		if !s.Ascending {
			dir = "desc"
		}
		parts[i] = s.Column + " " + dir
	}
	return strings.Join(parts, ", ")
}

func init() {
	schemaSortCmd.Flags().String("subject", "", "column phrase, e.g. \"created at\"")
	schemaSortCmd.Flags().Bool("asc", false, "force ascending order")
	schemaSortCmd.Flags().Bool("desc", false, "force descending order")

	schemaCmd.AddCommand(schemaTablesCmd)
	schemaCmd.AddCommand(schemaDescribeCmd)
	schemaCmd.AddCommand(schemaSortCmd)
	schemaCmd.AddCommand(schemaRefreshCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			src := "($" + k.EnvVar + ")"
			if k.Overridden {
				src = "(from $" + k.EnvVar + ")"
			}
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, src))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so its default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
