package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/westcreek-sd/helpdesk/pkg/client"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hdctl",
	Short: "Helpdesk CLI",
	Long: `hdctl is the command-line interface for the school-division helpdesk.

It covers the public portal (submitting and tracking tickets) and the staff
API (queue management, assignment, statistics).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".hdctl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.hdctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "helpdesk server URL (default http://localhost:8080)")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(ticketsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(staffCmd)
	rootCmd.AddCommand(versionCmd)
}

// newClient builds an SDK client, attaching the saved session token if any.
func newClient() *client.Client {
	opts := []client.Option{}
	if token := savedToken(); token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.MustNew(serverURL, opts...)
}

func savedToken() string {
	if t := os.Getenv("HDCTL_TOKEN"); t != "" {
		return t
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	b, err := os.ReadFile(filepath.Join(home, ".hdctl", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func saveToken(token string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".hdctl")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "token"), []byte(token+"\n"), 0o600)
}

// ── submit ───────────────────────────────────────────────────────────────────

var (
	submitCategory string
	submitName     string
	submitEmail    string
	submitPhone    string
	submitSchool   string
	submitSubject  string
	submitBody     string
	submitDetails  string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a new ticket through the public portal",
	Long: `submit files a new helpdesk ticket.

A captcha is fetched and solved automatically (the portal returns the code
with the challenge). On success the tracking id is printed; keep it together
with the requester email to check on the ticket later:

  hdctl track 20260115-42 --email j.kowalski@westcreeksd.ca`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := context.Background()

		captcha, err := c.GenerateCaptcha(ctx)
		if err != nil {
			return fmt.Errorf("get captcha: %w", err)
		}

		if !json.Valid([]byte(submitDetails)) {
			return fmt.Errorf("--details must be valid JSON")
		}

		result, err := c.SubmitTicket(ctx, client.SubmitTicketRequest{
			Category:       submitCategory,
			RequesterName:  submitName,
			RequesterEmail: submitEmail,
			RequesterPhone: submitPhone,
			School:         submitSchool,
			Subject:        submitSubject,
			Description:    submitBody,
			Details:        json.RawMessage(submitDetails),
			CaptchaID:      captcha.ID,
			CaptchaCode:    captcha.Code,
		})
		if err != nil {
			var throttled *client.ThrottledError
			if errors.As(err, &throttled) {
				return fmt.Errorf("submission limit reached; try again in %d minute(s)", throttled.RetryAfterMinutes)
			}
			return fmt.Errorf("submit ticket: %w", err)
		}

		fmt.Printf("✓ Ticket submitted\n\n")
		fmt.Printf("  Tracking ID: %s\n\n", result.TrackingID)
		fmt.Printf("Check status with:\n  hdctl track %s --email %s\n", result.TrackingID, submitEmail)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitCategory, "category", "troubleshooting", "Category: troubleshooting, account, or document")
	submitCmd.Flags().StringVar(&submitName, "name", "", "Requester full name")
	submitCmd.Flags().StringVar(&submitEmail, "email", "", "Requester email address")
	submitCmd.Flags().StringVar(&submitPhone, "phone", "", "Requester phone number")
	submitCmd.Flags().StringVar(&submitSchool, "school", "", "School name")
	submitCmd.Flags().StringVar(&submitSubject, "subject", "", "Short summary of the issue")
	submitCmd.Flags().StringVar(&submitBody, "description", "", "Full description of the issue")
	submitCmd.Flags().StringVar(&submitDetails, "details", "{}", `Category-specific details as JSON, e.g. '{"device_type":"projector"}'`)

	_ = submitCmd.MarkFlagRequired("name")
	_ = submitCmd.MarkFlagRequired("email")
	_ = submitCmd.MarkFlagRequired("school")
	_ = submitCmd.MarkFlagRequired("subject")
	_ = submitCmd.MarkFlagRequired("description")
}

// ── track ────────────────────────────────────────────────────────────────────

var (
	trackEmail  string
	trackFormat string
)

var trackCmd = &cobra.Command{
	Use:   "track <tracking-id>",
	Short: "Check the public status of a submitted ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		result, err := c.Track(context.Background(), args[0], trackEmail)
		if err != nil {
			if errors.Is(err, client.ErrNotFound) {
				return fmt.Errorf("no ticket matches that tracking id and email")
			}
			return fmt.Errorf("track: %w", err)
		}

		if trackFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		fmt.Printf("Tracking ID: %s\n", result.TrackingID)
		fmt.Printf("Subject:     %s\n", result.Subject)
		fmt.Printf("Category:    %s\n", result.Category)
		fmt.Printf("Status:      %s\n", result.Status)
		fmt.Printf("Priority:    %s\n", result.Priority)
		fmt.Printf("Submitted:   %s\n", result.CreatedAt.Local().Format(time.RFC1123))
		if result.ResolvedAt != nil {
			fmt.Printf("Resolved:    %s\n", result.ResolvedAt.Local().Format(time.RFC1123))
		}
		return nil
	},
}

func init() {
	trackCmd.Flags().StringVar(&trackEmail, "email", "", "Requester email used on the submission")
	trackCmd.Flags().StringVar(&trackFormat, "format", "text", "Output format: text or json")
	_ = trackCmd.MarkFlagRequired("email")
}

// ── login ────────────────────────────────────────────────────────────────────

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate as staff and save the session token",
	Long: `login authenticates with email and password and stores the session
token in ~/.hdctl/token for subsequent staff commands. The password is read
from stdin so it never appears in shell history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("Password: ")
		reader := bufio.NewReader(os.Stdin)
		password, _ := reader.ReadString('\n')
		password = strings.TrimSpace(password)

		c := client.MustNew(serverURL)
		token, err := c.Login(context.Background(), loginEmail, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if err := saveToken(token); err != nil {
			return fmt.Errorf("save token: %w", err)
		}

		fmt.Printf("✓ Logged in as %s\n", loginEmail)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Staff email address")
	_ = loginCmd.MarkFlagRequired("email")
}

// ── tickets ──────────────────────────────────────────────────────────────────

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "Manage the staff ticket queue (requires login)",
}

var (
	listStatus   string
	listCategory string
	listPriority string
	listSearch   string
	listLimit    int
	listFormat   string
)

var ticketsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tickets in the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		tickets, err := c.ListTickets(context.Background(), client.ListOptions{
			Status:   listStatus,
			Category: listCategory,
			Priority: listPriority,
			Search:   listSearch,
			Limit:    listLimit,
		})
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}

		if listFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tickets)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tCATEGORY\tSCHOOL\tSUBJECT")
		for _, t := range tickets {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Status, t.Priority, t.Category, t.School, t.Subject)
		}
		return w.Flush()
	},
}

func init() {
	ticketsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (open, in_progress, resolved, closed)")
	ticketsListCmd.Flags().StringVar(&listCategory, "category", "", "Filter by category")
	ticketsListCmd.Flags().StringVar(&listPriority, "priority", "", "Filter by priority")
	ticketsListCmd.Flags().StringVar(&listSearch, "search", "", "Search subject, requester name, or email")
	ticketsListCmd.Flags().IntVar(&listLimit, "limit", 50, "Maximum tickets to return")
	ticketsListCmd.Flags().StringVar(&listFormat, "format", "text", "Output format: text or json")
}

var ticketsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show the full detail of one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		c := newClient()

		t, err := c.GetTicket(context.Background(), id)
		if err != nil {
			return fmt.Errorf("get ticket: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	},
}

var ticketsEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "Show the audit trail of one ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		c := newClient()

		events, err := c.TicketEvents(context.Background(), id)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tACTION\tACTOR\tDETAIL")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Action, e.Actor, string(e.Detail))
		}
		return w.Flush()
	},
}

var statusNote string

var ticketsStatusCmd = &cobra.Command{
	Use:   "status <id> <new-status>",
	Short: "Move a ticket to a new status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		c := newClient()

		t, err := c.UpdateStatus(context.Background(), id, args[1], statusNote)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}

		fmt.Printf("✓ Ticket %d is now %s\n", t.ID, t.Status)
		return nil
	},
}

func init() {
	ticketsStatusCmd.Flags().StringVar(&statusNote, "note", "", "Optional note recorded in the audit trail")
}

var ticketsAssignCmd = &cobra.Command{
	Use:   "assign <id> <staff-uuid>",
	Short: "Assign a ticket to a staff member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTicketID(args[0])
		if err != nil {
			return err
		}
		c := newClient()

		t, err := c.AssignTicket(context.Background(), id, args[1])
		if err != nil {
			return fmt.Errorf("assign ticket: %w", err)
		}

		fmt.Printf("✓ Ticket %d assigned to %s\n", t.ID, t.AssigneeID)
		return nil
	},
}

func init() {
	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsGetCmd)
	ticketsCmd.AddCommand(ticketsEventsCmd)
	ticketsCmd.AddCommand(ticketsStatusCmd)
	ticketsCmd.AddCommand(ticketsAssignCmd)
}

func parseTicketID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ticket id %q", s)
	}
	return id, nil
}

// ── stats ────────────────────────────────────────────────────────────────────

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the dashboard aggregate snapshot (requires login)",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		stats, err := c.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}

		fmt.Printf("Total tickets:    %d\n", stats.Total)
		fmt.Printf("Created (7 days): %d\n\n", stats.CreatedLast7Days)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "GROUP\tKEY\tCOUNT")
		for k, v := range stats.ByStatus {
			fmt.Fprintf(w, "status\t%s\t%d\n", k, v)
		}
		for k, v := range stats.ByCategory {
			fmt.Fprintf(w, "category\t%s\t%d\n", k, v)
		}
		for k, v := range stats.ByPriority {
			fmt.Fprintf(w, "priority\t%s\t%d\n", k, v)
		}
		return w.Flush()
	},
}

// ── staff ────────────────────────────────────────────────────────────────────

var staffCmd = &cobra.Command{
	Use:   "staff",
	Short: "Manage staff accounts (requires admin login)",
}

var staffListCmd = &cobra.Command{
	Use:   "list",
	Short: "List staff accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		staff, err := c.ListStaff(context.Background())
		if err != nil {
			return fmt.Errorf("list staff: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE")
		for _, u := range staff {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.DisplayName, u.Role)
		}
		return w.Flush()
	},
}

var (
	staffEmail string
	staffName  string
	staffRole  string
)

var staffCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new staff account",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("Password for new account: ")
		reader := bufio.NewReader(os.Stdin)
		password, _ := reader.ReadString('\n')
		password = strings.TrimSpace(password)

		c := newClient()
		u, err := c.CreateStaff(context.Background(), staffEmail, password, staffName, staffRole)
		if err != nil {
			return fmt.Errorf("create staff: %w", err)
		}

		fmt.Printf("✓ Staff account created: %s (%s)\n", u.Email, u.Role)
		return nil
	},
}

func init() {
	staffCreateCmd.Flags().StringVar(&staffEmail, "email", "", "Email address")
	staffCreateCmd.Flags().StringVar(&staffName, "name", "", "Display name")
	staffCreateCmd.Flags().StringVar(&staffRole, "role", "agent", "Role: admin or agent")
	_ = staffCreateCmd.MarkFlagRequired("email")

	staffCmd.AddCommand(staffListCmd)
	staffCmd.AddCommand(staffCreateCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the hdctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hdctl %s\n", version)
	},
}
