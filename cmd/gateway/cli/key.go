package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/dental-gateway/internal/services"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage tenant API keys",
		Long:    "Create, rotate, revoke and list the API keys tenants use in the X-API-Key header.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyRotateCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyListCmd())

	return cmd
}

// keyView is the printable form of a key. Secret is set only right after
// create or rotate.
type keyView struct {
	ID         string     `json:"id"`
	CompanyID  string     `json:"company_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"key_prefix"`
	Active     bool       `json:"is_active"`
	RateLimit  *int       `json:"rate_limit,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	Secret     string     `json:"secret,omitempty"`
}

func viewOf(k *services.IssuedKey) keyView {
	return keyView{
		ID:         k.Key.ID,
		CompanyID:  k.Key.CompanyID,
		Name:       k.Key.Name,
		Prefix:     k.Key.KeyPrefix,
		Active:     k.Key.IsActive,
		RateLimit:  k.Key.RateLimit,
		CreatedAt:  k.Key.CreatedAt,
		LastUsedAt: k.Key.LastUsedAt,
		Secret:     k.Secret,
	}
}

func printIssued(w io.Writer, title string, v keyView) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  ID:      %s\n", v.ID)
	fmt.Fprintf(w, "  Company: %s\n", v.CompanyID)
	fmt.Fprintf(w, "  Name:    %s\n", v.Name)
	fmt.Fprintf(w, "  Key:     %s\n", v.Secret)
	if v.RateLimit != nil {
		fmt.Fprintf(w, "  Limit:   %d req/min\n", *v.RateLimit)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Save this key now - it cannot be retrieved again.")
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		company    string
		name       string
		rateLimit  int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key for a company",
		Long:  "Generate a new active API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  gateway key create --company acme --name "PACS bridge"
  gateway key create --company acme --name batch --rate-limit 120`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, closeDB, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			var limit *int
			if cmd.Flags().Changed("rate-limit") {
				if rateLimit < 1 {
					return fmt.Errorf("--rate-limit must be >= 1")
				}
				limit = &rateLimit
			}

			svc := &services.KeyService{DB: db}
			issued, err := svc.Create(cmd.Context(), company, name, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, viewOf(issued))
			}
			printIssued(out, "API key created:", viewOf(issued))
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "Owning company id (required)")
	cmd.Flags().StringVar(&name, "name", "", `Human-readable key name (default "Default API Key")`)
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per minute for this key (default: server-wide limit)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("company")

	return cmd
}

// ---------- key rotate ----------

func newKeyRotateCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rotate <key-id>",
		Short: "Replace the secret of an API key",
		Long:  "Generate a new secret for an existing key. The previous secret stops working immediately.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, closeDB, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			svc := &services.KeyService{DB: db}
			issued, err := svc.Rotate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, viewOf(issued))
			}
			printIssued(out, "API key rotated:", viewOf(issued))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Deactivate an API key",
		Long:  "Deactivate an API key. Requests using it are rejected with API_KEY_INACTIVE.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, closeDB, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			svc := &services.KeyService{DB: db}
			if err := svc.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key %s\n", args[0])
			return nil
		},
	}
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		company    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the API keys of a company",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, closeDB, err := openDB(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			svc := &services.KeyService{DB: db}
			keys, err := svc.List(cmd.Context(), company)
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}

			rows := make([]keyView, len(keys))
			for i := range keys {
				rows[i] = viewOf(&services.IssuedKey{Key: keys[i]})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintf(out, "No API keys for %q. Use 'gateway key create' to issue one.\n", company)
				return nil
			}

			fmt.Fprintf(out, "%-36s %-12s %-24s %-8s %-10s\n", "ID", "PREFIX", "NAME", "ACTIVE", "LIMIT")
			fmt.Fprintf(out, "%-36s %-12s %-24s %-8s %-10s\n", "--", "------", "----", "------", "-----")
			for _, k := range rows {
				active := "yes"
				if !k.Active {
					active = "no"
				}
				limit := "default"
				if k.RateLimit != nil {
					limit = strconv.Itoa(*k.RateLimit)
				}
				fmt.Fprintf(out, "%-36s %-12s %-24s %-8s %-10s\n", k.ID, k.Prefix, k.Name, active, limit)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&company, "company", "", "Company id (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("company")

	return cmd
}
