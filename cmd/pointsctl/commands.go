package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/recognition-engine/api"
	"github.com/warp/recognition-engine/budget"
	"github.com/warp/recognition-engine/config"
	"github.com/warp/recognition-engine/factory"
	"github.com/warp/recognition-engine/identity"
	"github.com/warp/recognition-engine/points"
)

func distributeCmd(env func() string) *cobra.Command {
	var org string
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Refill allocation pools now",
		Long: `Sets every member's allocation pool to their role's monthly points.
Without --org every organization is refilled; one failing organization
does not stop the others.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, env())
			if err != nil {
				return err
			}
			defer s.Close()

			var results []budget.DistributionResult
			if org != "" {
				o, err := s.svc.Store.GetOrganizationBySlug(ctx, org)
				if err != nil {
					return err
				}
				res, err := s.svc.Budget.DistributeMonthlyPoints(ctx, o.ID)
				if err != nil {
					return err
				}
				results = append(results, res)
			} else {
				ds, err := api.NewDistributionScheduler(s.svc, s.cfg.DistributionCron, nil, s.log)
				if err != nil {
					return err
				}
				defer ds.Stop()
				results, err = ds.RunOnce(ctx)
				printDistribution(results)
				return err
			}
			printDistribution(results)
			return nil
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "Organization slug (default all)")
	return cmd
}

func printDistribution(results []budget.DistributionResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORGANIZATION\tUPDATED\tSKIPPED")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%d\t%d\n", r.OrganizationID, r.UsersUpdated, r.UsersSkipped)
	}
	w.Flush()
}

func balanceCmd(env func() string) *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Show a wallet and its recent history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, env())
			if err != nil {
				return err
			}
			defer s.Close()

			user := points.UserID(args[0])
			b, err := s.svc.Ledger.GetBalance(ctx, user)
			if err != nil {
				return err
			}
			fmt.Printf("User:        %s\n", user)
			fmt.Printf("Allocation:  %d\n", b.Allocation)
			fmt.Printf("Personal:    %d\n", b.Personal)
			fmt.Printf("Total:       %d\n", b.Total())

			if history == 0 {
				return nil
			}
			txs, err := s.svc.Ledger.History(ctx, user, history)
			if err != nil {
				return err
			}
			fmt.Println()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tPOOL\tTYPE\tDELTA\tAFTER\tREASON")
			for _, tx := range txs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%+d\t%d\t%s\n",
					tx.CreatedAt.Format(time.DateTime), tx.Pool, tx.Type, tx.Delta, tx.BalanceAfter, tx.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&history, "history", "n", 10, "Transactions to show (0 for none)")
	return cmd
}

func budgetCmd(env func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "budget <org-slug>",
		Short: "Project yearly allocation spend against the budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, env())
			if err != nil {
				return err
			}
			defer s.Close()

			org, err := s.svc.Store.GetOrganizationBySlug(ctx, args[0])
			if err != nil {
				return err
			}
			d, err := s.svc.Budget.GetPointsDistributionByRole(ctx, org.ID)
			if err != nil {
				return err
			}

			fmt.Printf("%s (%s)\n", org.Name, org.Slug)
			fmt.Println(strings.Repeat("=", 40))
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROLE\tPER MONTH\tMAX PER RECOGNITION")
			for _, rd := range d.Distributions {
				fmt.Fprintf(w, "%s\t%d\t%d\n", rd.Role, rd.MonthlyAllocation, rd.MaxPointsPerRecognition)
			}
			w.Flush()
			fmt.Printf("\nUsers:            %d\n", d.UserCount)
			fmt.Printf("Yearly budget:    %s\n", d.YearlyBudget.StringFixed(2))
			fmt.Printf("Remaining budget: %s\n", d.RemainingBudget.StringFixed(2))
			if d.RemainingBudget.IsNegative() {
				fmt.Println("\nWARNING: projected allocations exceed the yearly budget")
			}
			return nil
		},
	}
}

func seedCmd(env func() string) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Apply a YAML or JSON seed document",
		Long: `Creates organizations, budget configuration, catalog entries,
achievements and users from a seed document. See factory/seed.go for
the schema. Applying the same file twice creates catalog entries twice.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			seed, err := factory.ParseSeed(data)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Printf("%s: %d organization(s), valid\n", args[0], len(seed.Organizations))
				return nil
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, env())
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.svc.Seeds.Apply(ctx, seed)
			if err != nil {
				return err
			}
			for _, o := range res.Organizations {
				fmt.Printf("organization  %s  %s\n", o.Slug, o.ID)
			}
			fmt.Printf("rewards: %d  achievements: %d  users: %d\n", res.Rewards, res.Achievements, len(res.Users))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate only")
	return cmd
}

func tokenCmd(env func() string) *cobra.Command {
	var (
		sub, org, dept, email string
		roles                 []string
		ttl                   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with JWT_SECRET",
		Long: `Prints a bearer token the server accepts. Intended for local
development and smoke tests; production tokens come from the identity
provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sub == "" || org == "" {
				return errors.New("--sub and --org are required")
			}
			cfg, err := config.Load(env())
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			groups := []string{"/" + org}
			if dept != "" {
				groups = append(groups, "/"+org+"/"+dept)
			}
			v := identity.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer)
			tok, err := v.Sign(identity.Claims{
				Subject:    sub,
				Email:      email,
				Groups:     groups,
				RealmRoles: roles,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "Subject (user id)")
	cmd.Flags().StringVar(&org, "org", "", "Organization name")
	cmd.Flags().StringVar(&dept, "dept", "", "Department")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"employee"}, "Realm roles")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
