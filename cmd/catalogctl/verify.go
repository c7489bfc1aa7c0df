package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mazira-designs/api/internal/payments"
)

// lookupFactory builds the price source; tests swap in a fake.
type lookupFactory func(apiKey, account string) (payments.PriceLookup, error)

func stripeLookup(apiKey, account string) (payments.PriceLookup, error) {
	return payments.NewStripePriceVerifier(payments.StripeProviderConfig{APIKey: apiKey, AccountID: account})
}

var errDiscrepancies = errors.New("catalog does not match the Stripe account")

func newVerifyCmd(opts *rootOptions, factory lookupFactory) *cobra.Command {
	if factory == nil {
		factory = stripeLookup
	}
	var (
		account string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every catalog price id against Stripe",
		Long:  "Fetches each price with its product and reports inactive prices, currency mismatches and amounts that differ from the catalog. Reads the key from API_STRIPE_API_KEY.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.load(cmd)
			if err != nil {
				return err
			}
			lookup, err := factory(os.Getenv("API_STRIPE_API_KEY"), account)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			found, err := payments.VerifyCatalog(ctx, c, lookup)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintf(out, "%d catalog entries match\n", len(c.Entries()))
				return nil
			}
			for _, d := range found {
				fmt.Fprintf(out, "%s (%s): %s\n", d.Key, d.PriceID, d.Problem)
			}
			return fmt.Errorf("%w: %d problems", errDiscrepancies, len(found))
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "connected account id to query")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	return cmd
}
