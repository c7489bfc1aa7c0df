// Command catalogctl inspects the storefront price list: it prints the tiers, prices a plan the
// way the plan builder would and checks every price id against the live Stripe account.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mazira-designs/api/internal/catalog"
)

var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	catalogFile string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Inspect and verify the Mazira Designs price catalog",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.catalogFile, "catalog", os.Getenv("API_CATALOG_FILE"), "YAML catalog to load instead of the embedded one")

	root.AddCommand(newListCmd(opts))
	root.AddCommand(newQuoteCmd(opts))
	root.AddCommand(newVerifyCmd(opts, nil))
	return root
}

func (o *rootOptions) load(cmd *cobra.Command) (*catalog.Catalog, error) {
	var (
		c   *catalog.Catalog
		err error
	)
	if o.catalogFile != "" {
		c, err = catalog.LoadFile(o.catalogFile)
	} else {
		c, err = catalog.Default()
	}
	if err != nil {
		return nil, err
	}
	for _, w := range c.Warnings() {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	return c, nil
}
