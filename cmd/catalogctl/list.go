package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mazira-designs/api/internal/catalog"
	domain "github.com/mazira-designs/api/internal/domain"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var withIDs bool
	cmd := &cobra.Command{
		Use:   "list [category...]",
		Short: "Print tiers, prices and platforms per category",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.load(cmd)
			if err != nil {
				return err
			}
			specs, err := selectSpecs(c, args)
			if err != nil {
				return err
			}
			return writeSpecs(cmd, specs, withIDs)
		},
	}
	cmd.Flags().BoolVar(&withIDs, "ids", false, "include Stripe price ids")
	return cmd
}

func selectSpecs(c *catalog.Catalog, args []string) ([]catalog.CategorySpec, error) {
	if len(args) == 0 {
		return c.Categories(), nil
	}
	specs := make([]catalog.CategorySpec, 0, len(args))
	for _, arg := range args {
		category, ok := domain.ParseCategory(arg)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", arg)
		}
		spec, err := c.Category(category)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func writeSpecs(cmd *cobra.Command, specs []catalog.CategorySpec, withIDs bool) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for i, spec := range specs {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s (%s)\n", spec.Category.Name(), spec.Category)
		for _, tier := range spec.Tiers {
			if withIDs {
				fmt.Fprintf(tw, "  %s\t%s\t%s\n", tier.Key, catalog.FormatAmount(tier.UnitAmount), tier.PriceID)
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\n", tier.Key, catalog.FormatAmount(tier.UnitAmount))
		}
		if len(spec.Platforms) > 0 {
			names := make([]string, len(spec.Platforms))
			for j, p := range spec.Platforms {
				names[j] = string(p)
			}
			fmt.Fprintf(tw, "  platforms\t%s (free: %s, extra: %s each)\n", strings.Join(names, ", "), spec.DefaultFreePlatform, catalog.FormatAmount(spec.Surcharge))
		}
	}
	return tw.Flush()
}
