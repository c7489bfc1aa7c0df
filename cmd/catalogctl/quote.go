package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mazira-designs/api/internal/catalog"
	"github.com/mazira-designs/api/internal/configurator"
	domain "github.com/mazira-designs/api/internal/domain"
)

type quoteResult struct {
	Items   []domain.PlanLineItem `json:"items"`
	Total   int64                 `json:"total"`
	Skipped []string              `json:"skipped,omitempty"`
}

func newQuoteCmd(opts *rootOptions) *cobra.Command {
	var (
		free   []string
		extra  []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "quote category=tier...",
		Short: "Price a plan the way the plan builder does",
		Example: `  catalogctl quote "social_posts=10 Social Posts" "blog_posts=4 Blog Posts"
  catalogctl quote "social_posts=20 Social Posts" --free social_posts=tiktok --add social_posts=facebook`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.load(cmd)
			if err != nil {
				return err
			}
			selections, err := parseSelections(args, free, extra)
			if err != nil {
				return err
			}
			items, total, skipped, err := configurator.Quote(c, selections)
			if err != nil {
				return err
			}
			result := quoteResult{Items: items, Total: total, Skipped: skipped}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return writeQuote(cmd, result)
		},
	}
	cmd.Flags().StringArrayVar(&free, "free", nil, "category=platform included at no charge")
	cmd.Flags().StringArrayVar(&extra, "add", nil, "category=platform billed as an additional platform")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the quote as JSON")
	return cmd
}

// parseSelections keeps the order categories first appear in, which is the order the summary
// lists them.
func parseSelections(tiers, free, extra []string) ([]configurator.CategoryState, error) {
	var order []domain.Category
	states := make(map[domain.Category]*configurator.CategoryState)
	state := func(raw string) (*configurator.CategoryState, string, error) {
		name, value, ok := strings.Cut(raw, "=")
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			return nil, "", fmt.Errorf("expected category=value, got %q", raw)
		}
		category, ok := domain.ParseCategory(strings.TrimSpace(name))
		if !ok {
			return nil, "", fmt.Errorf("unknown category %q", name)
		}
		if s, ok := states[category]; ok {
			return s, value, nil
		}
		s := &configurator.CategoryState{Category: category}
		states[category] = s
		order = append(order, category)
		return s, value, nil
	}

	for _, raw := range free {
		s, value, err := state(raw)
		if err != nil {
			return nil, err
		}
		s.FreePlatform = domain.Platform(strings.ToLower(value))
	}
	for _, raw := range extra {
		s, value, err := state(raw)
		if err != nil {
			return nil, err
		}
		s.Additional = append(s.Additional, domain.Platform(strings.ToLower(value)))
	}
	for _, raw := range tiers {
		s, value, err := state(raw)
		if err != nil {
			return nil, err
		}
		if s.Tier != "" {
			return nil, fmt.Errorf("%s: more than one tier given", s.Category)
		}
		s.Tier = value
	}

	out := make([]configurator.CategoryState, 0, len(order))
	for _, category := range order {
		out = append(out, *states[category])
	}
	return out, nil
}

func writeQuote(cmd *cobra.Command, result quoteResult) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, item := range result.Items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Name, item.Tier, catalog.FormatAmount(item.Price))
	}
	fmt.Fprintf(tw, "Total\t\t%s/mo\n", catalog.FormatAmount(result.Total))
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, s := range result.Skipped {
		fmt.Fprintln(cmd.ErrOrStderr(), "skipped:", s)
	}
	return nil
}
