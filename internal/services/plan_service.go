package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mazira-designs/api/internal/catalog"
	"github.com/mazira-designs/api/internal/configurator"
	domain "github.com/mazira-designs/api/internal/domain"
)

var (
	// ErrPlanInvalidInput indicates an unknown category or action.
	ErrPlanInvalidInput = errors.New("plan: invalid input")
	// ErrPlanNotFound indicates the requested category is not in the catalog.
	ErrPlanNotFound = errors.New("plan: not found")
)

// PlanServiceDeps wires the dependencies required by the plan service.
type PlanServiceDeps struct {
	Catalog *catalog.Catalog
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type planService struct {
	catalog *catalog.Catalog
	views   []CategoryView
	logger  func(ctx context.Context, event string, fields map[string]any)
}

var _ PlanService = (*planService)(nil)

// NewPlanService constructs a PlanService over an immutable catalog.
func NewPlanService(deps PlanServiceDeps) (PlanService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("plan service: catalog is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	svc := &planService{catalog: deps.Catalog, logger: logger}
	for _, spec := range deps.Catalog.Categories() {
		svc.views = append(svc.views, svc.categoryView(spec))
	}
	return svc, nil
}

func (s *planService) Catalog(context.Context) []CategoryView {
	out := make([]CategoryView, len(s.views))
	copy(out, s.views)
	return out
}

func (s *planService) Category(_ context.Context, category Category) (CategoryView, error) {
	for _, view := range s.views {
		if view.Category == category {
			return view, nil
		}
	}
	return CategoryView{}, ErrPlanNotFound
}

func (s *planService) Evaluate(ctx context.Context, state PlanState) (PlanView, error) {
	plan, skipped, err := s.restore(ctx, state)
	if err != nil {
		return PlanView{}, err
	}
	return s.view(plan, skipped, false), nil
}

// Apply replays state, runs the operation and returns the resulting plan. Operations the
// selector ignores leave the plan unchanged and report Changed=false.
func (s *planService) Apply(ctx context.Context, state PlanState, op PlanOperation) (PlanView, error) {
	plan, skipped, err := s.restore(ctx, state)
	if err != nil {
		return PlanView{}, err
	}

	if op.Action == PlanActionClear {
		plan.Clear()
		return s.view(plan, nil, true), nil
	}

	sel, ok := plan.Selector(op.Category)
	if !ok {
		return PlanView{}, fmt.Errorf("%w: unknown category %q", ErrPlanInvalidInput, op.Category)
	}
	value := strings.TrimSpace(op.Value)

	var changed bool
	switch op.Action {
	case PlanActionSelectTier:
		changed = sel.SelectTier(value)
	case PlanActionToggleTier:
		switch op.Category {
		case domain.CategoryInstagramStories:
			changed = plan.Instagram().ToggleStories(value)
		case domain.CategoryInstagramCarousels:
			changed = plan.Instagram().ToggleCarousels(value)
		default:
			return PlanView{}, fmt.Errorf("%w: %s does not toggle", ErrPlanInvalidInput, op.Category)
		}
	case PlanActionDefaultTier:
		changed = sel.SelectDefaultTier()
	case PlanActionClearTier:
		changed = sel.Selection() != nil
		sel.ClearTier()
	case PlanActionFreePlatform, PlanActionTogglePlatform:
		if op.Category.Kind() != domain.KindPlatform {
			return PlanView{}, fmt.Errorf("%w: %s has no platforms", ErrPlanInvalidInput, op.Category)
		}
		platform, ok := domain.ParsePlatform(value)
		if !ok {
			break
		}
		if op.Action == PlanActionFreePlatform {
			changed = sel.SelectFreePlatform(platform)
		} else {
			changed = sel.ToggleAdditionalPlatform(platform, op.Checked)
		}
	default:
		return PlanView{}, fmt.Errorf("%w: unknown action %q", ErrPlanInvalidInput, op.Action)
	}

	if !changed {
		s.logger(ctx, "plan.operation.ignored", map[string]any{
			"action":   string(op.Action),
			"category": string(op.Category),
			"value":    value,
		})
	}
	return s.view(plan, skipped, changed), nil
}

func (s *planService) Quote(ctx context.Context, selections []CategoryState) (PlanView, error) {
	items, total, skipped, err := configurator.Quote(s.catalog, selections)
	if err != nil {
		return PlanView{}, err
	}
	if len(skipped) > 0 {
		s.logger(ctx, "plan.quote.skipped", map[string]any{"skipped": skipped})
	}
	return PlanView{
		State:     PlanState{Selections: selections},
		LineItems: items,
		Total:     total,
		Currency:  s.catalog.Currency(),
		Skipped:   skipped,
	}, nil
}

func (s *planService) restore(ctx context.Context, state PlanState) (*configurator.Plan, []string, error) {
	plan, err := configurator.NewPlan(s.catalog)
	if err != nil {
		return nil, nil, err
	}
	skipped := plan.Restore(state)
	if len(skipped) > 0 {
		s.logger(ctx, "plan.restore.skipped", map[string]any{"skipped": skipped})
	}
	return plan, skipped, nil
}

func (s *planService) view(plan *configurator.Plan, skipped []string, changed bool) PlanView {
	return PlanView{
		State:     plan.Snapshot(),
		LineItems: plan.LineItems(),
		Total:     plan.Total(),
		Currency:  s.catalog.Currency(),
		Skipped:   skipped,
		Changed:   changed,
	}
}

func (s *planService) categoryView(spec catalog.CategorySpec) CategoryView {
	view := CategoryView{
		Category:            spec.Category,
		Name:                spec.Category.Name(),
		Kind:                string(spec.Category.Kind()),
		Unit:                spec.Unit,
		DefaultFreePlatform: spec.DefaultFreePlatform,
		Surcharge:           spec.Surcharge,
	}
	for i, tier := range spec.Tiers {
		view.Tiers = append(view.Tiers, TierView{
			Key:          tier.Key,
			PriceID:      tier.PriceID,
			Label:        tier.Label,
			DisplayLabel: tier.DisplayLabel(),
			Quantity:     tier.Quantity,
			UnitPrice:    tier.UnitAmount,
			Default:      i == 0,
		})
	}
	for _, platform := range spec.Platforms {
		pv := PlatformView{Platform: platform, Name: platform.DisplayName()}
		if entry, err := s.catalog.PlatformEntry(spec.Category, platform, true); err == nil {
			pv.FreeKey = entry.Key
		}
		if entry, err := s.catalog.PlatformEntry(spec.Category, platform, false); err == nil {
			pv.AddKey = entry.Key
			pv.AddPriceID = entry.PriceID
		}
		view.Platforms = append(view.Platforms, pv)
	}
	return view
}
