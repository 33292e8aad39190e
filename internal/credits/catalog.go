package credits

import (
	"fmt"

	"github.com/roomviz/roomviz-backend/internal/models"
)

// Package is a one-off credit bundle sold through Stripe.
type Package struct {
	PriceID string `yaml:"priceId" json:"priceId"`
	Name    string `yaml:"name" json:"name"`
	Credits int    `yaml:"credits" json:"credits"`
}

// PlanSpec describes a subscription plan.
type PlanSpec struct {
	PriceID        string `yaml:"priceId" json:"priceId"`
	MonthlyCredits int    `yaml:"monthlyCredits" json:"monthlyCredits"`
}

// Catalog maps Stripe price identifiers to credit amounts and plans to their
// monthly allotments. It is immutable after loading.
type Catalog struct {
	packages map[string]Package
	plans    map[models.Plan]PlanSpec
}

// NewCatalog validates and indexes packages and plans.
func NewCatalog(packages []Package, plans map[models.Plan]PlanSpec) (*Catalog, error) {
	c := &Catalog{
		packages: make(map[string]Package, len(packages)),
		plans:    make(map[models.Plan]PlanSpec, len(plans)),
	}
	for _, p := range packages {
		if p.PriceID == "" {
			return nil, fmt.Errorf("credit package %q has no priceId", p.Name)
		}
		if p.Credits <= 0 {
			return nil, fmt.Errorf("credit package %q must grant a positive amount, got %d", p.PriceID, p.Credits)
		}
		if _, dup := c.packages[p.PriceID]; dup {
			return nil, fmt.Errorf("duplicate credit package priceId %q", p.PriceID)
		}
		c.packages[p.PriceID] = p
	}
	for plan, spec := range plans {
		if _, ok := models.ParsePlan(string(plan)); !ok {
			return nil, fmt.Errorf("unknown plan %q in catalog", plan)
		}
		if spec.MonthlyCredits < 0 {
			return nil, fmt.Errorf("plan %q has negative monthlyCredits", plan)
		}
		c.plans[plan] = spec
	}
	return c, nil
}

// Package looks up a credit package by Stripe price id.
func (c *Catalog) Package(priceID string) (Package, bool) {
	p, ok := c.packages[priceID]
	return p, ok
}

// Packages returns all credit packages.
func (c *Catalog) Packages() []Package {
	out := make([]Package, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, p)
	}
	return out
}

// Plan returns the price and allotment configured for plan.
func (c *Catalog) Plan(plan models.Plan) (PlanSpec, bool) {
	spec, ok := c.plans[plan]
	return spec, ok
}

// MonthlyAllotment is the monthly grant for plan; zero for plans not in the
// catalog (free by default).
func (c *Catalog) MonthlyAllotment(plan models.Plan) int {
	return c.plans[plan].MonthlyCredits
}
