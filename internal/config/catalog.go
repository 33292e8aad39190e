package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roomviz/roomviz-backend/internal/credits"
	"github.com/roomviz/roomviz-backend/internal/models"
)

// catalogFile is the on-disk layout of the credit package catalog.
type catalogFile struct {
	Plans    map[string]credits.PlanSpec `yaml:"plans"`
	Packages []credits.Package           `yaml:"packages"`
}

// LoadCatalog reads the plan and credit package catalog from a YAML file.
func LoadCatalog(path string) (*credits.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog document.
func ParseCatalog(data []byte) (*credits.Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	plans := make(map[models.Plan]credits.PlanSpec, len(file.Plans))
	for raw, spec := range file.Plans {
		plan, ok := models.ParsePlan(raw)
		if !ok {
			return nil, fmt.Errorf("unknown plan %q in catalog", raw)
		}
		plans[plan] = spec
	}
	return credits.NewCatalog(file.Packages, plans)
}
