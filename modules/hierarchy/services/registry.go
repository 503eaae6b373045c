package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
)

// FieldSource loads the definitions of one axis.
type FieldSource interface {
	ListCustomFields(ctx context.Context) ([]domain.CustomFieldDefinition, error)
}

type FieldRegistry struct {
	axis     domain.Axis
	source   FieldSource
	cache    FieldCache
	resolver OptionsResolver
	validate *validator.Validate
}

type RegistryOption func(*FieldRegistry)

func WithFieldCache(c FieldCache) RegistryOption {
	return func(r *FieldRegistry) { r.cache = c }
}

func WithOptionsResolver(res OptionsResolver) RegistryOption {
	return func(r *FieldRegistry) { r.resolver = res }
}

func NewFieldRegistry(axis domain.Axis, source FieldSource, opts ...RegistryOption) *FieldRegistry {
	r := &FieldRegistry{
		axis:     axis,
		source:   source,
		cache:    NewMemoryFieldCache(5 * time.Minute),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *FieldRegistry) Axis() domain.Axis { return r.axis }

// Fields returns the definitions ordered by display order, then name.
// Invalid definitions are dropped with a log line.
func (r *FieldRegistry) Fields(ctx context.Context) ([]domain.CustomFieldDefinition, error) {
	if defs, ok := r.cache.Get(ctx, r.axis); ok {
		recordFieldCacheRequest(true)
		return defs, nil
	}
	recordFieldCacheRequest(false)

	raw, err := r.source.ListCustomFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("list custom fields: %w", err)
	}
	defs := make([]domain.CustomFieldDefinition, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, d := range raw {
		d.FieldName = strings.TrimSpace(d.FieldName)
		if err := r.validate.Struct(d); err != nil {
			logWithFields(ctx, logrus.WarnLevel, "custom field definition rejected", logrus.Fields{
				"axis":  r.axis,
				"field": d.FieldName,
				"error": err.Error(),
			})
			continue
		}
		if isReservedColumn(d.FieldName) {
			logWithFields(ctx, logrus.WarnLevel, "custom field shadows a structural column", logrus.Fields{"axis": r.axis, "field": d.FieldName})
			continue
		}
		if _, dup := seen[d.FieldName]; dup {
			continue
		}
		seen[d.FieldName] = struct{}{}
		defs = append(defs, d)
	}
	SortDefinitions(defs)
	r.cache.Set(ctx, r.axis, defs)
	return defs, nil
}

func (r *FieldRegistry) Invalidate(ctx context.Context) {
	r.cache.Invalidate(ctx, r.axis)
}

// Columns returns the ordered custom column names.
func (r *FieldRegistry) Columns(ctx context.Context) ([]string, error) {
	defs, err := r.Fields(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.FieldName)
	}
	return out, nil
}

func SortDefinitions(defs []domain.CustomFieldDefinition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].DisplayOrder != defs[j].DisplayOrder {
			return defs[i].DisplayOrder < defs[j].DisplayOrder
		}
		return defs[i].FieldName < defs[j].FieldName
	})
}

func isReservedColumn(name string) bool {
	for _, c := range RequiredColumns {
		if c == name {
			return true
		}
	}
	return false
}

// CheckValue validates an imported cell against its definition. Problems are
// advisory: the reconciler stores the raw value and reports a warning.
func (r *FieldRegistry) CheckValue(ctx context.Context, def domain.CustomFieldDefinition, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		if def.IsRequired {
			return fmt.Errorf("%s is required", def.FieldName)
		}
		return nil
	}
	switch def.Type {
	case domain.FieldNumber:
		if _, err := decimal.NewFromString(value); err != nil {
			return fmt.Errorf("%s: %q is not a number", def.FieldName, value)
		}
	case domain.FieldDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			if _, err := time.Parse(time.RFC3339, value); err != nil {
				return fmt.Errorf("%s: %q is not a date", def.FieldName, value)
			}
		}
	case domain.FieldBoolean:
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s: %q is not a boolean", def.FieldName, value)
		}
	case domain.FieldSelect:
		if !containsFold(def.Options, value) {
			return fmt.Errorf("%s: %q is not one of %s", def.FieldName, value, strings.Join(def.Options, ", "))
		}
	case domain.FieldSQLQuery:
		if r.resolver == nil || strings.TrimSpace(def.SQLQuery) == "" {
			return nil
		}
		opts, err := r.resolver.Options(ctx, def.SQLQuery)
		if err != nil {
			return fmt.Errorf("%s: options unavailable: %w", def.FieldName, err)
		}
		if !containsFold(opts, value) {
			return fmt.Errorf("%s: %q is not an allowed value", def.FieldName, value)
		}
	}
	return nil
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// FileFieldSource reads definitions from a YAML or TOML file keyed by axis:
//
//	account:
//	  - field_name: region
//	    field_type: select
//	    options: [EU, US]
type FileFieldSource struct {
	Path string
	Axis domain.Axis
}

func (s FileFieldSource) ListCustomFields(_ context.Context) ([]domain.CustomFieldDefinition, error) {
	all, err := LoadFieldDefinitionsFile(s.Path)
	if err != nil {
		return nil, err
	}
	return all[s.Axis], nil
}

func LoadFieldDefinitionsFile(path string) (map[domain.Axis][]domain.CustomFieldDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw := make(map[string][]domain.CustomFieldDefinition)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported custom fields file: %s", path)
	}
	out := make(map[domain.Axis][]domain.CustomFieldDefinition, len(raw))
	for k, v := range raw {
		axis, err := domain.ParseAxis(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out[axis] = append(out[axis], v...)
	}
	return out, nil
}

// FallbackFieldSource tries sources in order until one returns definitions.
type FallbackFieldSource []FieldSource

func (s FallbackFieldSource) ListCustomFields(ctx context.Context) ([]domain.CustomFieldDefinition, error) {
	var lastErr error
	for _, src := range s {
		defs, err := src.ListCustomFields(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if len(defs) > 0 {
			return defs, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}
