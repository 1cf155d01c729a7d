package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakkerme/free-game-notifier/internal/config"
	"github.com/bakkerme/free-game-notifier/internal/core"
)

// RuleFilter evaluates a boolean expression against each record. With result
// "drop" matching records are removed; with "pass" only matching records are kept.
type RuleFilter struct {
	name    string
	config  config.RuleFilter
	program *vm.Program
}

// recordEnv is the variable set visible to rule expressions.
type recordEnv struct {
	Store       string    `expr:"store"`
	ID          string    `expr:"id"`
	Title       string    `expr:"title"`
	URL         string    `expr:"url"`
	Description string    `expr:"description"`
	Developer   string    `expr:"developer"`
	Publisher   string    `expr:"publisher"`
	Seller      string    `expr:"seller"`
	Price       string    `expr:"price"`
	Reviews     string    `expr:"reviews"`
	Platforms   []string  `expr:"platforms"`
	Upcoming    bool      `expr:"upcoming"`
	Collector   string    `expr:"collector"`
	StartsAt    time.Time `expr:"starts_at"`
	EndsAt      time.Time `expr:"ends_at"`
	Now         time.Time `expr:"now"`
}

func NewRuleFilter(cfg *config.RuleFilter) (*RuleFilter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rule filter config is required")
	}
	program, err := expr.Compile(cfg.Rule, expr.Env(recordEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile filter rule %s: %w", cfg.Name, err)
	}
	return &RuleFilter{
		name:    cfg.Name,
		config:  *cfg,
		program: program,
	}, nil
}

func (f *RuleFilter) Name() string {
	return f.name
}

func (f *RuleFilter) Validate() error {
	if f.config.Name == "" || f.config.Rule == "" {
		return fmt.Errorf("rule name and expression are required")
	}
	if f.config.Result != "pass" && f.config.Result != "drop" {
		return fmt.Errorf("rule %s: result must be pass or drop", f.config.Name)
	}
	return nil
}

func (f *RuleFilter) Keep(ctx context.Context, record core.GameRecord) (bool, error) {
	_ = ctx
	if err := f.Validate(); err != nil {
		return false, err
	}
	result, err := expr.Run(f.program, envFor(record))
	if err != nil {
		return false, fmt.Errorf("rule %s: %w", f.name, err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("rule %s did not return bool", f.name)
	}
	if f.config.Result == "drop" {
		return !matched, nil
	}
	return matched, nil
}

func envFor(record core.GameRecord) recordEnv {
	platforms := make([]string, len(record.Platforms))
	for i, p := range record.Platforms {
		platforms[i] = string(p)
	}
	return recordEnv{
		Store:       string(record.Store),
		ID:          record.ID,
		Title:       record.Title,
		URL:         record.URL,
		Description: record.Description,
		Developer:   record.Developer,
		Publisher:   record.Publisher,
		Seller:      record.Seller,
		Price:       record.OriginalPrice,
		Reviews:     record.Reviews,
		Platforms:   platforms,
		Upcoming:    record.Upcoming,
		Collector:   record.Collector,
		StartsAt:    record.StartsAt,
		EndsAt:      record.EndsAt,
		Now:         time.Now().UTC(),
	}
}
