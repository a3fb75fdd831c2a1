package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

// SettingsKey is the settings entry holding the configured rule set.
const SettingsKey = "alert_rules"

// RuleSetVersion is the schema version written by Save.
const RuleSetVersion = 1

// ErrInvalidRuleSet wraps every rule set validation failure.
var ErrInvalidRuleSet = errors.New("invalid alert rule set")

// RuleSet is the persisted alert rule configuration.
type RuleSet struct {
	Version int                `json:"version" yaml:"version"`
	Rules   []domain.AlertRule `json:"rules" yaml:"rules"`
}

// RuleSource reports where a loaded rule set came from.
type RuleSource string

const (
	SourceConfigured RuleSource = "configured"
	SourceDefault    RuleSource = "default"
)

// DefaultRuleProvider supplies the rules used when nothing is configured.
type DefaultRuleProvider interface {
	DefaultRules() []domain.AlertRule
}

// DefaultRulesFunc adapts a function to DefaultRuleProvider.
type DefaultRulesFunc func() []domain.AlertRule

// DefaultRules implements DefaultRuleProvider.
func (f DefaultRulesFunc) DefaultRules() []domain.AlertRule {
	return f()
}

// BuiltinRules are the global error-rate and latency guards.
func BuiltinRules() []domain.AlertRule {
	return []domain.AlertRule{
		{
			ID:            "default-error-rate",
			Name:          "High error rate",
			ServiceID:     domain.GlobalServiceID,
			MetricName:    domain.MetricHTTPRequestStatus,
			Condition:     domain.ConditionGreaterThan,
			Threshold:     5,
			WindowMinutes: 5,
			Severity:      domain.SeverityHigh,
			Enabled:       true,
		},
		{
			ID:            "default-latency",
			Name:          "High latency",
			ServiceID:     domain.GlobalServiceID,
			MetricName:    domain.MetricHTTPRequestDuration,
			Condition:     domain.ConditionGreaterThan,
			Threshold:     2000,
			WindowMinutes: 5,
			Severity:      domain.SeverityHigh,
			Enabled:       true,
		},
	}
}

// RuleStore loads and persists the alert rule configuration.
type RuleStore struct {
	settings repository.SettingsRepository
	defaults DefaultRuleProvider
	logger   *slog.Logger
}

// NewRuleStore returns a rule store. A nil provider falls back to BuiltinRules.
func NewRuleStore(settings repository.SettingsRepository, defaults DefaultRuleProvider, logger *slog.Logger) RuleStore {
	if defaults == nil {
		defaults = DefaultRulesFunc(BuiltinRules)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return RuleStore{settings: settings, defaults: defaults, logger: logger.With("component", "alert_rules")}
}

// Load returns the configured rule set, or the defaults when none is stored.
// A stored but empty list is honoured as configured.
func (s RuleStore) Load(ctx context.Context) (RuleSet, RuleSource, error) {
	raw, err := s.settings.GetSetting(ctx, SettingsKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RuleSet{Version: RuleSetVersion, Rules: s.defaults.DefaultRules()}, SourceDefault, nil
		}
		return RuleSet{}, "", fmt.Errorf("load alert rules: %w", err)
	}
	set, err := DecodeRuleSet(raw)
	if err == nil {
		set, err = Normalize(set)
	}
	if err != nil {
		s.logger.Error("stored alert rules are malformed", "error", err)
		return RuleSet{}, "", err
	}
	return set, SourceConfigured, nil
}

// Save validates and stores the rule set, returning the normalized form.
func (s RuleStore) Save(ctx context.Context, set RuleSet) (RuleSet, error) {
	normalized, err := Normalize(set)
	if err != nil {
		return RuleSet{}, err
	}
	payload, err := json.Marshal(normalized)
	if err != nil {
		return RuleSet{}, fmt.Errorf("encode alert rules: %w", err)
	}
	if err := s.settings.PutSetting(ctx, SettingsKey, payload); err != nil {
		return RuleSet{}, fmt.Errorf("store alert rules: %w", err)
	}
	s.logger.Info("alert rules saved", "rules", len(normalized.Rules))
	return normalized, nil
}

// Reset removes the configured rule set so the defaults apply again.
func (s RuleStore) Reset(ctx context.Context) error {
	if err := s.settings.DeleteSetting(ctx, SettingsKey); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("reset alert rules: %w", err)
	}
	s.logger.Info("alert rules reset to defaults")
	return nil
}

// DecodeRuleSet accepts the versioned document or a legacy bare array of rules.
func DecodeRuleSet(raw []byte) (RuleSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return RuleSet{Version: RuleSetVersion, Rules: []domain.AlertRule{}}, nil
	}
	var set RuleSet
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &set.Rules); err != nil {
			return RuleSet{}, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
		}
	} else if err := json.Unmarshal(trimmed, &set); err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	if set.Version == 0 {
		set.Version = RuleSetVersion
	}
	if set.Version != RuleSetVersion {
		return RuleSet{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidRuleSet, set.Version)
	}
	if set.Rules == nil {
		set.Rules = []domain.AlertRule{}
	}
	return set, nil
}

// Normalize validates set and fills defaults: version, trimmed fields, global scope.
func Normalize(set RuleSet) (RuleSet, error) {
	if set.Version == 0 {
		set.Version = RuleSetVersion
	}
	if set.Version != RuleSetVersion {
		return RuleSet{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidRuleSet, set.Version)
	}
	out := RuleSet{Version: set.Version, Rules: make([]domain.AlertRule, 0, len(set.Rules))}
	seen := make(map[string]struct{}, len(set.Rules))
	for i, rule := range set.Rules {
		rule.ID = strings.TrimSpace(rule.ID)
		rule.Name = strings.TrimSpace(rule.Name)
		rule.MetricName = strings.TrimSpace(rule.MetricName)
		rule.ServiceID = strings.TrimSpace(rule.ServiceID)
		rule.Condition = domain.Condition(strings.ToLower(string(rule.Condition)))
		rule.Severity = domain.Severity(strings.ToUpper(string(rule.Severity)))

		switch {
		case rule.ID == "":
			return RuleSet{}, fmt.Errorf("%w: rule %d has no id", ErrInvalidRuleSet, i)
		case rule.MetricName == "":
			return RuleSet{}, fmt.Errorf("%w: rule %q has no metric name", ErrInvalidRuleSet, rule.ID)
		case !rule.Condition.Valid():
			return RuleSet{}, fmt.Errorf("%w: rule %q has unknown condition %q", ErrInvalidRuleSet, rule.ID, rule.Condition)
		case !rule.Severity.Valid():
			return RuleSet{}, fmt.Errorf("%w: rule %q has unknown severity %q", ErrInvalidRuleSet, rule.ID, rule.Severity)
		case rule.WindowMinutes <= 0:
			return RuleSet{}, fmt.Errorf("%w: rule %q needs a positive window", ErrInvalidRuleSet, rule.ID)
		case math.IsNaN(rule.Threshold) || math.IsInf(rule.Threshold, 0):
			return RuleSet{}, fmt.Errorf("%w: rule %q has a non-finite threshold", ErrInvalidRuleSet, rule.ID)
		}
		if _, dup := seen[rule.ID]; dup {
			return RuleSet{}, fmt.Errorf("%w: duplicate rule id %q", ErrInvalidRuleSet, rule.ID)
		}
		seen[rule.ID] = struct{}{}

		if rule.ServiceID == "" {
			rule.ServiceID = domain.GlobalServiceID
		}
		if rule.Name == "" {
			rule.Name = rule.ID
		}
		out.Rules = append(out.Rules, rule)
	}
	return out, nil
}
