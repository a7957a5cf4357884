package policy

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/atreides/internal/logging"
)

// Action classifies a validated input.
type Action string

const (
	// ActionAllow permits the operation.
	ActionAllow Action = "allow"
	// ActionAsk requires user confirmation.
	ActionAsk Action = "ask"
	// ActionDeny blocks the operation.
	ActionDeny Action = "deny"
)

// Result is the outcome of one validation call. Ephemeral, never
// persisted.
type Result struct {
	Action          Action `json:"action"`
	Reason          string `json:"reason,omitempty"`
	MatchedPattern  string `json:"matched_pattern,omitempty"`
	NormalizedInput string `json:"normalized_input,omitempty"`
}

// Stats are running counters for the pipeline.
type Stats struct {
	Allowed       uint64
	Asked         uint64
	Denied        uint64
	Obfuscated    uint64
	MeanLatencyUS float64
}

// Config controls the validator.
type Config struct {
	// CacheSize is the capacity of the LRU result cache (default: 100).
	CacheSize int `koanf:"cache_size"`

	// OverridesPath optionally points to a YAML file of extra patterns
	// checked ahead of the built-ins.
	OverridesPath string `koanf:"overrides_path"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{CacheSize: 100}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be > 0, got %d", c.CacheSize)
	}
	return nil
}

// Validator is the multi-stage command/path validation pipeline.
type Validator struct {
	logger  *zap.Logger
	metrics *Metrics
	cache   *resultCache

	mu              sync.RWMutex
	blockedRules    []Rule
	warningRules    []Rule
	overrideBlocked []Rule
	overrideWarning []Rule

	statsMu      sync.Mutex
	stats        Stats
	totalCalls   uint64
	totalLatency time.Duration
}

// NewValidator creates a validator with the built-in rule tables.
func NewValidator(cfg *Config, logger *zap.Logger) (*Validator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	metrics := NewMetrics()
	v := &Validator{
		logger:       logger.Named("policy"),
		metrics:      metrics,
		cache:        newResultCache(cfg.CacheSize, metrics),
		blockedRules: blockedCommandRules,
		warningRules: warningCommandRules,
	}

	if cfg.OverridesPath != "" {
		blocked, warning, err := LoadOverrides(cfg.OverridesPath)
		if err != nil {
			return nil, fmt.Errorf("load policy overrides: %w", err)
		}
		v.SetOverrides(blocked, warning)
	}

	return v, nil
}

// SetOverrides installs user-supplied rules ahead of the built-ins and
// flushes the result cache.
func (v *Validator) SetOverrides(blocked, warning []Rule) {
	v.mu.Lock()
	v.overrideBlocked = blocked
	v.overrideWarning = warning
	v.mu.Unlock()
	v.cache.clear()
}

// ValidateCommand classifies a command string. Any internal failure
// fails closed: the command is denied.
func (v *Validator) ValidateCommand(command string) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("validation panicked, failing closed",
				zap.Any("panic", r),
				zap.String("input", logging.Audit(command)))
			result = Result{Action: ActionDeny, Reason: "internal validation error"}
		}
		v.record(result, time.Since(start))
	}()

	if cached, ok := v.cache.get(command); ok {
		return cached
	}

	normalized := Normalize(command)
	obfuscated := WasObfuscated(command, normalized)
	if obfuscated {
		v.metrics.RecordObfuscated()
		v.statsMu.Lock()
		v.stats.Obfuscated++
		v.statsMu.Unlock()
	}

	result = v.classify(normalized)
	v.audit("command validated", command, result, obfuscated)
	v.cache.set(command, result)
	return result
}

// ValidatePath classifies a file path. Traversal sequences are rejected
// before any pattern matching. Fails closed on internal errors.
func (v *Validator) ValidatePath(rawPath string) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("path validation panicked, failing closed",
				zap.Any("panic", r),
				zap.String("input", logging.Audit(rawPath)))
			result = Result{Action: ActionDeny, Reason: "internal validation error"}
		}
		v.record(result, time.Since(start))
	}()

	if cached, ok := v.cache.get("path:" + rawPath); ok {
		return cached
	}

	decoded := decodeBounded(rawPath, decodePercent)
	decoded = decodeBounded(decoded, decodeHexEscapes)
	normalized := strings.ReplaceAll(decoded, `\`, "/")
	normalized = collapseWhitespace(normalized)

	if traversalPattern.MatchString(normalized) {
		result = Result{
			Action:          ActionDeny,
			Reason:          "path contains directory traversal",
			MatchedPattern:  "traversal",
			NormalizedInput: normalized,
		}
		v.audit("path validated", rawPath, result, decoded != rawPath)
		v.cache.set("path:"+rawPath, result)
		return result
	}

	base := path.Base(normalized)
	for _, rule := range blockedFileNameRules {
		if rule.Pattern.MatchString(base) {
			result = Result{
				Action:          ActionDeny,
				Reason:          fmt.Sprintf("file %q is protected", base),
				MatchedPattern:  rule.Name,
				NormalizedInput: normalized,
			}
			v.audit("path validated", rawPath, result, decoded != rawPath)
			v.cache.set("path:"+rawPath, result)
			return result
		}
	}
	for _, rule := range blockedPathPrefixRules {
		if rule.Pattern.MatchString(normalized) {
			result = Result{
				Action:          ActionDeny,
				Reason:          "path is outside the permitted write surface",
				MatchedPattern:  rule.Name,
				NormalizedInput: normalized,
			}
			v.audit("path validated", rawPath, result, decoded != rawPath)
			v.cache.set("path:"+rawPath, result)
			return result
		}
	}

	result = Result{Action: ActionAllow, NormalizedInput: normalized}
	v.cache.set("path:"+rawPath, result)
	return result
}

// classify runs the ordered rule tables against normalized text:
// overrides before built-ins, blocked before warning, first match wins.
func (v *Validator) classify(normalized string) Result {
	v.mu.RLock()
	defer v.mu.RUnlock()

	for _, table := range [][]Rule{v.overrideBlocked, v.blockedRules} {
		for _, rule := range table {
			if rule.Pattern.MatchString(normalized) {
				return Result{
					Action:          ActionDeny,
					Reason:          fmt.Sprintf("blocked by policy rule %q", rule.Name),
					MatchedPattern:  rule.Name,
					NormalizedInput: normalized,
				}
			}
		}
	}
	for _, table := range [][]Rule{v.overrideWarning, v.warningRules} {
		for _, rule := range table {
			if rule.Pattern.MatchString(normalized) {
				return Result{
					Action:          ActionAsk,
					Reason:          fmt.Sprintf("destructive operation %q requires confirmation", rule.Name),
					MatchedPattern:  rule.Name,
					NormalizedInput: normalized,
				}
			}
		}
	}
	return Result{Action: ActionAllow, NormalizedInput: normalized}
}

// Stats returns a copy of the running statistics.
func (v *Validator) Stats() Stats {
	v.statsMu.Lock()
	defer v.statsMu.Unlock()
	s := v.stats
	if v.totalCalls > 0 {
		s.MeanLatencyUS = float64(v.totalLatency.Microseconds()) / float64(v.totalCalls)
	}
	return s
}

func (v *Validator) record(result Result, elapsed time.Duration) {
	v.metrics.RecordDecision(result.Action, elapsed.Seconds())

	v.statsMu.Lock()
	defer v.statsMu.Unlock()
	v.totalCalls++
	v.totalLatency += elapsed
	switch result.Action {
	case ActionAllow:
		v.stats.Allowed++
	case ActionAsk:
		v.stats.Asked++
	case ActionDeny:
		v.stats.Denied++
	}
}

// audit emits one redacted, truncated audit entry per non-allow decision
// and per obfuscated input.
func (v *Validator) audit(msg, raw string, result Result, obfuscated bool) {
	if result.Action == ActionAllow && !obfuscated {
		return
	}
	v.logger.Info(msg,
		zap.String("action", string(result.Action)),
		zap.String("matched_pattern", result.MatchedPattern),
		zap.Bool("obfuscated", obfuscated),
		zap.String("input", logging.Audit(raw)),
	)
}
