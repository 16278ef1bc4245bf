package recovery

import (
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// Options configures the recovery parser
type Options struct {
	// MaxAttempts bounds the number of repair stages tried (default 3)
	MaxAttempts int
	// DisableRepair turns off structural repair between stages
	DisableRepair bool
}

// Parser repairs and validates semi-structured model output against a
// declared schema. Malformed model output is an expected condition, so
// parsing fails soft: Parse reports success or failure instead of
// returning an error.
type Parser struct {
	opts Options
	log  *zap.Logger
}

// NewParser creates a recovery parser. A nil logger disables logging.
func NewParser(log *zap.Logger, opts Options) *Parser {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{opts: opts, log: log}
}

// Parse attempts staged recovery of raw model output into out, validating
// against the schema before accepting a candidate. Stages are tried in
// order, one per attempt: direct parse, fence stripping, then balanced
// sub-sequence extraction. Structural repair runs before each parse unless
// disabled. Returns false once all attempts are exhausted; the caller
// decides whether absence is fatal or triggers a fallback.
func (p *Parser) Parse(raw string, schema Schema, out interface{}) bool {
	stages := []func(string) string{
		strings.TrimSpace,
		stripFences,
		extractBalanced,
	}

	attempts := p.opts.MaxAttempts
	if attempts > len(stages) {
		attempts = len(stages)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		candidate := stages[i](raw)
		if candidate == "" {
			continue
		}
		if !p.opts.DisableRepair {
			candidate = repairStructure(candidate)
		}

		var decoded map[string]interface{}
		if err := sonic.UnmarshalString(candidate, &decoded); err != nil {
			lastErr = err
			continue
		}
		if err := schema.Validate(decoded); err != nil {
			lastErr = err
			continue
		}

		if err := remarshal(decoded, out); err != nil {
			lastErr = err
			continue
		}
		return true
	}

	p.log.Warn("structured output unrecoverable",
		zap.String("schema", schema.Name),
		zap.Int("attempts", attempts),
		zap.Int("raw_length", len(raw)),
		zap.Error(lastErr),
	)
	return false
}

// remarshal moves a validated generic object into the caller's typed value
func remarshal(decoded map[string]interface{}, out interface{}) error {
	buf, err := sonic.Marshal(decoded)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(buf, out)
}
