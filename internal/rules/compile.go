package rules

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
)

var (
	specValidate  *validator.Validate
	ruleNameRe    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
	checkNameRe   = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	supportedFlag = "gimsuy"
)

func init() {
	specValidate = validator.New()
	specValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	_ = specValidate.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).Valid()
	})
	_ = specValidate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return Severity(fl.Field().String()).Valid()
	})
	_ = specValidate.RegisterValidation("flags", func(fl validator.FieldLevel) bool {
		for _, c := range fl.Field().String() {
			if !strings.ContainsRune(supportedFlag, c) {
				return false
			}
		}
		return true
	})
	_ = specValidate.RegisterValidation("glob", func(fl validator.FieldLevel) bool {
		return doublestar.ValidatePattern(fl.Field().String())
	})
	_ = specValidate.RegisterValidation("rulename", func(fl validator.FieldLevel) bool {
		return ruleNameRe.MatchString(fl.Field().String())
	})
	_ = specValidate.RegisterValidation("checkname", func(fl validator.FieldLevel) bool {
		return checkNameRe.MatchString(fl.Field().String())
	})
	specValidate.RegisterStructValidation(validateRuleSpec, RuleSpec{})
}

// validateRuleSpec rejects rules that can never produce a finding.
func validateRuleSpec(sl validator.StructLevel) {
	spec := sl.Current().Interface().(RuleSpec)
	if len(spec.Patterns) == 0 && spec.CustomCheck == "" {
		sl.ReportError(spec.Patterns, "patterns", "Patterns", "patterns_or_check", "")
	}
}

// compiledSet is a validated, compiled rule source.
type compiledSet struct {
	source      string
	team        string
	description string
	settings    GlobalSettings
	rules       []*Rule
}

// compileRuleSet validates spec and compiles every rule in it. All problems
// in the source are collected; any problem rejects the whole source.
func compileRuleSet(source string, spec *RuleSetSpec) (*compiledSet, error) {
	var errs []error

	if err := specValidate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Errorf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err)
		}
	}

	set := &compiledSet{
		source:      source,
		team:        spec.Team,
		description: spec.Description,
	}
	if set.team == "" {
		set.team = "system"
	}
	if gs := spec.GlobalSettings; gs != nil {
		set.settings.DefaultSeverity = Severity(gs.DefaultSeverity)
		set.settings.IgnorePatterns = append([]string(nil), gs.IgnorePatterns...)
	}

	for _, named := range spec.Rules {
		rule, err := compileRule(named.Name, &named.Spec, set)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		set.rules = append(set.rules, rule)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}

func compileRule(name string, spec *RuleSpec, set *compiledSet) (*Rule, error) {
	r := &Rule{
		Name:          name,
		Team:          set.team,
		Source:        set.source,
		Category:      Category(spec.Category),
		Severity:      Severity(spec.Severity),
		Description:   spec.Description,
		FileTypes:     append([]string(nil), spec.FileTypes...),
		Exceptions:    append([]string(nil), spec.Exceptions...),
		Enabled:       spec.Enabled == nil || *spec.Enabled,
		AutoFix:       spec.AutoFix,
		FixSuggestion: spec.FixSuggestion,
		CustomCheck:   spec.CustomCheck,
		Tags:          append([]string(nil), spec.Tags...),
	}
	if r.Category == "" {
		r.Category = CategoryQuality
	}
	if r.Severity == "" {
		r.Severity = set.settings.DefaultSeverity
	}
	if r.Severity == "" {
		r.Severity = SeverityMedium
	}
	if r.Description == "" {
		r.Description = "Custom rule: " + name
	}
	if len(r.FileTypes) == 0 {
		r.FileTypes = []string{"*"}
	}

	var errs []error
	for i := range spec.Patterns {
		p, err := compilePattern(&spec.Patterns[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q pattern %d: %w", name, i, err))
			continue
		}
		r.Patterns = append(r.Patterns, p)
	}
	for i := range spec.AntiPatterns {
		p, err := compilePattern(&spec.AntiPatterns[i])
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %q anti-pattern %d: %w", name, i, err))
			continue
		}
		r.AntiPatterns = append(r.AntiPatterns, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}

func compilePattern(spec *PatternSpec) (Pattern, error) {
	re, err := CompileExpr(spec.Pattern, spec.Flags)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{
		Expr:          spec.Pattern,
		Flags:         spec.Flags,
		Message:       spec.Message,
		FixSuggestion: spec.FixSuggestion,
		AutoFix:       spec.AutoFix,
		re:            re,
	}, nil
}

// CompileExpr compiles expr with rule-style flags. Empty flags mean
// case-insensitive. Only i, m and s change matching; scanning is always
// global so g, u and y are accepted and ignored.
func CompileExpr(expr, flags string) (*regexp.Regexp, error) {
	if flags == "" {
		flags = "gi"
	}
	var inline strings.Builder
	for _, c := range flags {
		switch c {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), c) {
				inline.WriteRune(c)
			}
		case 'g', 'u', 'y':
		default:
			return nil, fmt.Errorf("unsupported flag %q", c)
		}
	}
	if inline.Len() > 0 {
		expr = "(?" + inline.String() + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", expr, err)
	}
	return re, nil
}

// MustPattern builds a compiled pattern, panicking on error. Intended for
// tests and rules defined in code.
func MustPattern(expr, flags, message string) Pattern {
	p, err := compilePattern(&PatternSpec{Pattern: expr, Flags: flags, Message: message})
	if err != nil {
		panic(err)
	}
	return p
}
