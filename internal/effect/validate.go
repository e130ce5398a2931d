package effect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError describes a rejected request parameter
type ValidationError struct {
	Field   string
	Message string
	Allowed []string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks a decoded request body against the effect's declaration and
// returns the normalized parameters. Missing options and ranges take their defaults.
func (e *Effect) Validate(v *validator.Validate, body map[string]any) (Params, error) {
	params := make(Params)

	for _, in := range e.Inputs {
		raw, present := body[in.Name]
		if !present || raw == nil || raw == "" {
			if in.Required {
				return nil, &ValidationError{Field: in.Name, Message: fmt.Sprintf("%s is required", in.Name)}
			}
			continue
		}
		value, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{Field: in.Name, Message: fmt.Sprintf("%s must be a string URL", in.Name)}
		}
		value = strings.TrimSpace(value)
		if err := v.Var(value, "required,http_url"); err != nil {
			return nil, &ValidationError{Field: in.Name, Message: fmt.Sprintf("%s must be a valid http(s) URL", in.Name)}
		}
		params[in.Name] = value
	}

	for _, opt := range e.Options {
		raw, present := body[opt.Name]
		if !present || raw == nil || raw == "" {
			if opt.Default == "" {
				return nil, &ValidationError{
					Field:   opt.Name,
					Message: fmt.Sprintf("%s is required. Supported values: %s", opt.Name, strings.Join(opt.Allowed, ", ")),
					Allowed: opt.Allowed,
				}
			}
			params[opt.Name] = opt.Default
			continue
		}
		value, ok := scalarString(raw)
		if !ok || v.Var(value, "oneof="+strings.Join(opt.Allowed, " ")) != nil {
			return nil, &ValidationError{
				Field:   opt.Name,
				Message: fmt.Sprintf("Invalid %s %q. Supported values: %s", opt.Name, fmt.Sprint(raw), strings.Join(opt.Allowed, ", ")),
				Allowed: opt.Allowed,
			}
		}
		params[opt.Name] = value
	}

	for _, r := range e.Ranges {
		raw, present := body[r.Name]
		if !present || raw == nil || raw == "" {
			params[r.Name] = formatFloat(r.Default)
			continue
		}
		value, ok := number(raw)
		bounds := fmt.Sprintf("min=%s,max=%s", formatFloat(r.Min), formatFloat(r.Max))
		if !ok || v.Var(value, bounds) != nil {
			return nil, &ValidationError{
				Field:   r.Name,
				Message: fmt.Sprintf("%s must be a number between %s and %s", r.Name, formatFloat(r.Min), formatFloat(r.Max)),
			}
		}
		params[r.Name] = formatFloat(value)
	}

	for _, txt := range e.Texts {
		raw, _ := body[txt.Name].(string)
		value := strings.TrimSpace(raw)
		if value == "" {
			if txt.Required {
				return nil, &ValidationError{Field: txt.Name, Message: fmt.Sprintf("%s is required", txt.Name)}
			}
			continue
		}
		if err := v.Var(value, fmt.Sprintf("max=%d", txt.MaxLength)); err != nil {
			return nil, &ValidationError{
				Field:   txt.Name,
				Message: fmt.Sprintf("%s must be at most %d characters", txt.Name, txt.MaxLength),
			}
		}
		params[txt.Name] = value
	}

	return params, nil
}

// scalarString normalizes JSON strings and numbers to their string form.
func scalarString(raw any) (string, bool) {
	switch val := raw.(type) {
	case string:
		return strings.TrimSpace(val), true
	case float64:
		return formatFloat(val), true
	case int:
		return strconv.Itoa(val), true
	default:
		return "", false
	}
}

func number(raw any) (float64, bool) {
	switch val := raw.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
