package linkrelay

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	celgo "github.com/google/cel-go/cel"

	"linkrelay/internal/config"
	"linkrelay/pkg/cel"
)

var displayNames = map[string]string{
	"profileId":    "Profile Id",
	"partitionKey": "Partition Key",
}

type rule struct {
	field   string
	message string
	program celgo.Program
}

// Validator checks a SendLinkRequest against its struct tags and then against
// every configured CEL rule, collecting all failures.
type Validator struct {
	validate  *validator.Validate
	evaluator *cel.Evaluator
	rules     []rule
}

func NewValidator(rules []config.ValidationRule) (*Validator, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		return nil, fmt.Errorf("failed to register notblank validator: %w", err)
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, err
	}

	compiled := make([]rule, 0, len(rules))
	for i, r := range rules {
		program, err := evaluator.CompileRule(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("validation rule %d (%s): %w", i, r.Field, err)
		}
		compiled = append(compiled, rule{field: r.Field, message: r.Message, program: program})
	}

	return &Validator{validate: v, evaluator: evaluator, rules: compiled}, nil
}

// Validate returns nil when req is acceptable.
func (v *Validator) Validate(ctx context.Context, req SendLinkRequest) []FieldError {
	var out []FieldError

	if err := v.validate.StructCtx(ctx, req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				out = append(out, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
			}
		} else {
			out = append(out, FieldError{Field: "body", Message: err.Error()})
		}
	}

	for _, r := range v.rules {
		ok, err := v.evaluator.EvaluateRule(ctx, r.program, req.ProfileID, req.PartitionKey)
		if err != nil || !ok {
			out = append(out, FieldError{Field: r.field, Message: r.message})
		}
	}

	return out
}

func fieldMessage(fe validator.FieldError) string {
	name, ok := displayNames[fe.Field()]
	if !ok {
		name = fe.Field()
	}

	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("'%s' must not be empty.", name)
	case "max":
		entered := 0
		if s, ok := fe.Value().(string); ok {
			entered = utf8.RuneCountInString(s)
		}
		return fmt.Sprintf("'%s' must be %s characters or fewer. You entered %d characters.", name, fe.Param(), entered)
	default:
		return fmt.Sprintf("'%s' is not valid.", name)
	}
}
