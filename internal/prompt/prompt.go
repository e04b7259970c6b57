package prompt

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	clierr "github.com/ggonzalez94/meeflow/internal/errors"
	"github.com/manifoldco/promptui"
)

const (
	AnswerYes = "yes"
	AnswerNo  = "no"
)

// amountPattern accepts decimals with at most six fractional digits, the
// smallest USDC step.
var amountPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]{1,6})?$`)

// Prompter asks the user for input.
type Prompter interface {
	// Amount asks for a decimal amount, offering def as the default answer.
	Amount(label, def string) (string, error)
	Select(label string, options []string) (string, error)
	Confirm(label string) (bool, error)
}

// Terminal prompts on an interactive terminal.
type Terminal struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

func (t Terminal) Amount(label, def string) (string, error) {
	p := promptui.Prompt{
		Label:    label,
		Default:  def,
		Validate: ValidateAmountFormat,
		Stdin:    t.Stdin,
		Stdout:   t.Stdout,
	}
	value, err := p.Run()
	if err != nil {
		return "", mapPromptError(err)
	}
	return strings.TrimSpace(value), nil
}

func (t Terminal) Select(label string, options []string) (string, error) {
	if len(options) == 0 {
		return "", clierr.New(clierr.CodeInternal, "select prompt has no options")
	}
	s := promptui.Select{
		Label:  label,
		Items:  options,
		Stdin:  t.Stdin,
		Stdout: t.Stdout,
	}
	_, value, err := s.Run()
	if err != nil {
		return "", mapPromptError(err)
	}
	return value, nil
}

func (t Terminal) Confirm(label string) (bool, error) {
	answer, err := t.Select(label, []string{AnswerYes, AnswerNo})
	if err != nil {
		return false, err
	}
	return answer == AnswerYes, nil
}

// ValidateAmountFormat checks the numeric shape of an amount entry. Bounds are
// checked by the caller.
func ValidateAmountFormat(input string) error {
	if !amountPattern.MatchString(strings.TrimSpace(input)) {
		return fmt.Errorf("enter a decimal amount with at most 6 decimals")
	}
	return nil
}

// WithAmount answers amount prompts with a fixed value and defers every other
// prompt to next.
func WithAmount(next Prompter, amount string) Prompter {
	return fixedAmount{next: next, amount: strings.TrimSpace(amount)}
}

type fixedAmount struct {
	next   Prompter
	amount string
}

func (f fixedAmount) Amount(string, string) (string, error) {
	if err := ValidateAmountFormat(f.amount); err != nil {
		return "", clierr.Wrap(clierr.CodeValidation, fmt.Sprintf("invalid amount %q", f.amount), err)
	}
	return f.amount, nil
}

func (f fixedAmount) Select(label string, options []string) (string, error) {
	if f.next == nil {
		return "", clierr.New(clierr.CodeUsage, fmt.Sprintf("%s: no interactive terminal available", label))
	}
	return f.next.Select(label, options)
}

func (f fixedAmount) Confirm(label string) (bool, error) {
	if f.next == nil {
		return false, clierr.New(clierr.CodeUsage, fmt.Sprintf("%s: no interactive terminal available", label))
	}
	return f.next.Confirm(label)
}

func mapPromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, promptui.ErrAbort) {
		return clierr.Wrap(clierr.CodeUsage, "prompt cancelled", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "prompt failed", err)
}
