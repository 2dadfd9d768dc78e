package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("cancelled")

// Prompter asks the user for input. Stdin and Stdout default to the
// terminal when nil.
type Prompter struct {
	Stdin  io.ReadCloser
	Stdout io.WriteCloser
}

// Required rejects empty input.
func Required(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("a value is required")
	}
	return nil
}

// AskText prompts for text input. An empty answer returns defaultValue.
// validate may be nil.
func (p Prompter) AskText(label, defaultValue string, validate func(string) error) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Default:  defaultValue,
		Validate: validate,
		Stdin:    p.Stdin,
		Stdout:   p.Stdout,
	}
	value, err := prompt.Run()
	if err != nil {
		return "", wrapPromptError(err)
	}
	return strings.TrimSpace(value), nil
}

// AskSecret prompts for input without echoing it.
func (p Prompter) AskSecret(label string) (string, error) {
	prompt := promptui.Prompt{
		Label:    label,
		Mask:     '*',
		Validate: Required,
		Stdin:    p.Stdin,
		Stdout:   p.Stdout,
	}
	value, err := prompt.Run()
	if err != nil {
		return "", wrapPromptError(err)
	}
	return strings.TrimSpace(value), nil
}

// AskConfirm prompts for yes/no confirmation.
func (p Prompter) AskConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Stdin:     p.Stdin,
		Stdout:    p.Stdout,
	}
	_, err := prompt.Run()
	if errors.Is(err, promptui.ErrAbort) {
		return false, nil
	}
	if err != nil {
		return false, wrapPromptError(err)
	}
	return true, nil
}

// AskSelect prompts for a single choice and returns its index and value.
func (p Prompter) AskSelect(label string, choices []string) (int, string, error) {
	prompt := promptui.Select{
		Label:  label,
		Items:  choices,
		Size:   len(choices),
		Stdin:  p.Stdin,
		Stdout: p.Stdout,
		Templates: &promptui.SelectTemplates{
			Active:   fmt.Sprintf("%s {{ . | magenta | bold }}", promptui.IconSelect),
			Inactive: "  {{ . }}",
			Selected: fmt.Sprintf("%s {{ . | green }}", promptui.IconGood),
		},
	}
	index, value, err := prompt.Run()
	if err != nil {
		return -1, "", wrapPromptError(err)
	}
	return index, value, nil
}

func wrapPromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return ErrCancelled
	}
	return fmt.Errorf("prompt failed: %w", err)
}
