// Package prompt provides interactive terminal prompts for CLI commands.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("aborted")

// Confirm prompts the user for yes/no confirmation.
// Returns true if the user confirms, false otherwise.
// Returns ErrAborted if the user presses Ctrl+C.
func Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
	}

	result, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		// promptui returns ErrAbort for "n" and for an empty answer
		if errors.Is(err, promptui.ErrAbort) {
			if result == "" {
				return defaultYes, nil
			}
			return false, nil
		}
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(result))
	return answer == "y" || answer == "yes", nil
}

// ConfirmWithForce returns true immediately if force is true,
// otherwise prompts for confirmation.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}
