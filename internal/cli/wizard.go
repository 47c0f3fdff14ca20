package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/localtex/cli/internal/session"
)

var maxSizeOptions = []string{"256", "512", "1024", "2048"}

func selectPeriod(defaultPeriod time.Duration) (time.Duration, error) {
	periodStr := defaultPeriod.String()

	prompt := &survey.Input{
		Message: "How often should tracked files be checked?",
		Default: periodStr,
		Help:    "A Go duration such as 500ms, 3s or 1m.",
	}

	validator := func(val interface{}) error {
		str, ok := val.(string)
		if !ok {
			return errors.New("invalid input")
		}
		d, err := time.ParseDuration(strings.TrimSpace(str))
		if err != nil {
			return errors.New("must be a duration such as 3s")
		}
		if d <= 0 {
			return errors.New("period must be positive")
		}
		return nil
	}

	if err := survey.AskOne(prompt, &periodStr, survey.WithValidator(validator)); err != nil {
		return 0, err
	}

	period, _ := time.ParseDuration(strings.TrimSpace(periodStr))
	return period, nil
}

func selectRetries(defaultRetries int) (int, error) {
	retriesStr := strconv.Itoa(defaultRetries)

	prompt := &survey.Input{
		Message: "How many failed decodes before a file is given up on?",
		Default: retriesStr,
	}

	validator := func(val interface{}) error {
		str, ok := val.(string)
		if !ok {
			return errors.New("invalid input")
		}
		num, err := strconv.Atoi(strings.TrimSpace(str))
		if err != nil {
			return errors.New("must be a number")
		}
		if num < 1 {
			return errors.New("must be at least 1")
		}
		return nil
	}

	if err := survey.AskOne(prompt, &retriesStr, survey.WithValidator(validator)); err != nil {
		return 0, err
	}

	retries, _ := strconv.Atoi(strings.TrimSpace(retriesStr))
	return retries, nil
}

func selectMaxSize(defaultSize int) (int, error) {
	selected, err := selectOption("Largest texture edge after scaling:", maxSizeOptions, strconv.Itoa(defaultSize))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(selected)
}

func confirm(message string, defaultValue bool) (bool, error) {
	answer := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false, err
	}
	return answer, nil
}

// selectBitmap lets the user pick one of the tracked bitmaps
func selectBitmap(entries []session.Entry) (session.Entry, error) {
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = fmt.Sprintf("%s (%s)", e.DisplayName, e.TrackingID)
	}

	var index int
	prompt := &survey.Select{
		Message: "Which bitmap should be removed?",
		Options: labels,
	}
	if err := survey.AskOne(prompt, &index); err != nil {
		return session.Entry{}, err
	}
	return entries[index], nil
}

func selectOption(message string, options []string, defaultOption string) (string, error) {
	// Validate the default value exists in options
	defaultExists := false
	for _, opt := range options {
		if opt == defaultOption {
			defaultExists = true
			break
		}
	}
	if !defaultExists && defaultOption != "" {
		return "", fmt.Errorf("default option %q not in option list", defaultOption)
	}

	var selected string

	prompt := &survey.Select{
		Message: message,
		Options: options,
		Default: defaultOption,
	}

	if err := survey.AskOne(prompt, &selected, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}

	return selected, nil
}

func provideInput(message string, defaultValue string) (string, error) {
	content := ""
	prompt := &survey.Input{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &content, survey.WithValidator(survey.Required)); err != nil {
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		content = defaultValue
	}

	return content, nil
}
