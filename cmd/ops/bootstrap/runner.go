package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const maxAttempts = 5

var errSkipped = errors.New("skipped by operator")

// Action is what happened to a single inventory step.
type Action string

const (
	ActionWritten     Action = "written"
	ActionGenerated   Action = "generated"
	ActionOverwritten Action = "overwritten"
	ActionKept        Action = "kept"
	ActionSkipped     Action = "skipped"
)

// StepResult records the outcome of one step.
type StepResult struct {
	Step   Step
	Path   string
	Action Action
}

// Runner walks the inventory, probing SSM before prompting so a rerun only
// asks for what is missing.
type Runner struct {
	SSM    *SSMManager
	Stdin  io.Reader
	Stderr io.Writer

	// Overwrite replaces existing parameters instead of keeping them.
	Overwrite bool

	inventory []Step
	scanner   *bufio.Scanner
}

func NewRunner(m *SSMManager, stdin io.Reader, stderr io.Writer) *Runner {
	return &Runner{SSM: m, Stdin: stdin, Stderr: stderr, inventory: Inventory()}
}

func (r *Runner) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(r.inventory))
	for i, step := range r.inventory {
		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(r.inventory), step.Label)
		res, err := r.process(ctx, step)
		if err != nil {
			return results, fmt.Errorf("step %q: %w", step.Label, err)
		}
		results = append(results, res)
	}
	r.printSummary(results)
	return results, nil
}

func (r *Runner) process(ctx context.Context, step Step) (StepResult, error) {
	path := r.SSM.Path(step.Key)
	res := StepResult{Step: step, Path: path}

	exists, err := r.SSM.Exists(ctx, path)
	if err != nil {
		return res, err
	}
	if exists && !r.Overwrite {
		fmt.Fprintf(r.Stderr, "  Already set: %s\n", path)
		res.Action = ActionKept
		return res, nil
	}

	var value string
	switch step.Source {
	case SourceGenerated:
		value, err = GenerateToken()
		if err != nil {
			return res, err
		}
		fmt.Fprintf(r.Stderr, "  Generated %d chars.\n", len(value))
	default:
		value, err = r.prompt(step)
		if errors.Is(err, errSkipped) {
			fmt.Fprintln(r.Stderr, "  Skipped.")
			res.Action = ActionSkipped
			return res, nil
		}
		if err != nil {
			return res, err
		}
	}

	if step.Secure {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return res, err
	}

	switch {
	case exists:
		res.Action = ActionOverwritten
	case step.Source == SourceGenerated:
		res.Action = ActionGenerated
	default:
		res.Action = ActionWritten
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return res, nil
}

func (r *Runner) prompt(step Step) (string, error) {
	fmt.Fprintf(r.Stderr, "  %s\n", step.Prompt)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var (
			input string
			err   error
		)
		if step.Secure {
			input, err = r.readSecret("  > ")
		} else {
			input, err = r.readLine("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			fmt.Fprintln(r.Stderr, "  A value is required.")
			continue
		}
		// Never echo secrets back.
		if step.Secure {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}
		if step.Check != nil {
			if err := step.Check(input); err != nil {
				fmt.Fprintf(r.Stderr, "  Invalid: %v (%d/%d)\n", err, attempt, maxAttempts)
				continue
			}
		}
		return input, nil
	}
	return "", fmt.Errorf("no valid value after %d attempts", maxAttempts)
}

func (r *Runner) readLine(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

// readSecret disables echo when stdin is a terminal and falls back to a
// plain line read for pipes.
func (r *Runner) readSecret(prompt string) (string, error) {
	f, ok := r.Stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return r.readLine(prompt)
	}
	fmt.Fprint(r.Stderr, prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(r.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Runner) printSummary(results []StepResult) {
	counts := make(map[Action]int)
	fmt.Fprintln(r.Stderr, "\n------------------------------------------------------------")
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-12s %s\n", "["+strings.ToUpper(string(res.Action))+"]", res.Step.Label)
	}
	fmt.Fprintln(r.Stderr, "------------------------------------------------------------")
	fmt.Fprintf(r.Stderr, "  Written: %d | Generated: %d | Overwritten: %d | Kept: %d | Skipped: %d\n",
		counts[ActionWritten], counts[ActionGenerated], counts[ActionOverwritten], counts[ActionKept], counts[ActionSkipped])
}

// WriteEnvPointers prints one VAR_SSM_PARAM=path line per stored parameter,
// ready to paste into the deployment environment.
func WriteEnvPointers(w io.Writer, results []StepResult) error {
	for _, res := range results {
		if res.Action == ActionSkipped {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s_SSM_PARAM=%s\n", res.Step.EnvVar, res.Path); err != nil {
			return err
		}
	}
	return nil
}
