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

// ParameterType indicates whether an SSM parameter is stored as a
// SecureString (encrypted) or a plain String.
type ParameterType int

const (
	ParamSecureString ParameterType = iota
	ParamString
)

// BootstrapStep defines one parameter collected during bootstrap.
type BootstrapStep struct {
	HumanLabel string

	// SSMCategoryKey becomes /{env}/tiergate/{SSMCategoryKey}.
	SSMCategoryKey string

	// EnvVar is the configuration variable the parameter feeds. Deployed
	// functions point at it with EnvVar + "_SSM_PARAM".
	EnvVar string

	ParamType  ParameterType
	Prompt     string
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// IsSecret masks the input on a terminal.
	IsSecret bool

	// Optional steps skip on empty input and with SkipOptional.
	Optional bool

	Phase string
}

// maxRetries bounds validation failures per step.
const maxRetries = 5

// ssmParamSuffix mirrors the pointer suffix config.LoadConfig resolves.
const ssmParamSuffix = "_SSM_PARAM"

var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory returns the ordered parameter inventory.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			EnvVar:         "DATABASE_URL",
			ParamType:      ParamSecureString,
			Prompt: `Paste the postgres:// connection string for the ledger database.
   The role needs CREATE on the schema if DB_MIGRATE_ON_START is used:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
			Phase:      "Ledger",
		},
		{
			HumanLabel:     "Webhook Secret",
			SSMCategoryKey: "webhook/secret",
			EnvVar:         "WEBHOOK_SECRET",
			ParamType:      ParamSecureString,
			Prompt: `1. Open the platform dashboard > Developer > Webhooks.
   2. Create an endpoint pointing at https://<host>/webhooks.
   3. Paste the endpoint's signing secret here:`,
			ValidateFn: v.ValidateWebhookSecret,
			IsSecret:   true,
			Phase:      "Commerce Platform",
		},
		{
			HumanLabel:     "Identity API Key",
			SSMCategoryKey: "identity/api_key",
			EnvVar:         "IDENTITY_API_KEY",
			ParamType:      ParamSecureString,
			Prompt: `Paste an API key with read access to users.
   It is used to fetch profiles for first-time buyers:`,
			ValidateFn: v.ValidateIdentityKey,
			IsSecret:   true,
			Phase:      "Commerce Platform",
		},
		{
			HumanLabel:     "Redis URL (optional)",
			SSMCategoryKey: "dedupe/redis_url",
			EnvVar:         "REDIS_URL",
			ParamType:      ParamSecureString,
			Prompt:         `Paste the redis:// URL for delivery dedupe (or press Enter to skip):`,
			ValidateFn:     v.ValidateRedisURL,
			IsSecret:       true,
			Optional:       true,
			Phase:          "Optional Infrastructure",
		},
		{
			HumanLabel:     "Entitlement Queue URL (optional)",
			SSMCategoryKey: "queue/entitlement_events_url",
			EnvVar:         "SQS_ENTITLEMENT_EVENTS",
			ParamType:      ParamString,
			Prompt:         `Paste the SQS queue URL for DISPATCH_MODE=sqs (or press Enter to skip):`,
			ValidateFn:     v.ValidateQueueURL,
			Optional:       true,
			Phase:          "Optional Infrastructure",
		},
	}
}

// BootstrapRunner orchestrates the main bootstrap loop.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// SkipOptional auto-skips Optional steps without prompting.
	SkipOptional bool

	// A single scanner, so buffered input is not lost between prompts.
	scanner *bufio.Scanner

	inventoryOverride []BootstrapStep
}

// NewBootstrapRunner creates a BootstrapRunner with production dependencies.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

func (r *BootstrapRunner) inventory() []BootstrapStep {
	if r.inventoryOverride != nil {
		return r.inventoryOverride
	}
	return BuildInventory(r.Validator)
}

// Run walks the inventory: check SSM, prompt, validate, write. It ends with
// a summary and the pointer variables for the deployment template.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventory()

	var currentPhase string
	results := make([]stepResult, 0, len(inventory))

	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}

		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

type stepResult struct {
	Label  string
	EnvVar string
	Action string // "written", "skipped", "overwritten", "kept"
	Path   string
}

func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, EnvVar: step.EnvVar, Path: path}

	if step.Optional && r.SkipOptional {
		fmt.Fprintf(r.Stderr, "  Skipped (--skip-optional)\n")
		result.Action = "skipped"
		return result, nil
	}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}

	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)

		choice, err := r.promptChoice("  [S]kip or [O]verwrite? ", map[string]string{
			"s": "skip", "skip": "skip", "o": "overwrite", "overwrite": "overwrite",
		})
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Kept existing value.\n")
			result.Action = "kept"
			return result, nil
		}
	}

	value, err := r.promptAndValidate(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = "skipped"
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	result.Action = "written"
	if exists {
		result.Action = "overwritten"
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate prompts, validates and retries up to maxRetries times.
// Empty input skips optional steps and offers skip/retry otherwise.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var input string
		var err error
		if step.IsSecret {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, err := r.promptChoice("  No input received. [S]kip this parameter or [R]etry? ", map[string]string{
				"s": "skip", "skip": "skip", "r": "retry", "retry": "retry",
			})
			if err != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, err)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			attempt--
			continue
		}

		// Never echo secrets.
		if step.IsSecret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}

		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) scanLine() (string, error) {
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

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables echo when stdin is a terminal and falls back to
// line reading for piped input.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(password), nil
	}

	return r.scanLine()
}

// promptChoice re-prompts until the answer maps to a choice.
func (r *BootstrapRunner) promptChoice(prompt string, choices map[string]string) (string, error) {
	for {
		fmt.Fprint(r.Stderr, prompt)

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}
		if choice, ok := choices[strings.ToLower(strings.TrimSpace(line))]; ok {
			return choice, nil
		}
		fmt.Fprintf(r.Stderr, "  Unrecognized answer %q.\n", strings.TrimSpace(line))
	}
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	fmt.Fprintf(r.Stderr, "============================================================\n")
}

// printSummary lists every action and the pointer variables to set on the
// deployed functions for parameters that exist after the run.
func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")

	counts := make(map[string]int)
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}

	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Kept: %d | Skipped: %d\n",
		counts["written"], counts["overwritten"], counts["kept"], counts["skipped"])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")

	fmt.Fprintf(r.Stderr, "  Function environment:\n")
	for _, res := range results {
		if res.Action == "skipped" {
			continue
		}
		fmt.Fprintf(r.Stderr, "    %s%s=%s\n", res.EnvVar, ssmParamSuffix, res.Path)
	}
	fmt.Fprintln(r.Stderr)
}
