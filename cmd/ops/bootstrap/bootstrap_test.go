package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

func alwaysValid(_ context.Context, _ string) ValidationResult {
	return ValidationResult{Valid: true, Message: "test-accepted"}
}

// newTestRunner builds a runner over mock SSM whose validators all pass.
func newTestRunner(mock *mockSSMClient, stdin string) (*BootstrapRunner, *bytes.Buffer) {
	stderr := &bytes.Buffer{}
	validator := NewValidatorWithDeps(nil, nil)

	inventory := BuildInventory(validator)
	for i := range inventory {
		inventory[i].ValidateFn = alwaysValid
	}

	return &BootstrapRunner{
		SSM:               newTestSSMManager(mock, "dev", nil),
		Validator:         validator,
		Stdin:             strings.NewReader(stdin),
		Stderr:            stderr,
		inventoryOverride: inventory,
	}, stderr
}

func TestBuildInventory_Shape(t *testing.T) {
	inventory := BuildInventory(NewValidatorWithDeps(nil, nil))

	wantEnv := []string{"DATABASE_URL", "WEBHOOK_SECRET", "IDENTITY_API_KEY", "REDIS_URL", "SQS_ENTITLEMENT_EVENTS"}
	if len(inventory) != len(wantEnv) {
		t.Fatalf("inventory has %d steps, want %d", len(inventory), len(wantEnv))
	}
	for i, step := range inventory {
		if step.EnvVar != wantEnv[i] {
			t.Errorf("step %d EnvVar = %q, want %q", i, step.EnvVar, wantEnv[i])
		}
		if step.ValidateFn == nil {
			t.Errorf("step %q has no validator", step.HumanLabel)
		}
		if step.ParamType == ParamSecureString && step.EnvVar != "SQS_ENTITLEMENT_EVENTS" && !step.IsSecret {
			t.Errorf("secure step %q must mask input", step.HumanLabel)
		}
	}
}

func TestRun_WritesAllParameters(t *testing.T) {
	mock := newMockSSMClient(nil)
	stdin := strings.Join([]string{
		"postgres://u:p@db:5432/tiergate",
		"whsec_c2VjcmV0LXNlY3JldC1zZWNyZXQ=",
		"key_abcdefghijklmnopqrstuvwxyz",
		"redis://cache:6379/0",
		"https://sqs.us-east-1.amazonaws.com/000000000000/entitlements",
	}, "\n") + "\n"
	runner, stderr := newTestRunner(mock, stdin)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(mock.putCalls) != 5 {
		t.Fatalf("put calls = %d, want 5", len(mock.putCalls))
	}
	if got := mock.params["/dev/tiergate/webhook/secret"]; got != "whsec_c2VjcmV0LXNlY3JldC1zZWNyZXQ=" {
		t.Errorf("webhook secret = %q", got)
	}
	if mock.putCalls[4].Type != ssmtypes.ParameterTypeString {
		t.Errorf("queue URL type = %s, want String", mock.putCalls[4].Type)
	}

	out := stderr.String()
	if strings.Contains(out, "postgres://u:p@db") {
		t.Error("secret input echoed to stderr")
	}
	if !strings.Contains(out, "WEBHOOK_SECRET_SSM_PARAM=/dev/tiergate/webhook/secret") {
		t.Errorf("summary missing pointer line:\n%s", out)
	}
}

func TestRun_SkipOptional(t *testing.T) {
	mock := newMockSSMClient(nil)
	runner, stderr := newTestRunner(mock, "postgres://u:p@db/x\nsecretsecretsecret\nkey_abcdefghijklmnopqrstuvwxyz\n")
	runner.SkipOptional = true

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mock.putCalls) != 3 {
		t.Errorf("put calls = %d, want 3", len(mock.putCalls))
	}
	if strings.Contains(stderr.String(), "REDIS_URL_SSM_PARAM") {
		t.Error("skipped parameter listed in pointer summary")
	}
}

func TestRun_OptionalSkipsOnEmptyInput(t *testing.T) {
	mock := newMockSSMClient(nil)
	runner, _ := newTestRunner(mock, "postgres://u:p@db/x\nsecretsecretsecret\nkey_abcdefghijklmnopqrstuvwxyz\n\n\n")

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := mock.params["/dev/tiergate/dedupe/redis_url"]; ok {
		t.Error("optional parameter written from empty input")
	}
}

func TestRun_ExistingParameterKeptOrOverwritten(t *testing.T) {
	mock := newMockSSMClient(map[string]string{
		"/dev/tiergate/database/url":   "postgres://old",
		"/dev/tiergate/webhook/secret": "old-secret",
	})
	stdin := strings.Join([]string{
		"s",                  // keep database URL
		"o",                  // overwrite webhook secret
		"new-secret-value-1", // webhook secret
		"key_abcdefghijklmnopqrstuvwxyz",
	}, "\n") + "\n"
	runner, _ := newTestRunner(mock, stdin)
	runner.SkipOptional = true

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if mock.params["/dev/tiergate/database/url"] != "postgres://old" {
		t.Error("kept parameter was changed")
	}
	if mock.params["/dev/tiergate/webhook/secret"] != "new-secret-value-1" {
		t.Error("overwritten parameter not replaced")
	}
	for _, call := range mock.putCalls {
		if aws.ToString(call.Name) == "/dev/tiergate/webhook/secret" && !aws.ToBool(call.Overwrite) {
			t.Error("overwrite flag not set for existing parameter")
		}
	}
}

func TestPromptAndValidate_RetriesThenFails(t *testing.T) {
	runner, stderr := newTestRunner(newMockSSMClient(nil), strings.Repeat("bad\n", maxRetries))
	step := BootstrapStep{
		HumanLabel: "Webhook Secret",
		ValidateFn: func(context.Context, string) ValidationResult {
			return ValidationResult{Valid: false, Message: "too short"}
		},
	}

	_, err := runner.promptAndValidate(context.Background(), step)
	if err == nil || !strings.Contains(err.Error(), "maximum retries") {
		t.Fatalf("expected maximum retries error, got %v", err)
	}
	if strings.Count(stderr.String(), "Validation failed: too short") != maxRetries {
		t.Errorf("unexpected output:\n%s", stderr.String())
	}
}

func TestPromptAndValidate_RequiredEmptyInputRetry(t *testing.T) {
	runner, _ := newTestRunner(newMockSSMClient(nil), "\nr\nvalue-after-retry\n")
	step := BootstrapStep{HumanLabel: "Database URL", ValidateFn: alwaysValid}

	got, err := runner.promptAndValidate(context.Background(), step)
	if err != nil {
		t.Fatalf("promptAndValidate: %v", err)
	}
	if got != "value-after-retry" {
		t.Errorf("got %q", got)
	}
}

func TestPromptAndValidate_RequiredEmptyInputSkip(t *testing.T) {
	runner, _ := newTestRunner(newMockSSMClient(nil), "\nskip\n")
	step := BootstrapStep{HumanLabel: "Database URL", ValidateFn: alwaysValid}

	if _, err := runner.promptAndValidate(context.Background(), step); err != errSkipped {
		t.Fatalf("expected errSkipped, got %v", err)
	}
}

func TestPromptChoice_RepromptsOnUnknownAnswer(t *testing.T) {
	runner, stderr := newTestRunner(newMockSSMClient(nil), "maybe\nO\n")

	got, err := runner.promptChoice("? ", map[string]string{"o": "overwrite", "s": "skip"})
	if err != nil {
		t.Fatalf("promptChoice: %v", err)
	}
	if got != "overwrite" {
		t.Errorf("choice = %q", got)
	}
	if !strings.Contains(stderr.String(), `Unrecognized answer "maybe"`) {
		t.Errorf("missing reprompt notice:\n%s", stderr.String())
	}
}

func TestRun_PutFailureAborts(t *testing.T) {
	mock := newMockSSMClient(nil)
	mock.putErr = &ssmtypes.InternalServerError{Message: aws.String("boom")}
	runner, _ := newTestRunner(mock, "postgres://u:p@db/x\n")

	err := runner.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Database URL") {
		t.Fatalf("expected step failure, got %v", err)
	}
}
