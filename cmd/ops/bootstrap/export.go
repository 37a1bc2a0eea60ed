package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// localDefaults are appended to exported files so the result boots the
// server locally without further edits.
var localDefaults = []string{
	"APP_ENV=local",
	"LOG_LEVEL=debug",
	"DISPATCH_MODE=local",
	"ENTITLEMENT_REVOCATION_POLICY=retain",
	"DB_MIGRATE_ON_START=true",
}

// ExportEnvConfig controls ExportEnvFile.
type ExportEnvConfig struct {
	OutputPath string
	SSM        *SSMManager
	Stderr     io.Writer

	// IncludeLocalDefaults appends localDefaults.
	IncludeLocalDefaults bool

	// inventory overrides BuildInventory in tests.
	inventory []BootstrapStep
}

// ExportEnvFile reads every inventory parameter back from SSM and writes
// them as KEY=value lines. Missing parameters are skipped with a notice.
// The file is created with 0600 permissions.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("export path must not be empty")
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}
	inventory := cfg.inventory
	if inventory == nil {
		inventory = BuildInventory(NewValidatorWithDeps(nil, nil))
	}

	var lines []string
	lines = append(lines, "# Generated by cmd/ops/bootstrap from /"+cfg.SSM.env+"/tiergate/")

	for _, step := range inventory {
		path := cfg.SSM.SSMPath(step.SSMCategoryKey)

		exists, err := cfg.SSM.ParameterExists(ctx, path)
		if err != nil {
			return err
		}
		if !exists {
			fmt.Fprintf(cfg.Stderr, "  Not set, omitted: %s\n", step.EnvVar)
			continue
		}

		value, err := cfg.SSM.GetParameterValue(ctx, path, step.ParamType == ParamSecureString)
		if err != nil {
			return err
		}
		lines = append(lines, formatEnvLine(step.EnvVar, value))
	}

	if cfg.IncludeLocalDefaults {
		lines = append(lines, "", "# Local development defaults")
		lines = append(lines, localDefaults...)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(cfg.OutputPath, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}
	return nil
}

// formatEnvLine quotes values that godotenv would otherwise split or
// interpret.
func formatEnvLine(key, value string) string {
	if strings.ContainsAny(value, " #\"'\\\t") {
		escaped := strings.ReplaceAll(value, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return fmt.Sprintf(`%s="%s"`, key, escaped)
	}
	return key + "=" + value
}
