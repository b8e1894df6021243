// Command authz-lint validates an LMS permission and role table and prints
// each role's effective permissions.
//
//	authz-lint -file roles.yaml
//	authz-lint -s3-bucket lms-config -s3-key authz/roles.yaml -format json
//	authz-lint -builtin > roles.yaml
//
// It exits 1 when the table is invalid and 2 on bad usage.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/lmsauthz/pkg/definitions"
	"github.com/platinummonkey/lmsauthz/pkg/rbac"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
)

// Config holds the linter's command-line settings
type Config struct {
	File     string
	S3       definitions.S3Config
	Builtin  bool
	Format   string
	LogLevel string
	Timeout  time.Duration
}

// roleSummary is one role as reported by the linter
type roleSummary struct {
	ID             string   `json:"id"`
	HierarchyLevel int      `json:"hierarchy_level"`
	Parent         string   `json:"parent,omitempty"`
	Ancestors      []string `json:"ancestors"`
	Permissions    []string `json:"effective_permissions"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	config, err := parseFlags(args, stderr)
	if err != nil {
		return exitUsage
	}
	logger := setupLogger(config.LogLevel, stderr)

	if config.Builtin {
		data, err := rbac.DefaultDefinition().Marshal()
		if err != nil {
			logger.Errorf("Failed to render built-in table: %v", err)
			return exitInvalid
		}
		_, _ = stdout.Write(data)
		return exitOK
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	src, err := newSource(ctx, config)
	if err != nil {
		logger.Errorf("%v", err)
		return exitUsage
	}

	logger.Debugf("Loading definition table from %s", src)
	catalog, err := definitions.LoadCatalog(ctx, src)
	if err != nil {
		reportProblems(logger, err)
		return exitInvalid
	}
	logger.Infof("%s is valid: %d permissions, %d roles", src, catalog.Permissions.Len(), catalog.Roles.Len())

	summaries, err := summarize(catalog)
	if err != nil {
		logger.Errorf("Failed to summarize roles: %v", err)
		return exitInvalid
	}
	if err := render(stdout, config.Format, summaries); err != nil {
		logger.Errorf("Failed to write report: %v", err)
		return exitInvalid
	}
	return exitOK
}

func parseFlags(args []string, stderr io.Writer) (*Config, error) {
	config := &Config{}

	fs := flag.NewFlagSet("authz-lint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&config.File, "file", "", "Path to a YAML or JSON definition table")
	fs.StringVar(&config.S3.Bucket, "s3-bucket", "", "S3 bucket holding the definition table")
	fs.StringVar(&config.S3.Key, "s3-key", "", "S3 object key of the definition table")
	fs.StringVar(&config.S3.Region, "s3-region", getEnv("AWS_REGION", "us-east-1"), "S3 region")
	fs.StringVar(&config.S3.Endpoint, "s3-endpoint", "", "Custom S3 endpoint (MinIO, localstack)")
	fs.BoolVar(&config.S3.UsePathStyle, "s3-path-style", false, "Use path-style S3 addressing")
	fs.BoolVar(&config.Builtin, "builtin", false, "Print the built-in LMS table as YAML and exit")
	fs.StringVar(&config.Format, "format", "text", "Output format (text, json)")
	fs.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.DurationVar(&config.Timeout, "timeout", 30*time.Second, "Timeout for fetching the table")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if config.Format != "text" && config.Format != "json" {
		fmt.Fprintf(stderr, "invalid -format %q (must be text or json)\n", config.Format)
		return nil, errors.New("invalid format")
	}
	if !config.Builtin && config.File == "" && config.S3.Bucket == "" {
		fmt.Fprintln(stderr, "one of -file, -s3-bucket or -builtin is required")
		fs.Usage()
		return nil, errors.New("no table given")
	}
	return config, nil
}

func setupLogger(logLevel string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger
}

func newSource(ctx context.Context, config *Config) (definitions.Source, error) {
	if config.File != "" {
		return definitions.FileSource{Path: config.File}, nil
	}
	if config.S3.Key == "" {
		return nil, errors.New("-s3-key is required with -s3-bucket")
	}
	return definitions.NewS3Source(ctx, config.S3)
}

// reportProblems logs every problem in a rejected table on its own line
func reportProblems(logger *logrus.Logger, err error) {
	lines := strings.Split(err.Error(), "\n")
	logger.Errorf("Definition table rejected with %d problem(s)", len(lines))
	for _, line := range lines {
		logger.Error("  - " + line)
	}
}

func summarize(catalog *rbac.Catalog) ([]roleSummary, error) {
	roles := catalog.Roles.List()
	out := make([]roleSummary, 0, len(roles))
	for _, role := range roles {
		perms, err := catalog.Roles.EffectivePermissions(role.ID)
		if err != nil {
			return nil, err
		}
		ancestors, err := catalog.Roles.Ancestors(role.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, roleSummary{
			ID:             role.ID,
			HierarchyLevel: role.HierarchyLevel,
			Parent:         role.ParentRoleID,
			Ancestors:      ancestors,
			Permissions:    perms,
		})
	}
	return out, nil
}

func render(w io.Writer, format string, summaries []roleSummary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tLEVEL\tINHERITS\tPERMISSIONS")
	for _, s := range summaries {
		inherits := strings.Join(s.Ancestors, " > ")
		if inherits == "" {
			inherits = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.ID, s.HierarchyLevel, inherits, strings.Join(s.Permissions, ","))
	}
	return tw.Flush()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
