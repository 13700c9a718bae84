// Command devtoken mints a signed actor token for local development against
// esim-service. It signs with JWT_SIGNING_KEY, read the same way the server reads it.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"esim-service/internal/access"
	"esim-service/internal/model"
	"esim-service/pkg/config"
	"esim-service/pkg/jwtutil"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		subject    string
		email      string
		tenantID   string
		tenantName string
		role       string
		hours      int
	)

	flagSet := pflag.NewFlagSet("devtoken", pflag.ContinueOnError)
	flagSet.StringVar(&subject, "subject", "dev-user", "token subject (user id)")
	flagSet.StringVar(&email, "email", "", "user email")
	flagSet.StringVarP(&tenantID, "tenant", "t", "", "tenant id (required)")
	flagSet.StringVar(&tenantName, "tenant-name", "", "tenant display name")
	flagSet.StringVarP(&role, "role", "r", string(model.RoleOperator), "role: admin, operator or viewer")
	flagSet.IntVar(&hours, "hours", 0, "token lifetime in hours (default JWT_EXPIRATION_HOURS)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if strings.TrimSpace(tenantID) == "" {
		return errors.New("--tenant is required")
	}
	role = strings.ToLower(role)
	if access.Rank(model.Role(role)) == 0 {
		return fmt.Errorf("unknown role %q", role)
	}

	cfg, err := config.Load("devtoken")
	if err != nil {
		return err
	}
	jwtCfg := cfg.JWT
	if hours > 0 {
		jwtCfg.ExpirationHours = hours
	}
	jwtutil.Initialize(&jwtCfg)

	token, err := jwtutil.GenerateTokenWithTenant(subject, email, tenantID, tenantName, role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `devtoken mints a bearer token for esim-service.

Usage:
  devtoken --tenant <id> [--role admin|operator|viewer] [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
