package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// structValidator is shared across calls; it caches struct metadata internally.
var structValidator = validator.New()

// Validate checks the configuration for errors.
//
// Struct tags cover range and enum checks; cross-field rules that tags cannot
// express are checked here. Validate does not mutate the configuration, so it
// can be called on candidate snapshots during hot reload.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry: endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled && cfg.Telemetry.Profiling.Endpoint == "" {
		return fmt.Errorf("telemetry: profiling endpoint is required when profiling is enabled")
	}

	if err := validateSharesSection(&cfg.Shares); err != nil {
		return err
	}

	if err := validateGroupsSection(&cfg.Groups); err != nil {
		return err
	}

	if cfg.Agents.Listen != "" && len(cfg.Agents.Secret) < 16 {
		return fmt.Errorf("agents: secret must be at least 16 characters when the agent listener is enabled")
	}

	if len(cfg.API.Users) > 0 && len(cfg.API.JWT.Secret) < 32 {
		return fmt.Errorf("api: jwt.secret must be at least 32 characters when api users are configured")
	}

	if cfg.Database.Type == "postgres" {
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database: postgres host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database: postgres database name is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database: postgres user is required")
		}
	}

	return nil
}

// validateSharesSection checks share roots and filters.
//
// Root parsing proper lives with the share index; this pass only rejects
// entries that can never parse, so a bad edit fails at load time rather than
// at the first rescan.
func validateSharesSection(cfg *SharesConfig) error {
	seenAliases := make(map[string]string, len(cfg.Roots))

	for _, raw := range cfg.Roots {
		root := strings.TrimSpace(raw)
		root = strings.TrimPrefix(strings.TrimPrefix(root, "!"), "-")

		alias := ""
		if strings.HasPrefix(root, "[") {
			end := strings.Index(root, "]")
			if end < 0 {
				return fmt.Errorf("shares: root %q has an unterminated alias", raw)
			}
			alias = root[1:end]
			root = root[end+1:]
			if alias == "" {
				return fmt.Errorf("shares: root %q has an empty alias", raw)
			}
		}

		if root == "" {
			return fmt.Errorf("shares: root %q has an empty path", raw)
		}

		if alias != "" {
			if prior, dup := seenAliases[alias]; dup {
				return fmt.Errorf("shares: alias %q used by both %q and %q", alias, prior, raw)
			}
			seenAliases[alias] = raw
		}
	}

	for _, filter := range cfg.Filters {
		if _, err := regexp.Compile(filter); err != nil {
			return fmt.Errorf("shares: invalid filter %q: %w", filter, err)
		}
	}

	return nil
}

// validateGroupsSection rejects user-defined groups shadowing built-ins.
func validateGroupsSection(cfg *GroupsConfig) error {
	for name := range cfg.UserDefined {
		switch strings.ToLower(name) {
		case "default", "leechers", "blacklisted":
			return fmt.Errorf("groups: %q is a built-in group name", name)
		}
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("groups: group name cannot be empty")
		}
	}
	return nil
}
