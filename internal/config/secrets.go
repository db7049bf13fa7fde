package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Admin
	out.Admin = cfg.Admin
	redact(&out.Admin.APIToken)
	redact(&out.Admin.TokenPassword)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = make([]string, len(cfg.Server.CORSOrigins))
		copy(out.Server.CORSOrigins, cfg.Server.CORSOrigins)
	}
	if cfg.Admin.AuthorizedCallers != nil {
		out.Admin.AuthorizedCallers = make([]string, len(cfg.Admin.AuthorizedCallers))
		copy(out.Admin.AuthorizedCallers, cfg.Admin.AuthorizedCallers)
	}
	if cfg.Admin.ApprovedTokens != nil {
		out.Admin.ApprovedTokens = make([]string, len(cfg.Admin.ApprovedTokens))
		copy(out.Admin.ApprovedTokens, cfg.Admin.ApprovedTokens)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
