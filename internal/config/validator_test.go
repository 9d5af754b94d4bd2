package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{"valid defaults", func(*Config) {}, nil},
		{"empty output", func(c *Config) { c.Capture.Output = "  " }, []string{"capture.output"}},
		{"bad echo", func(c *Config) { c.Capture.Echo = "yes" }, []string{"capture.echo"}},
		{"zero poll interval", func(c *Config) { c.Capture.PollIntervalMs = 0 }, []string{"capture.poll_interval_ms"}},
		{"huge poll interval", func(c *Config) { c.Capture.PollIntervalMs = maxPollIntervalMs + 1 }, []string{"capture.poll_interval_ms"}},
		{"negative stop timeout", func(c *Config) { c.Capture.StopTimeoutMs = -1 }, []string{"capture.stop_timeout_ms"}},
		{"negative keep", func(c *Config) { c.Capture.Keep = -1 }, []string{"capture.keep"}},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, []string{"logging.level"}},
		{"empty level allowed", func(c *Config) { c.Logging.Level = "" }, nil},
		{"zero size", func(c *Config) { c.Logging.MaxSizeMB = 0 }, []string{"logging.max_size_mb"}},
		{"huge size", func(c *Config) { c.Logging.MaxSizeMB = maxLogSizeMB + 1 }, []string{"logging.max_size_mb"}},
		{"negative backups", func(c *Config) { c.Logging.MaxBackups = -2 }, []string{"logging.max_backups"}},
		{
			"several at once",
			func(c *Config) {
				c.Capture.Echo = ""
				c.Logging.MaxBackups = -1
			},
			[]string{"capture.echo", "logging.max_backups"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			if len(errs) != len(tt.fields) {
				t.Fatalf("got %d errors %v, want fields %v", len(errs), ValidationErrors(errs), tt.fields)
			}
			for i, field := range tt.fields {
				if errs[i].Field != field {
					t.Errorf("error %d field = %q, want %q", i, errs[i].Field, field)
				}
			}
		})
	}
}

func TestValidationErrors_Error(t *testing.T) {
	if got := (ValidationErrors{}).Error(); got != "" {
		t.Errorf("empty = %q", got)
	}

	one := ValidationErrors{{Field: "capture.echo", Value: "x", Message: "bad"}}
	if got := one.Error(); got != "capture.echo: bad (got: x)" {
		t.Errorf("single = %q", got)
	}

	two := append(one, ValidationError{Field: "logging.level", Value: "y", Message: "bad"})
	got := two.Error()
	if !strings.HasPrefix(got, "2 validation errors:") || !strings.Contains(got, "2. logging.level") {
		t.Errorf("multiple = %q", got)
	}
}
