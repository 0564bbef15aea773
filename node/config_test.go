package node

import "testing"

func TestDefaultConfigValidates(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("DefaultConfig should validate, got: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"empty datadir", func(c *Config) { c.DataDir = "" }, true},
		{"empty ledger endpoint, not dry-run", func(c *Config) { c.LedgerEndpoint = "" }, true},
		{"empty ledger endpoint, dry-run ok", func(c *Config) { c.LedgerEndpoint = ""; c.DryRun = true }, false},
		{"zero tick interval", func(c *Config) { c.TickInterval = 0 }, true},
		{"zero scan budget", func(c *Config) { c.ScanTimeBudget = 0 }, true},
		{"negative deposit cap", func(c *Config) { c.DepositCap = -1 }, true},
		{"negative chaff multiplier", func(c *Config) { c.ChaffMultiplier = -1 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
		})
	}
}

func TestInitDataDirCreatesSubdirs(t *testing.T) {
	c := DefaultConfig()
	c.DataDir = t.TempDir()

	if err := c.InitDataDir(); err != nil {
		t.Fatalf("InitDataDir: %v", err)
	}
	if err := c.InitDataDir(); err != nil {
		t.Fatalf("InitDataDir should be idempotent, got: %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	c := DefaultConfig()
	c.DataDir = "/var/lib/litghost-operator"

	if got := c.ResolvePath("skipped"); got != "/var/lib/litghost-operator/skipped" {
		t.Errorf("ResolvePath relative = %q, want joined path", got)
	}
	if got := c.ResolvePath("/tmp/abs"); got != "/tmp/abs" {
		t.Errorf("ResolvePath absolute = %q, want unchanged", got)
	}
}
