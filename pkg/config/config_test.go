package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/yurifrl/meisai/pkg/models"
)

func TestBuildDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Build("", nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Storage.Dir != "./storage" {
		t.Errorf("unexpected storage dir %s", cfg.Storage.Dir)
	}
	if cfg.Timezone != "Asia/Tokyo" {
		t.Errorf("unexpected timezone %s", cfg.Timezone)
	}
	if cfg.Portal.DownloadTimeout != 10*time.Second {
		t.Errorf("unexpected download timeout %s", cfg.Portal.DownloadTimeout)
	}
	if !cfg.Portal.Headless {
		t.Error("expected headless by default")
	}
	if len(cfg.Periods) != 2 || cfg.Periods[0] != models.CurrentMonth || cfg.Periods[1] != models.NextMonth {
		t.Errorf("unexpected periods %+v", cfg.Periods)
	}
	if cfg.Notify.Channel != ChannelLine {
		t.Errorf("unexpected channel %s", cfg.Notify.Channel)
	}
}

func TestBuildEnvironment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ID", "user")
	t.Setenv("PASS", "secret")
	t.Setenv("LINE_ACCESS_TOKEN", "token")
	t.Setenv("MEISAI_STORAGE_DIR", "/tmp/exports")

	cfg, err := Build("", nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Credentials.ID != "user" || cfg.Credentials.Password != "secret" {
		t.Errorf("unexpected credentials %+v", cfg.Credentials)
	}
	if cfg.Notify.Line.Token != "token" {
		t.Errorf("unexpected token %q", cfg.Notify.Line.Token)
	}
	if cfg.Storage.Dir != "/tmp/exports" {
		t.Errorf("unexpected storage dir %s", cfg.Storage.Dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestBuildFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.yaml")
	content := `
timezone: UTC
storage:
  dir: ./exports
  encoding: shift_jis
portal:
  page_settle: 1s
periods:
  - name: next
    tab: 0
notify:
  channel: stdout
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("storage", "", "")
	if err := flags.Parse([]string{"--storage", "/data"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Build(path, flags)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.Storage.Dir != "/data" {
		t.Errorf("flag did not override file: %s", cfg.Storage.Dir)
	}
	if cfg.Storage.Encoding != "shift_jis" {
		t.Errorf("unexpected encoding %s", cfg.Storage.Encoding)
	}
	if cfg.Portal.PageSettle != time.Second {
		t.Errorf("unexpected settle %s", cfg.Portal.PageSettle)
	}
	if len(cfg.Periods) != 1 || cfg.Periods[0] != models.NextMonth {
		t.Errorf("unexpected periods %+v", cfg.Periods)
	}
	if cfg.Notify.Channel != ChannelStdout {
		t.Errorf("unexpected channel %s", cfg.Notify.Channel)
	}
	if got := cfg.Enavi().PageSettle; got != time.Second {
		t.Errorf("portal settle not carried over: %s", got)
	}
}

func TestBuildMissingConfigFile(t *testing.T) {
	if _, err := Build(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for explicit missing config file")
	}
}

func TestBuildLoadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(func() { os.Unsetenv("MEISAI_HISTORY_PATH") })
	if err := os.WriteFile(filepath.Join(dir, EnvFile), []byte("MEISAI_HISTORY_PATH=runs.db\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Build("", nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if cfg.History.Path != "runs.db" {
		t.Errorf("unexpected history path %q", cfg.History.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"missing id", Config{Credentials: Credentials{Password: "p"}, Periods: []models.Period{models.CurrentMonth}}, "ID"},
		{"missing password", Config{Credentials: Credentials{ID: "u"}, Periods: []models.Period{models.CurrentMonth}}, "PASS"},
		{"no periods", Config{Credentials: Credentials{ID: "u", Password: "p"}}, "periods"},
		{"bad timezone", Config{Credentials: Credentials{ID: "u", Password: "p"}, Periods: []models.Period{models.CurrentMonth}, Timezone: "Mars/Olympus"}, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			var cErr *ConfigurationError
			if !errors.As(err, &cErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cErr.Field)
			}
		})
	}
}
