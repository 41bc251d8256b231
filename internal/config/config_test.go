package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"grid_monitor/internal/sge"
)

func load(t *testing.T, command Command, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("grid-monitor", pflag.ContinueOnError)
	BindFlags(fs)
	BindMonitorFlags(fs)
	fs.String(FlagOutput, "table", "")
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return Load(viper.New(), fs, command, fs.Args())
}

func TestLoadLocalDefault(t *testing.T) {
	cfg, err := load(t, CommandMonitor)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Mode != ModeLocal {
		t.Fatalf("expected local mode, got %s", cfg.Mode)
	}
	if cfg.Refresh != 5*time.Second {
		t.Fatalf("unexpected refresh default: %s", cfg.Refresh)
	}
	if strings.Join(cfg.Sentinels, ",") != "-,0.0" {
		t.Fatalf("unexpected default sentinels: %v", cfg.Sentinels)
	}
	if cfg.HeadroomWarn != 16*datasize.GB {
		t.Fatalf("unexpected headroom default: %s", cfg.HeadroomWarn)
	}
	if cfg.QstatCommand != sge.DefaultQstatCommand {
		t.Fatalf("unexpected qstat command: %q", cfg.QstatCommand)
	}
}

func TestLoadRemoteTarget(t *testing.T) {
	cfg, err := load(t, CommandReport, "cluster_alias")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Mode != ModeRemote {
		t.Fatalf("expected remote mode, got %s", cfg.Mode)
	}
	if cfg.Target != "cluster_alias" {
		t.Fatalf("unexpected target: %q", cfg.Target)
	}
	if cfg.Command != CommandReport {
		t.Fatalf("unexpected command: %s", cfg.Command)
	}
}

func TestLoadSSHFlagsWithoutTarget(t *testing.T) {
	if _, err := load(t, CommandMonitor, "--ssh-config", "/tmp/x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadRejectExtraPositional(t *testing.T) {
	if _, err := load(t, CommandMonitor, "a", "b"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadRejectsNonPositiveRefresh(t *testing.T) {
	if _, err := load(t, CommandMonitor, "--refresh", "0s"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadSentinelsFromFlagAndEnv(t *testing.T) {
	cfg, err := load(t, CommandReport, "--sentinels", "N/A,-")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if strings.Join(cfg.Sentinels, ",") != "N/A,-" {
		t.Fatalf("unexpected sentinels: %v", cfg.Sentinels)
	}

	t.Setenv("GRID_MONITOR_SENTINELS", "NA,0")
	cfg, err = load(t, CommandReport)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if strings.Join(cfg.Sentinels, ",") != "NA,0" {
		t.Fatalf("unexpected env sentinels: %v", cfg.Sentinels)
	}
}

func TestLoadEnvOverridesConfigFileAndFlagOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grid-monitor.yaml")
	body := "refresh: 20s\nqueue: bc.q\nheadroom-warn: 32GB\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := load(t, CommandQueueResources, "--config", path)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Refresh != 20*time.Second || cfg.Queue != "bc.q" {
		t.Fatalf("config file not applied: %+v", cfg)
	}
	if cfg.HeadroomWarn != 32*datasize.GB {
		t.Fatalf("unexpected headroom: %s", cfg.HeadroomWarn)
	}

	t.Setenv("GRID_MONITOR_REFRESH", "7s")
	cfg, err = load(t, CommandQueueResources, "--config", path)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Refresh != 7*time.Second {
		t.Fatalf("expected env to win over file, got %s", cfg.Refresh)
	}

	cfg, err = load(t, CommandQueueResources, "--config", path, "--refresh", "3s")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Refresh != 3*time.Second {
		t.Fatalf("expected flag to win over env, got %s", cfg.Refresh)
	}
}

func TestLoadRejectsBadHeadroomAndLogLevel(t *testing.T) {
	if _, err := load(t, CommandMonitor, "--headroom-warn", "lots"); err == nil {
		t.Fatalf("expected headroom error")
	}
	if _, err := load(t, CommandMonitor, "--log-level", "chatty"); err == nil {
		t.Fatalf("expected log level error")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := load(t, CommandMonitor, "--config", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoadSGESettingsInBothModes(t *testing.T) {
	cfg, err := load(t, CommandReport, "--sge-settings", "/opt/sge/default/common/settings.sh")
	if err != nil {
		t.Fatalf("expected settings to be allowed locally, got %v", err)
	}
	if cfg.SGESettings != "/opt/sge/default/common/settings.sh" {
		t.Fatalf("unexpected settings: %q", cfg.SGESettings)
	}

	t.Setenv("GRID_MONITOR_SGE_SETTINGS", "/shared/sge/settings.sh")
	cfg, err = load(t, CommandReport, "cluster_alias")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.SGESettings != "/shared/sge/settings.sh" {
		t.Fatalf("expected settings from env, got %q", cfg.SGESettings)
	}
}
