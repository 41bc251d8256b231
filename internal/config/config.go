package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"grid_monitor/internal/logger"
	"grid_monitor/internal/sge"
)

type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

type Command string

const (
	CommandMonitor        Command = "monitor"
	CommandReport         Command = "report"
	CommandUsers          Command = "users"
	CommandQueueResources Command = "queue-resources"
	CommandSubmit         Command = "submit"
	CommandTaskFiles      Command = "task-files"
	CommandExport         Command = "export"
	CommandDoctor         Command = "doctor"
	CommandDryRun         Command = "dry-run"
)

const EnvPrefix = "GRID_MONITOR"

// flag names shared by every command
const (
	FlagConfig         = "config"
	FlagRefresh        = "refresh"
	FlagConnectTimeout = "connect-timeout"
	FlagCommandTimeout = "command-timeout"
	FlagSSHConfig      = "ssh-config"
	FlagIdentityFile   = "identity-file"
	FlagPort           = "port"
	FlagSGESettings    = "sge-settings"
	FlagHostCommand    = "host-command"
	FlagQstatCommand   = "qstat-command"
	FlagQueue          = "queue"
	FlagSentinels      = "sentinels"
	FlagHeadroomWarn   = "headroom-warn"
	FlagLogLevel       = "log-level"
	FlagLogType        = "log-type"
	FlagNoColor        = "no-color"
	FlagCompact        = "compact"
	FlagOnce           = "once"
	FlagDuration       = "duration"
	FlagListen         = "listen"
	FlagOutput         = "output"
)

type Config struct {
	Command        Command
	Mode           Mode
	Target         string
	Refresh        time.Duration
	ConnectTimeout time.Duration
	CommandTimeout time.Duration
	SSHConfig      string
	IdentityFile   string
	Port           int
	SGESettings    string
	NoColor        bool
	Compact        bool
	Once           bool
	Duration       time.Duration

	HostCommand  string
	QstatCommand string
	Queue        string
	Sentinels    sge.Sentinels
	// HeadroomWarn highlights nodes whose usable memory falls below it.
	HeadroomWarn  datasize.ByteSize
	LogLevel      string
	LogType       string
	ConfigFile    string
	ListenAddress string
	Output        string
}

func Defaults() Config {
	return Config{
		Command:        CommandMonitor,
		Refresh:        5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 30 * time.Second,
		HostCommand:    sge.DefaultHostCommand,
		QstatCommand:   sge.DefaultQstatCommand,
		Queue:          "st.q",
		Sentinels:      append(sge.Sentinels(nil), sge.DefaultSentinels...),
		HeadroomWarn:   16 * datasize.GB,
		ListenAddress:  ":9465",
		Output:         "table",
	}
}

// BindFlags registers the flags every command understands.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String(FlagConfig, "", "optional YAML config file; flags and GRID_MONITOR_* env vars take precedence")
	fs.Duration(FlagRefresh, d.Refresh, "poll interval for collecting new scheduler snapshots")
	fs.Duration(FlagConnectTimeout, d.ConnectTimeout, "max SSH connection setup time per command (remote mode)")
	fs.Duration(FlagCommandTimeout, d.CommandTimeout, "max runtime for each scheduler command")
	fs.String(FlagSSHConfig, "", "alternate OpenSSH config path (remote mode, supports Host aliases/ProxyJump)")
	fs.String(FlagIdentityFile, "", "explicit SSH private key path passed to ssh -i (remote mode)")
	fs.Int(FlagPort, 0, "override SSH port for remote target (remote mode)")
	fs.String(FlagSGESettings, "", "SGE settings.sh sourced before each scheduler command (path on the submit host)")
	fs.String(FlagHostCommand, d.HostCommand, "command printing the qhost node table")
	fs.String(FlagQstatCommand, d.QstatCommand, "base qstat command; XML detail flags are appended when missing")
	fs.String(FlagQueue, d.Queue, "queue inspected by queue-resources")
	fs.StringSlice(FlagSentinels, d.Sentinels, "raw values meaning a node field is unavailable")
	fs.String(FlagHeadroomWarn, d.HeadroomWarn.String(), "highlight nodes whose usable memory is below this size")
	fs.String(FlagLogLevel, "", "log level: trace, debug, info, warn, error (default LOG_LEVEL or info)")
	fs.String(FlagLogType, "", "log format: text or json (default LOG_TYPE or text)")
}

// BindMonitorFlags registers the live monitor flags.
func BindMonitorFlags(fs *pflag.FlagSet) {
	fs.Bool(FlagNoColor, false, "disable ANSI color styling")
	fs.Bool(FlagCompact, false, "force compact TUI layout for smaller terminals")
	fs.Bool(FlagOnce, false, "collect one snapshot, print summary, and exit")
	fs.Duration(FlagDuration, 0, "optional total runtime limit; 0 means run until interrupted")
}

// Load layers flags over GRID_MONITOR_* env vars over the optional config
// file over defaults. args are the positional arguments left after flag
// parsing; the first one is the optional ssh target.
func Load(v *viper.Viper, fs *pflag.FlagSet, command Command, args []string) (Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString(FlagConfig); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	d := Defaults()
	cfg := Config{
		Command:        command,
		Refresh:        durationOr(v, FlagRefresh, d.Refresh),
		ConnectTimeout: durationOr(v, FlagConnectTimeout, d.ConnectTimeout),
		CommandTimeout: durationOr(v, FlagCommandTimeout, d.CommandTimeout),
		SSHConfig:      v.GetString(FlagSSHConfig),
		IdentityFile:   v.GetString(FlagIdentityFile),
		Port:           v.GetInt(FlagPort),
		SGESettings:    v.GetString(FlagSGESettings),
		NoColor:        v.GetBool(FlagNoColor),
		Compact:        v.GetBool(FlagCompact),
		Once:           v.GetBool(FlagOnce),
		Duration:       v.GetDuration(FlagDuration),
		HostCommand:    stringOr(v, FlagHostCommand, d.HostCommand),
		QstatCommand:   stringOr(v, FlagQstatCommand, d.QstatCommand),
		Queue:          stringOr(v, FlagQueue, d.Queue),
		Sentinels:      splitList(v.GetStringSlice(FlagSentinels)),
		LogLevel:       v.GetString(FlagLogLevel),
		LogType:        v.GetString(FlagLogType),
		ConfigFile:     v.GetString(FlagConfig),
		ListenAddress:  stringOr(v, FlagListen, d.ListenAddress),
		Output:         stringOr(v, FlagOutput, d.Output),
	}
	if !v.IsSet(FlagSentinels) {
		cfg.Sentinels = d.Sentinels
	}

	headroom := stringOr(v, FlagHeadroomWarn, d.HeadroomWarn.String())
	size, err := datasize.ParseString(strings.ReplaceAll(headroom, " ", ""))
	if err != nil {
		return Config{}, fmt.Errorf("--%s %q: %w", FlagHeadroomWarn, headroom, err)
	}
	cfg.HeadroomWarn = size

	if len(args) > 1 {
		return Config{}, fmt.Errorf("expected zero or one positional target, got %d", len(args))
	}
	if len(args) == 1 {
		cfg.Target = strings.TrimSpace(args[0])
	}
	if cfg.Target == "" {
		cfg.Mode = ModeLocal
	} else {
		cfg.Mode = ModeRemote
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Refresh <= 0 {
		return fmt.Errorf("--refresh must be > 0")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("--connect-timeout must be > 0")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("--command-timeout must be > 0")
	}
	if c.Duration < 0 {
		return fmt.Errorf("--duration must be >= 0")
	}
	if c.Port < 0 {
		return fmt.Errorf("--port must be >= 0")
	}
	if len(c.Sentinels) == 0 {
		return fmt.Errorf("--sentinels must name at least one value")
	}
	if strings.TrimSpace(c.HostCommand) == "" || strings.TrimSpace(c.QstatCommand) == "" {
		return fmt.Errorf("--host-command and --qstat-command must not be empty")
	}
	if c.Command == CommandQueueResources && strings.TrimSpace(c.Queue) == "" {
		return fmt.Errorf("--queue must not be empty")
	}
	switch c.Output {
	case "table", "csv", "tsv":
	default:
		return fmt.Errorf("--output must be one of table, csv, tsv")
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}

	if c.Mode == ModeLocal {
		if c.SSHConfig != "" || c.IdentityFile != "" || c.Port != 0 {
			return fmt.Errorf("ssh-specific flags require a remote target")
		}
	}
	return nil
}

func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	if !v.IsSet(key) {
		return fallback
	}
	return v.GetDuration(key)
}

func stringOr(v *viper.Viper, key, fallback string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return fallback
}

// splitList accepts both repeated values and comma-separated strings, which is
// how env vars and YAML scalars arrive.
func splitList(values []string) sge.Sentinels {
	var out sge.Sentinels
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
