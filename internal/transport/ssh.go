package transport

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// keepalive and multiplexing options passed to every ssh invocation
var multiplexOptions = []string{
	"ConnectionAttempts=1",
	"ServerAliveInterval=15",
	"ServerAliveCountMax=3",
	"TCPKeepAlive=yes",
	"ControlMaster=auto",
	"ControlPersist=300",
	"StreamLocalBindUnlink=yes",
}

type SSHOptions struct {
	// Target is an ssh destination or Host alias of the SGE submit host.
	Target         string
	ConfigPath     string
	IdentityFile   string
	Port           int
	ConnectTimeout time.Duration
	// Settings is a settings.sh path on the target, sourced before each
	// command for login shells that do not set up SGE.
	Settings string
}

type SSHTransport struct {
	opts        SSHOptions
	controlPath string
}

func NewSSHTransport(opts SSHOptions) *SSHTransport {
	return &SSHTransport{
		opts:        opts,
		controlPath: controlSocket(opts),
	}
}

func (t *SSHTransport) Describe() string {
	return "ssh:" + t.opts.Target
}

// Run executes command through a login shell on the submit host. Commands to
// the same target share one control socket.
func (t *SSHTransport) Run(ctx context.Context, command string) (RunResult, error) {
	return runProcess(ctx, t.Describe(), command, "ssh", t.buildSSHArgs(command)...)
}

func (t *SSHTransport) buildSSHArgs(command string) []string {
	args := make([]string, 0, 2*len(multiplexOptions)+12)
	if secs := connectTimeoutSeconds(t.opts.ConnectTimeout); secs > 0 {
		args = append(args, "-o", "ConnectTimeout="+strconv.Itoa(secs))
	}
	for _, opt := range multiplexOptions {
		args = append(args, "-o", opt)
	}
	if t.controlPath != "" {
		args = append(args, "-o", "ControlPath="+t.controlPath)
	}

	if t.opts.ConfigPath != "" {
		args = append(args, "-F", t.opts.ConfigPath)
	}
	if t.opts.IdentityFile != "" {
		args = append(args, "-i", t.opts.IdentityFile)
	}
	if t.opts.Port > 0 {
		args = append(args, "-p", strconv.Itoa(t.opts.Port))
	}

	return append(args, t.opts.Target, "bash -lc "+ShellQuote(WithSettings(t.opts.Settings, command)))
}

// connectTimeoutSeconds rounds up to whole seconds, the unit ssh accepts.
func connectTimeoutSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return max(1, int(math.Ceil(d.Seconds())))
}

// controlSocket derives a stable socket path from everything that changes
// which connection ssh would open.
func controlSocket(opts SSHOptions) string {
	key := fmt.Sprintf("%s|%s|%s|%d", opts.Target, opts.ConfigPath, opts.IdentityFile, opts.Port)
	sum := sha1.Sum([]byte(key))
	dir := filepath.Join(os.TempDir(), "grid-monitor-ssh")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "cm-"+hex.EncodeToString(sum[:8]))
}
