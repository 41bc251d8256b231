package transport

import "context"

// LocalTransport runs scheduler commands in a login shell on this host.
type LocalTransport struct {
	settings string
}

// NewLocalTransport returns a transport that sources settings (an SGE
// settings.sh) before every command when it is non-empty.
func NewLocalTransport(settings string) *LocalTransport {
	return &LocalTransport{settings: settings}
}

func (t *LocalTransport) Describe() string {
	return "local"
}

func (t *LocalTransport) Run(ctx context.Context, command string) (RunResult, error) {
	return runProcess(ctx, t.Describe(), command, "bash", "-lc", WithSettings(t.settings, command))
}
