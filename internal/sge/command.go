package sge

import (
	"context"
	"fmt"
	"strings"

	"grid_monitor/internal/transport"
)

// DefaultXMLFlags are the qstat flags that make the XML payload carry
// extended accounting, resource requests, array tasks and priorities.
var DefaultXMLFlags = []string{"-xml", "-ext", "-r", "-t", "-pri"}

// AppendFlags appends every flag not already present as a whitespace-separated
// token of cmd. Applying it twice yields the same command.
func AppendFlags(cmd string, flags []string) string {
	present := make(map[string]struct{})
	for _, token := range strings.Fields(cmd) {
		present[token] = struct{}{}
	}

	out := strings.TrimSpace(cmd)
	for _, flag := range flags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if _, ok := present[flag]; ok {
			continue
		}
		present[flag] = struct{}{}
		out += " " + flag
	}
	return out
}

// Fetch runs base with flags appended and returns its stdout. A failed
// command returns no payload and an error wrapping *transport.RunError.
func Fetch(ctx context.Context, tr transport.Transport, base string, flags []string) (string, error) {
	command := AppendFlags(base, flags)
	res, err := tr.Run(ctx, command)
	if err != nil {
		return "", fmt.Errorf("run %q: %w", command, err)
	}
	return res.Stdout, nil
}
