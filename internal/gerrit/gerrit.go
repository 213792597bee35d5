// Package gerrit talks to a Gerrit review server over its SSH command
// interface.
package gerrit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// Client is the narrow review-server surface the reconciliation engine
// depends on. Implementations must be safe to call sequentially for the
// duration of a run.
type Client interface {
	// ListProjects returns the names of all projects the server knows.
	ListProjects(ctx context.Context) ([]string, error)
	// ListProjectRefs returns the ref names that exist for a project.
	ListProjectRefs(ctx context.Context, project string) ([]string, error)
	// CreateProject creates a project record by name.
	CreateProject(ctx context.Context, name string) error
	// SetDescription updates a project's description field.
	SetDescription(ctx context.Context, name, description string) error
	// GroupUUID resolves a group name to its server identifier. It returns
	// an empty string (and no error) when the group does not exist.
	GroupUUID(ctx context.Context, name string) (string, error)
	// CreateGroup creates a group by name.
	CreateGroup(ctx context.Context, name string) error
	// Replicate triggers server-side replication for a project.
	Replicate(ctx context.Context, name string) error
}

// SSHClient implements Client over a single SSH connection, dialed lazily
// and reused for every command in a run.
type SSHClient struct {
	addr   string
	config *ssh.ClientConfig
	logger *slog.Logger

	conn *ssh.Client
}

const dialTimeout = 10 * time.Second

// NewSSHClient prepares a client for the server at host:port, authenticating
// as user with the private key at keyFile. No connection is made until the
// first command.
func NewSSHClient(host string, port int, user, keyFile string, logger *slog.Logger) (*SSHClient, error) {
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read gerrit key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gerrit key: %w", err)
	}

	return &SSHClient{
		addr: net.JoinHostPort(host, fmt.Sprintf("%d", port)),
		config: &ssh.ClientConfig{
			User: user,
			Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
			// The original deployment model pins trust via the key pair and
			// disables host key checking.
			HostKeyCallback: ssh.InsecureIgnoreHostKey(),
			Timeout:         dialTimeout,
		},
		logger: logger,
	}, nil
}

// Close tears down the connection if one was established.
func (c *SSHClient) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *SSHClient) dial() error {
	if c.conn != nil {
		return nil
	}
	conn, err := ssh.Dial("tcp", c.addr, c.config)
	if err != nil {
		return fmt.Errorf("failed to connect to gerrit at %s: %w", c.addr, err)
	}
	c.conn = conn
	return nil
}

// run executes one remote command in a fresh session and returns its
// combined output.
func (c *SSHClient) run(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := c.dial(); err != nil {
		return "", err
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to open gerrit session: %w", err)
	}
	defer func() {
		_ = session.Close()
	}()

	c.logger.Debug("gerrit command", "cmd", command)
	output, err := session.CombinedOutput(command)
	out := strings.TrimSpace(string(output))
	if err != nil {
		return out, fmt.Errorf("gerrit command %q failed: %w: %s", command, err, out)
	}
	return out, nil
}

// ListProjects returns the names of all projects the server knows.
func (c *SSHClient) ListProjects(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "gerrit ls-projects")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// ListProjectRefs returns the ref names visible for a project.
func (c *SSHClient) ListProjectRefs(ctx context.Context, project string) ([]string, error) {
	cmd := fmt.Sprintf("gerrit ls-user-refs --project %s --user %s",
		quote(project), quote(c.config.User))
	out, err := c.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// CreateProject creates a project record by name.
func (c *SSHClient) CreateProject(ctx context.Context, name string) error {
	_, err := c.run(ctx, "gerrit create-project "+quote(name))
	return err
}

// SetDescription updates a project's description field.
func (c *SSHClient) SetDescription(ctx context.Context, name, description string) error {
	cmd := fmt.Sprintf("gerrit set-project --description %s %s",
		quote(description), quote(name))
	_, err := c.run(ctx, cmd)
	return err
}

// GroupUUID resolves a group name to its server identifier, or empty string
// when the group does not exist.
func (c *SSHClient) GroupUUID(ctx context.Context, name string) (string, error) {
	out, err := c.run(ctx, "gerrit ls-groups --verbose")
	if err != nil {
		return "", err
	}
	return parseGroupUUID(out, name), nil
}

// CreateGroup creates a group by name.
func (c *SSHClient) CreateGroup(ctx context.Context, name string) error {
	_, err := c.run(ctx, "gerrit create-group "+quote(name))
	return err
}

// Replicate triggers server-side replication for a project.
func (c *SSHClient) Replicate(ctx context.Context, name string) error {
	_, err := c.run(ctx, "replication start "+quote(name))
	return err
}

// parseGroupUUID extracts the UUID column for the named group from
// `gerrit ls-groups --verbose` output (tab-separated: name, uuid, ...).
func parseGroupUUID(output, name string) string {
	for _, line := range splitLines(output) {
		fields := strings.Split(line, "\t")
		if len(fields) >= 2 && fields[0] == name {
			return fields[1]
		}
	}
	return ""
}

func splitLines(out string) []string {
	if out == "" {
		return nil
	}
	lines := strings.Split(out, "\n")
	result := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			result = append(result, l)
		}
	}
	return result
}

// quote wraps s in single quotes for the remote shell, escaping any
// embedded single quotes.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
