package git

import (
	"fmt"
	"os"
)

// SSHEnv is the process-wide SSH credential wrapper: a generated GIT_SSH
// script that pins the review server identity for every git subprocess in
// a run. It is created once before the batch starts and must be removed
// when the batch ends, regardless of how it ended.
type SSHEnv struct {
	script string
}

// NewSSHEnv writes the wrapper script for the given login and key file.
func NewSSHEnv(user, keyFile string) (*SSHEnv, error) {
	f, err := os.CreateTemp("", "gerritsync-ssh-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create ssh wrapper: %w", err)
	}

	script := fmt.Sprintf("#!/bin/bash\nssh -i %s -l %s -o \"StrictHostKeyChecking no\" \"$@\"\n",
		shellQuote(keyFile), shellQuote(user))
	if _, err := f.WriteString(script); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write ssh wrapper: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write ssh wrapper: %w", err)
	}
	if err := os.Chmod(f.Name(), 0o755); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("failed to mark ssh wrapper executable: %w", err)
	}

	return &SSHEnv{script: f.Name()}, nil
}

// Env returns the environment overlay that routes git transport through the
// wrapper.
func (s *SSHEnv) Env() map[string]string {
	return map[string]string{"GIT_SSH": s.script}
}

// Script returns the wrapper script path.
func (s *SSHEnv) Script() string {
	return s.script
}

// Remove deletes the wrapper script.
func (s *SSHEnv) Remove() error {
	return os.Remove(s.script)
}
