package git

import (
	"os"
	"strings"
	"testing"
)

func TestSSHEnvLifecycle(t *testing.T) {
	env, err := NewSSHEnv("gerrit2", "/home/gerrit2/review_site/etc/ssh_host_rsa_key")
	if err != nil {
		t.Fatalf("NewSSHEnv: %v", err)
	}

	info, err := os.Stat(env.Script())
	if err != nil {
		t.Fatalf("wrapper script missing: %v", err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Errorf("wrapper mode = %o, want 755", info.Mode().Perm())
	}

	data, err := os.ReadFile(env.Script())
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "#!/bin/bash\n") {
		t.Errorf("wrapper missing shebang: %q", content)
	}
	if !strings.Contains(content, "-i '/home/gerrit2/review_site/etc/ssh_host_rsa_key'") {
		t.Errorf("wrapper missing key flag: %q", content)
	}
	if !strings.Contains(content, "-l 'gerrit2'") {
		t.Errorf("wrapper missing login flag: %q", content)
	}
	if !strings.Contains(content, `"StrictHostKeyChecking no"`) {
		t.Errorf("wrapper missing host key option: %q", content)
	}

	overlay := env.Env()
	if overlay["GIT_SSH"] != env.Script() {
		t.Errorf("GIT_SSH = %q, want %q", overlay["GIT_SSH"], env.Script())
	}

	if err := env.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(env.Script()); !os.IsNotExist(err) {
		t.Errorf("wrapper should be gone, stat err = %v", err)
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple path", input: "/home/user/.ssh/key", want: "'/home/user/.ssh/key'"},
		{name: "path with spaces", input: "/home/my user/key", want: "'/home/my user/key'"},
		{name: "path with single quote", input: "/home/user's/key", want: `'/home/user'\''s/key'`},
		{name: "empty string", input: "", want: "''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shellQuote(tt.input); got != tt.want {
				t.Errorf("shellQuote(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
