package osprofile

import (
	"strings"
	"testing"
)

func TestResolveForFamilies(t *testing.T) {
	tests := []struct {
		goos   string
		family Family
		shell  string
		sep    rune
	}{
		{"windows", Windows, "powershell", '\\'},
		{"darwin", MacOS, "/bin/bash", '/'},
		{"linux", Linux, "/bin/bash", '/'},
		{"freebsd", Linux, "/bin/bash", '/'},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			p := ResolveFor(tt.goos)
			if p.Family != tt.family {
				t.Errorf("family = %s, want %s", p.Family, tt.family)
			}
			if p.ShellPath != tt.shell {
				t.Errorf("shell = %s, want %s", p.ShellPath, tt.shell)
			}
			if p.PathSeparator != tt.sep {
				t.Errorf("separator = %q, want %q", p.PathSeparator, tt.sep)
			}
		})
	}
}

func TestCommandArgsPosix(t *testing.T) {
	p := ResolveFor("linux")
	argv := p.CommandArgs("echo hello")
	want := []string{"/bin/bash", "-lc", "echo hello"}
	if len(argv) != len(want) {
		t.Fatalf("argv = %v, want %v", argv, want)
	}
	for i := range want {
		if argv[i] != want[i] {
			t.Fatalf("argv = %v, want %v", argv, want)
		}
	}
}

func TestCommandArgsWindows(t *testing.T) {
	p := ResolveFor("windows")
	argv := p.CommandArgs("dir")
	if argv[0] != "powershell" {
		t.Fatalf("argv[0] = %s, want powershell", argv[0])
	}
	if argv[len(argv)-1] != "dir" {
		t.Fatalf("command must be the final argument, got %v", argv)
	}
	joined := strings.Join(argv, " ")
	for _, flag := range []string{"-NoLogo", "-NoProfile", "-Command"} {
		if !strings.Contains(joined, flag) {
			t.Errorf("argv missing %s: %v", flag, argv)
		}
	}
}

func TestCwdProbeKeepsCommandAndMarker(t *testing.T) {
	for _, goos := range []string{"linux", "windows"} {
		p := ResolveFor(goos)
		wrapped := p.CwdProbe("mkdir sub", "__MARK__")
		if !strings.HasPrefix(wrapped, "mkdir sub") {
			t.Errorf("%s: wrapped command does not start with the original: %q", goos, wrapped)
		}
		if !strings.Contains(wrapped, "__MARK__") {
			t.Errorf("%s: wrapped command missing marker: %q", goos, wrapped)
		}
		if !strings.Contains(wrapped, "exit") {
			t.Errorf("%s: wrapped command must preserve exit status: %q", goos, wrapped)
		}
	}
}
