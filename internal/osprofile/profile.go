package osprofile

import "runtime"

// Family identifies the host OS class the relay is running on.
type Family string

const (
	Windows Family = "windows"
	Linux   Family = "linux"
	MacOS   Family = "macos"
)

// Profile describes how to drive the host shell: which interpreter to spawn,
// how a command string is handed to it, and which path separator the host
// uses. Resolved once at startup and passed explicitly to everything that
// needs it so tests can inject a fake.
type Profile struct {
	Family        Family
	ShellPath     string
	PathSeparator rune
}

// Resolve detects the host OS family. Deterministic within a process run.
func Resolve() Profile {
	return ResolveFor(runtime.GOOS)
}

// ResolveFor maps a GOOS value to a shell profile. Anything that is not
// Windows or macOS is treated as Linux/Unix.
func ResolveFor(goos string) Profile {
	switch goos {
	case "windows":
		return Profile{Family: Windows, ShellPath: "powershell", PathSeparator: '\\'}
	case "darwin":
		return Profile{Family: MacOS, ShellPath: "/bin/bash", PathSeparator: '/'}
	default:
		return Profile{Family: Linux, ShellPath: "/bin/bash", PathSeparator: '/'}
	}
}

// CommandArgs returns the argv for running a command string through the
// shell. PowerShell takes the command after -Command with profile loading
// suppressed; POSIX shells take it as a single -lc argument.
func (p Profile) CommandArgs(command string) []string {
	if p.Family == Windows {
		return []string{p.ShellPath, "-NoLogo", "-NoProfile", "-Command", command}
	}
	return []string{p.ShellPath, "-lc", command}
}

// CwdProbe wraps command so the shell prints its final working directory on
// a marker line once the command finishes, preserving the command's exit
// status. The probe always emits a leading newline so the marker starts a
// fresh line regardless of how the command's own output ended.
func (p Profile) CwdProbe(command, marker string) string {
	if p.Family == Windows {
		return command + "\r\n" +
			"$__relayStatus = $LASTEXITCODE\r\n" +
			"if ($null -eq $__relayStatus) { if ($?) { $__relayStatus = 0 } else { $__relayStatus = 1 } }\r\n" +
			"Write-Output (\"`n" + marker + "\" + (Get-Location).Path)\r\n" +
			"exit $__relayStatus"
	}
	return command + "\n" +
		"__relay_status=$?\n" +
		"printf '\\n%s%s\\n' '" + marker + "' \"$PWD\"\n" +
		"exit $__relay_status"
}

// DisplayName is the human-readable OS label used in reports.
func (p Profile) DisplayName() string {
	switch p.Family {
	case Windows:
		return "Windows"
	case MacOS:
		return "macOS"
	default:
		return "Linux"
	}
}

// ShellHint names the shell dialect for translation prompts, so generated
// commands use syntax valid on this host.
func (p Profile) ShellHint() string {
	if p.Family == Windows {
		return "Windows PowerShell (use cmdlets like Get-ChildItem, Select-String; avoid Linux utilities)"
	}
	return "bash (Linux/macOS; prefer POSIX tools like ls, grep, sed, awk)"
}
