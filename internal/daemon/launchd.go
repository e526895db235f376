package daemon

import (
	"crypto/sha256"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"fitsched/internal/workspace"
)

// WorkspaceHash generates a stable short hash from the workspace root path.
func WorkspaceHash(wsRoot string) string {
	h := sha256.Sum256([]byte(wsRoot))
	return fmt.Sprintf("%x", h[:4])
}

// PlistLabel returns the LaunchAgent label for a workspace.
func PlistLabel(wsRoot string) string {
	return fmt.Sprintf("dev.fitsched.%s", WorkspaceHash(wsRoot))
}

// PlistPath returns the full path to the plist file for a workspace.
func PlistPath(wsRoot string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, "Library", "LaunchAgents", PlistLabel(wsRoot)+".plist"), nil
}

// GeneratePlist creates a plist XML string for the fitsched daemon.
func GeneratePlist(ws *workspace.Workspace, binaryPath string) (string, error) {
	if ws == nil {
		return "", fmt.Errorf("workspace is nil")
	}
	absBinaryPath, err := filepath.Abs(binaryPath)
	if err != nil {
		return "", fmt.Errorf("resolve binary path: %w", err)
	}

	label := PlistLabel(ws.Root)
	logPath := filepath.Join(ws.LogsDir, "fitsched.log")

	plist := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>daemon</string>
		<string>run</string>
		<string>--workspace</string>
		<string>%s</string>
	</array>
	<key>StandardOutPath</key>
	<string>%s</string>
	<key>StandardErrorPath</key>
	<string>%s</string>
	<key>KeepAlive</key>
	<true/>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`, label, absBinaryPath, ws.Root, logPath, logPath)

	return plist, nil
}

// Install writes and loads the LaunchAgent plist for the workspace.
// Only supported on macOS.
func Install(ws *workspace.Workspace, binaryPath string) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("daemon install is only supported on macOS; use a cron entry or systemd unit that runs %q", "fitsched run-all")
	}
	if ws == nil {
		return fmt.Errorf("workspace is nil")
	}
	if err := os.MkdirAll(ws.LogsDir, 0o755); err != nil {
		return fmt.Errorf("ensure log dir: %w", err)
	}

	plistContent, err := GeneratePlist(ws, binaryPath)
	if err != nil {
		return fmt.Errorf("generate plist: %w", err)
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(plistPath), 0o755); err != nil {
		return fmt.Errorf("ensure LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(plistPath, []byte(plistContent), 0o644); err != nil {
		return fmt.Errorf("write plist: %w", err)
	}

	cmd := exec.Command("launchctl", "load", plistPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl load: %w (output: %s)", err, string(output))
	}
	return nil
}

// Uninstall unloads and removes the LaunchAgent plist for the workspace.
func Uninstall(ws *workspace.Workspace) error {
	if runtime.GOOS != "darwin" {
		return fmt.Errorf("daemon uninstall is only supported on macOS")
	}
	plistPath, err := PlistPath(ws.Root)
	if err != nil {
		return fmt.Errorf("resolve plist path: %w", err)
	}
	if _, err := os.Stat(plistPath); os.IsNotExist(err) {
		return nil
	}

	cmd := exec.Command("launchctl", "unload", plistPath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl unload: %w (output: %s)", err, string(output))
	}
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	return nil
}
