package fetcher

import (
	"os"
	"os/exec"
)

// Common Chrome/Chromium install locations, Linux first
var browserPaths = []string{
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// findBrowserBinary returns the configured binary, else the first installed
// Chrome/Chromium it can find. Empty means let the automation library decide.
func findBrowserBinary(configured string) string {
	if configured != "" {
		return configured
	}

	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	candidates := browserPaths
	if username := os.Getenv("USERNAME"); username != "" {
		candidates = append(candidates, `C:\Users\`+username+`\AppData\Local\Google\Chrome\Application\chrome.exe`)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
