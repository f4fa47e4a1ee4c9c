package app

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fairyhunter13/cs2-inspect-gateway/internal/domain"
)

// LoadCredentials reads the accounts file (one "username:password" per
// line) and drops any account listed in the blacklist file. Blank lines
// and lines starting with '#' are ignored in both files. A missing
// blacklist file is not an error.
func LoadCredentials(accountsPath, blacklistPath string) ([]domain.Credential, error) {
	blacklist, err := loadBlacklist(blacklistPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(accountsPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.LoadCredentials: %w", err)
	}
	defer func() { _ = f.Close() }()

	var creds []domain.Credential
	seen := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Passwords may themselves contain ':'; split on the first only.
		user, pass, ok := strings.Cut(line, ":")
		user = strings.TrimSpace(user)
		if !ok || user == "" || pass == "" {
			slog.Warn("skipping malformed account line", slog.String("line", truncateLine(line)))
			continue
		}
		if blacklist[strings.ToLower(user)] {
			slog.Info("skipping blacklisted account", slog.String("username", user))
			continue
		}
		if seen[user] {
			slog.Warn("skipping duplicate account", slog.String("username", user))
			continue
		}
		seen[user] = true
		creds = append(creds, domain.Credential{Username: user, Password: pass})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("op=app.LoadCredentials: %w", err)
	}
	return creds, nil
}

func loadBlacklist(path string) (map[string]bool, error) {
	out := make(map[string]bool)
	if path == "" {
		return out, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("op=app.loadBlacklist: %w", err)
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out[strings.ToLower(line)] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("op=app.loadBlacklist: %w", err)
	}
	return out, nil
}

// truncateLine keeps log lines from echoing a whole credential.
func truncateLine(line string) string {
	if i := strings.Index(line, ":"); i >= 0 {
		return line[:i] + ":***"
	}
	if len(line) > 16 {
		return line[:16] + "..."
	}
	return line
}
