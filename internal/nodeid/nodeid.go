// Package nodeid derives a stable identity for the running process so
// the task store can tell which node currently owns a claimed task.
package nodeid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const identityFileName = ".node-identity"

// Derive returns a stable identity for basePath: it reads a salt
// persisted at basePath/.node-identity, falling back to the machine id
// file, then the hostname, then a freshly generated UUID (persisted for
// next time). The identity itself is hash(basePath + salt) so the same
// machine gets distinct identities for distinct base paths.
func Derive(basePath string) (string, error) {
	salt, err := loadOrCreateSalt(basePath)
	if err != nil {
		return "", fmt.Errorf("derive node identity: %w", err)
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(basePath) + ":" + salt))
	return hex.EncodeToString(sum[:16]), nil
}

func loadOrCreateSalt(basePath string) (string, error) {
	path := filepath.Join(basePath, identityFileName)
	if raw, err := os.ReadFile(path); err == nil {
		if salt := strings.TrimSpace(string(raw)); salt != "" {
			return salt, nil
		}
	}

	salt := machineSalt()
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return "", fmt.Errorf("create base path: %w", err)
	}
	if err := os.WriteFile(path, []byte(salt), 0o644); err != nil {
		return "", fmt.Errorf("persist node identity salt: %w", err)
	}
	return salt, nil
}

func machineSalt() string {
	if raw, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return id
		}
	}
	if hostname, err := os.Hostname(); err == nil {
		if hostname = strings.TrimSpace(hostname); hostname != "" {
			return hostname
		}
	}
	return uuid.NewString()
}
