package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// The version suffix enables future algorithm migration.
const (
	DomainSettings = "recsync/settings/v1"
	DomainFile     = "recsync/file/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SettingsHash computes the content hash of a settings document.
// Two documents hash equal iff their canonical JSON is identical.
func SettingsHash(settings map[string]any) (string, error) {
	canonical, err := MarshalCanonical(settings)
	if err != nil {
		return "", fmt.Errorf("SettingsHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSettings, canonical), nil
}

// FileHash computes the content hash of an attachment: mime type, file name
// and bytes all contribute.
func FileHash(f File) string {
	h := sha256.New()
	h.Write([]byte(DomainFile))
	h.Write([]byte{0x00})
	h.Write([]byte(f.MimeType))
	h.Write([]byte{0x00})
	h.Write([]byte(f.Name))
	h.Write([]byte{0x00})
	h.Write(f.Content)
	return hex.EncodeToString(h.Sum(nil))
}

// SameFile reports whether two attachments have identical mime type, name
// and content.
func SameFile(a, b File) bool {
	return FileHash(a) == FileHash(b)
}

// SettingsEqual reports whether two settings documents are canonically
// equal. Documents that cannot be canonicalized are never equal.
func SettingsEqual(a, b map[string]any) bool {
	ha, err := SettingsHash(a)
	if err != nil {
		return false
	}
	hb, err := SettingsHash(b)
	if err != nil {
		return false
	}
	return ha == hb
}
