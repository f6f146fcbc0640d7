package domain

import (
	"strings"
	"unicode/utf8"
)

// Naming policy for tree entries. Pure validation, no I/O. Directory
// and file names share most rules; the differences are the backslash
// ban (files only) and the leading/trailing dot handling.

const maxNameLength = 255

// ValidateName dispatches to the policy matching the node kind.
func ValidateName(kind NodeKind, name string) error {
	if kind == NodeKindDirectory {
		return ValidateDirectoryName(name)
	}
	return ValidateFileName(name)
}

func ValidateDirectoryName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &InvalidNameError{Name: name, Reason: "directory name cannot be empty"}
	}
	if strings.Contains(name, "/") {
		return &InvalidNameError{Name: name, Reason: "directory name cannot contain slashes"}
	}
	if containsInvalidChars(name) {
		return &InvalidNameError{Name: name, Reason: "directory name contains invalid characters"}
	}
	if name == "." || name == ".." {
		return &InvalidNameError{Name: name, Reason: `directory name cannot be "." or ".."`}
	}
	if strings.HasPrefix(name, " ") || strings.HasSuffix(name, " ") ||
		strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return &InvalidNameError{Name: name, Reason: "directory name cannot start or end with spaces or dots"}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return &InvalidNameError{Name: name, Reason: "directory name is too long (max 255 characters)"}
	}
	return nil
}

func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &InvalidNameError{Name: name, Reason: "file name cannot be empty"}
	}
	if strings.Contains(name, "/") || strings.Contains(name, `\`) {
		return &InvalidNameError{Name: name, Reason: "file name cannot contain slashes or backslashes"}
	}
	if containsInvalidChars(name) {
		return &InvalidNameError{Name: name, Reason: "file name contains invalid characters"}
	}
	if name == "." || name == ".." {
		return &InvalidNameError{Name: name, Reason: `file name cannot be "." or ".."`}
	}
	// Hidden files (single leading dot) are fine; a ".." prefix is not.
	if strings.HasPrefix(strings.TrimSpace(name), "..") {
		return &InvalidNameError{Name: name, Reason: `file name cannot start with ".."`}
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return &InvalidNameError{Name: name, Reason: "file name is too long (max 255 characters)"}
	}
	return nil
}

func containsInvalidChars(name string) bool {
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return true
		}
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return true
		}
	}
	return false
}
