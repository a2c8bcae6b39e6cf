package util

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

// FilenameFromURL gets the last segment of the URL's path, e.g. "abc.jpg" from "https://cdn.example.com/x/abc.jpg?y=z".
func FilenameFromURL(u *url.URL) (string, error) {
	if u == nil {
		return "", ErrNoFilename
	}
	name := path.Base(u.Path)
	// Don't allow "filenames" that are just "/", ".", "..", etc.
	if name == "/" || strings.Trim(name, ".") == "" {
		return "", ErrNoFilename
	}
	return name, nil
}

func FilenameFromURLString(s string) (string, error) {
	if u, err := url.Parse(s); err != nil {
		return "", err
	} else {
		return FilenameFromURL(u)
	}
}

var unsafeFilenameChars = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"\x00", "",
)

// SanitizeFilename replaces characters that are not allowed in filenames on common platforms.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(unsafeFilenameChars.Replace(name))
	if strings.Trim(name, ".") == "" {
		return "_"
	}
	return name
}
