package eos

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// HomeRoot is the logical name of a user's home directory.
const HomeRoot = "files"

var ErrInvalidPath = errors.New("invalid directory path")

// Layout maps logical paths ("files", "files/Documents") onto EOS object
// paths under Prefix, using the letter-sharded scheme
// <Prefix>/<first letter>/<username>/<rest>.
type Layout struct {
	Prefix string
}

// HomePath shards on the first rune of username.
func (l Layout) HomePath(username string) string {
	first, _ := utf8.DecodeRuneInString(username)
	return path.Join(l.Prefix, string(first), username)
}

// ObjectPath resolves a logical path for username. Only "files" and paths
// below it are accepted.
func (l Layout) ObjectPath(username, logical string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: empty username", ErrInvalidPath)
	}

	rel, ok := strings.CutPrefix(logical, HomeRoot)
	if !ok || (rel != "" && rel[0] != '/') {
		return "", fmt.Errorf("%w: %q is outside the home directory", ErrInvalidPath, logical)
	}

	rel = strings.Trim(rel, "/")
	if rel == "" {
		return l.HomePath(username), nil
	}
	if err := checkSegments(rel); err != nil {
		return "", err
	}

	return path.Join(l.HomePath(username), rel), nil
}

// LogicalPath turns a caller-supplied directory name into "files/<dir>",
// trimming surrounding slashes. A name that is empty after trimming refers
// to the home itself.
func LogicalPath(dir string) (string, error) {
	rel := strings.Trim(dir, "/")
	if rel == "" {
		return HomeRoot, nil
	}
	if err := checkSegments(rel); err != nil {
		return "", err
	}
	return HomeRoot + "/" + rel, nil
}

func checkSegments(rel string) error {
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%w: %q contains a relative segment", ErrInvalidPath, rel)
		}
	}
	return nil
}
