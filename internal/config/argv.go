package config

import (
	"fmt"
	"strings"
	"unicode"
)

// parseArgv splits a command line from the config file into an argv slice
// without involving a shell. Single and double quotes group words, a
// backslash escapes the next rune inside or outside quotes, and a line whose
// first character is # is a comment: it parses to a nil argv, which lets a
// rec_cmd or default_cmd entry be disabled without deleting it. Empty quoted
// strings produce no argument.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv  []string
		word  strings.Builder
		quote rune
	)
	emit := func() {
		if word.Len() > 0 {
			argv = append(argv, word.String())
			word.Reset()
		}
	}

	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if r == '\\' {
			i++
			if i == len(runes) {
				return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
			}
			word.WriteRune(runes[i])
			continue
		}

		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case unicode.IsSpace(r):
			emit()
		default:
			word.WriteRune(r)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}

	emit()
	return argv, nil
}

// mustParseArgv is for built-in defaults that are known to parse.
func mustParseArgv(input string) []string {
	argv, err := parseArgv(input)
	if err != nil {
		panic(err)
	}
	return argv
}
