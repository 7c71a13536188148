package guard

import "strings"

// Commands whose positional arguments name files they create or modify.
var (
	// destination is the last non-flag argument
	copyLikeCommands = map[string]bool{
		"cp": true, "install": true, "mv": true, "ln": true, "rsync": true,
	}
	// every non-flag argument is a target
	createLikeCommands = map[string]bool{
		"mkdir": true, "touch": true,
	}
)

// ExtractWriteTargets enumerates, best effort, the filesystem paths a shell
// command line may write to. Recognized constructs: > and >> redirects, tee
// (including -a), cp/install/mv/ln/rsync destinations, mkdir/touch arguments.
// Single- and double-quoted arguments are unwrapped. The result is
// deduplicated; order is not significant. False negatives are acceptable,
// false positives should be avoided.
func ExtractWriteTargets(command string) []string {
	seen := map[string]bool{}
	var targets []string
	add := func(p string) {
		if p == "" || strings.HasPrefix(p, "-") || seen[p] {
			return
		}
		seen[p] = true
		targets = append(targets, p)
	}

	for _, segment := range splitSegments(command) {
		tokens := tokenize(segment)
		if len(tokens) == 0 {
			continue
		}

		for i := 0; i < len(tokens); i++ {
			tok := tokens[i]
			switch {
			case tok == ">" || tok == ">>":
				if i+1 < len(tokens) {
					add(tokens[i+1])
					i++
				}
			case strings.HasPrefix(tok, ">>"):
				add(tok[2:])
			case strings.HasPrefix(tok, ">") && len(tok) > 1:
				add(tok[1:])
			}
		}

		// Skip leading environment assignments ("FOO=1 cmd ...").
		start := 0
		for start < len(tokens) && strings.Contains(tokens[start], "=") {
			start++
		}
		if start >= len(tokens) {
			continue
		}
		name := commandName(tokens[start])
		args := positionalArgs(tokens[start+1:])
		switch {
		case name == "tee":
			for _, a := range args {
				add(a)
			}
		case copyLikeCommands[name]:
			if len(args) > 0 {
				add(args[len(args)-1])
			}
		case createLikeCommands[name]:
			for _, a := range args {
				add(a)
			}
		}
	}
	return targets
}

// splitSegments breaks a command line on unquoted ;, &&, || and | so each
// simple command is inspected on its own.
func splitSegments(command string) []string {
	var segments []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(command); i++ {
		c := command[i]
		if quote != 0 {
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
			cur.WriteByte(c)
		case ';', '|':
			segments = append(segments, cur.String())
			cur.Reset()
			if c == '|' && i+1 < len(command) && command[i+1] == '|' {
				i++
			}
		case '&':
			if i+1 < len(command) && command[i+1] == '&' {
				segments = append(segments, cur.String())
				cur.Reset()
				i++
			} else {
				cur.WriteByte(c)
			}
		default:
			cur.WriteByte(c)
		}
	}
	segments = append(segments, cur.String())
	return segments
}

// tokenize splits a simple command on whitespace honoring quotes; quote
// characters are stripped from the resulting tokens. Redirect operators are
// kept as their own tokens when separated by whitespace.
func tokenize(segment string) []string {
	var tokens []string
	var cur strings.Builder
	var quote byte
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(segment); i++ {
		c := segment[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case ' ', '\t', '\n':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return tokens
}

// commandName strips any leading path from the command token.
func commandName(token string) string {
	if idx := strings.LastIndexByte(token, '/'); idx >= 0 {
		return token[idx+1:]
	}
	return token
}

// positionalArgs filters out flags and redirect tokens.
func positionalArgs(tokens []string) []string {
	var args []string
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok == ">" || tok == ">>" {
			i++ // redirect target handled separately
			continue
		}
		if strings.HasPrefix(tok, ">") || strings.HasPrefix(tok, "-") || strings.Contains(tok, "=") && !strings.ContainsAny(tok, "/") {
			continue
		}
		args = append(args, tok)
	}
	return args
}
