package commands

import "strings"

// splitCommand breaks a command line into its name and the remaining
// argument string. The prefix has already been stripped.
func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	name, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}

// nextArg pops the first whitespace-delimited argument off rest
func nextArg(rest string) (string, string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}
	arg, remainder, _ := strings.Cut(rest, " ")
	return arg, strings.TrimSpace(remainder)
}

// parseKeyValues reads key=value pairs where values may be quoted to
// contain spaces, e.g. `title="Patrol Logs" color=#ff0000`.
func parseKeyValues(rest string) map[string]string {
	out := make(map[string]string)
	rest = strings.TrimSpace(rest)

	for rest != "" {
		eq := strings.Index(rest, "=")
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(rest[:eq]))
		rest = rest[eq+1:]

		var value string
		if strings.HasPrefix(rest, `"`) {
			end := strings.Index(rest[1:], `"`)
			if end < 0 {
				value = rest[1:]
				rest = ""
			} else {
				value = rest[1 : end+1]
				rest = strings.TrimSpace(rest[end+2:])
			}
		} else {
			value, rest = nextArg(rest)
		}

		if key != "" {
			out[key] = value
		}
	}

	return out
}
