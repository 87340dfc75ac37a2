package agenttools

import (
	"regexp"
	"strings"
)

var (
	commandSplit  = regexp.MustCompile("(?:\\|\\||&&|;|\\||\\n|`|\\$\\(|\\(|\\))")
	envAssignment = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*=.*`)
)

var wrapperCommands = map[string]bool{
	"sudo":    true,
	"env":     true,
	"time":    true,
	"command": true,
}

func sanitizeToken(token string) string {
	return strings.Trim(strings.TrimSpace(token), `'"()`)
}

// ExtractCommandNames lists the distinct programs a shell command line
// invokes, lowercased, in order of appearance. Leading VAR=value
// assignments are skipped and wrappers such as sudo also contribute the
// command they wrap.
func ExtractCommandNames(command string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
	}
	for _, segment := range commandSplit.Split(command, -1) {
		tokens := strings.Fields(segment)
		i := 0
		for i < len(tokens) && envAssignment.MatchString(tokens[i]) {
			i++
		}
		if i >= len(tokens) {
			continue
		}
		primary := strings.ToLower(sanitizeToken(tokens[i]))
		if primary == "" {
			continue
		}
		add(primary)
		if wrapperCommands[primary] && i+1 < len(tokens) {
			add(strings.ToLower(sanitizeToken(tokens[i+1])))
		}
	}
	return out
}

// BlockedCommands returns the invoked names covered by neither allow nor
// session. An allow entry of "*" permits everything.
func BlockedCommands(command string, allow []string, session map[string]bool) []string {
	invoked := ExtractCommandNames(command)
	if len(invoked) == 0 {
		return nil
	}
	if len(allow) == 0 && len(session) == 0 {
		return invoked
	}
	allowSet := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowSet[strings.ToLower(strings.TrimSpace(name))] = true
	}
	if allowSet["*"] {
		return nil
	}
	var blocked []string
	for _, name := range invoked {
		if !allowSet[name] && !session[name] {
			blocked = append(blocked, name)
		}
	}
	return blocked
}

func IsBlocked(command string, allow []string, session map[string]bool) bool {
	return len(BlockedCommands(command, allow, session)) > 0
}
