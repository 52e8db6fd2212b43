package permission

import "regexp"

// dangerousPatterns are shell commands that always need a typed
// confirmation, whatever the trust level. This is a best-effort deny-list,
// not a sandbox.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-[rf]+\s+)*(/|~|\.\.|/etc|/usr|/var|/home|\*)`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=.*of=/dev/`),
	regexp.MustCompile(`(?i)>\s*/dev/sd[a-z]`),
	regexp.MustCompile(`(?i)\bchmod\s+(-R\s+)?777\s+/`),
	regexp.MustCompile(`(?i)\bchown\s+(-R\s+)?.*\s+/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};\s*:`),
	regexp.MustCompile(`(?i)\bsudo\s+rm\b`),
	regexp.MustCompile(`(?i)\bsudo\s+dd\b`),
	regexp.MustCompile(`(?i)>\s*/etc/passwd`),
	regexp.MustCompile(`(?i)>\s*/etc/shadow`),
	regexp.MustCompile(`(?i)\bgit\s+push\s+.*--force`),
	regexp.MustCompile(`(?i)\bgit\s+reset\s+--hard\s+HEAD~`),
}

// IsDangerousCommand reports whether command matches the deny-list.
func IsDangerousCommand(command string) bool {
	for _, re := range dangerousPatterns {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
