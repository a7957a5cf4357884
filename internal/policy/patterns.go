package policy

import (
	"regexp"
)

// Rule pairs a named pattern with the classification it produces.
// Rules are evaluated in slice order, first match wins; ordering is a
// documented contract covered by tests.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// blockedCommandRules deny a command outright.
var blockedCommandRules = []Rule{
	{"rm-root", regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*(-[a-z]*[rf][a-z]*\s+)+(/|/\*|~|\$HOME)(\s|$)`)},
	{"rm-recursive-force", regexp.MustCompile(`(?i)\brm\s+(--no-preserve-root|-[a-z]*r[a-z]*f[a-z]*|-[a-z]*f[a-z]*r[a-z]*)\b.*\s(/|~)(\s|$)`)},
	{"mkfs", regexp.MustCompile(`(?i)\bmkfs(\.[a-z0-9]+)?\b`)},
	{"dd-device", regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/`)},
	{"overwrite-device", regexp.MustCompile(`>\s*/dev/(sd[a-z]|nvme\d+n\d+|hd[a-z]|disk\d+)`)},
	{"fork-bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;?\s*:`)},
	{"chmod-root", regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*[0-7]{3,4}\s+/(\s|$)`)},
	{"chown-root", regexp.MustCompile(`(?i)\bchown\s+(-[a-z]+\s+)*\S+\s+/(\s|$)`)},
	{"pipe-to-shell", regexp.MustCompile(`(?i)\b(curl|wget)\b[^|;&]*\|\s*(sudo\s+)?(ba|z|da)?sh\b`)},
	{"shutdown", regexp.MustCompile(`(?i)\b(shutdown|poweroff|halt|reboot)\b`)},
	{"history-wipe", regexp.MustCompile(`(?i)\bhistory\s+-c\b|>\s*~?/?\.bash_history`)},
	{"kernel-sysrq", regexp.MustCompile(`(?i)>\s*/proc/sysrq-trigger`)},
	{"wipefs", regexp.MustCompile(`(?i)\b(wipefs|shred)\s+.*(/dev/|-z)`)},
	{"userdel-root", regexp.MustCompile(`(?i)\buserdel\s+(-[a-z]+\s+)*root\b`)},
	{"iptables-flush", regexp.MustCompile(`(?i)\biptables\s+(-[a-z]+\s+)*(-F|--flush)(\s|$)`)},
}

// warningCommandRules produce an ask: the operation is legitimate but
// destructive enough that the user should confirm.
var warningCommandRules = []Rule{
	{"sudo", regexp.MustCompile(`(?i)^\s*sudo\b`)},
	{"rm-recursive", regexp.MustCompile(`(?i)\brm\s+(-[a-z]*\s+)*-[a-z]*r[a-z]*\b`)},
	{"git-reset-hard", regexp.MustCompile(`(?i)\bgit\s+reset\s+--hard\b`)},
	{"git-clean-force", regexp.MustCompile(`(?i)\bgit\s+clean\s+(-[a-z]*f[a-z]*|--force)\b`)},
	{"git-push-force", regexp.MustCompile(`(?i)\bgit\s+push\s+.*(--force|-f)\b`)},
	{"git-branch-delete-force", regexp.MustCompile(`(?i)\bgit\s+branch\s+(-D|--delete\s+--force)\b`)},
	{"sql-drop", regexp.MustCompile(`(?i)\b(drop\s+(table|database|schema)|truncate\s+table)\b`)},
	{"kill-force", regexp.MustCompile(`(?i)\bkill(all)?\s+(-9|-KILL|-s\s+KILL)\b`)},
	{"chmod-world-writable", regexp.MustCompile(`(?i)\bchmod\s+(-[a-z]+\s+)*[0-7]?777\b`)},
	{"package-publish", regexp.MustCompile(`(?i)\b(npm|yarn|pnpm)\s+publish\b|\bcargo\s+publish\b|\btwine\s+upload\b`)},
	{"docker-prune", regexp.MustCompile(`(?i)\bdocker\s+(system|volume|image|container)\s+prune\b`)},
	{"crontab-replace", regexp.MustCompile(`(?i)\bcrontab\s+(-r\b|[^-\s])`)},
	{"recursive-overwrite", regexp.MustCompile(`(?i)\b(cp|rsync)\s+.*\s(--delete|-[a-z]*f[a-z]*)\b.*\s/`)},
}

// blockedFileNameRules match base names of files that must never be
// touched through the assistant.
var blockedFileNameRules = []Rule{
	{"env-file", regexp.MustCompile(`(?i)^\.env(\..+)?$`)},
	{"private-key", regexp.MustCompile(`(?i)^(id_rsa|id_ed25519|id_ecdsa|id_dsa)$|\.pem$|\.key$|\.p12$|\.pfx$`)},
	{"cloud-credentials", regexp.MustCompile(`(?i)^(credentials|\.netrc|\.npmrc|\.pypirc)$`)},
	{"shadow", regexp.MustCompile(`^(shadow|gshadow|sudoers)$`)},
	{"keychain", regexp.MustCompile(`(?i)\.(keychain|kdbx)$`)},
}

// blockedPathPrefixRules match absolute path prefixes outside a project's
// legitimate write surface.
var blockedPathPrefixRules = []Rule{
	{"etc", regexp.MustCompile(`^/etc/`)},
	{"sys", regexp.MustCompile(`^/(sys|proc|dev)/`)},
	{"boot", regexp.MustCompile(`^/boot/`)},
	{"root-home", regexp.MustCompile(`^/root/\.`)},
	{"ssh-dir", regexp.MustCompile(`(^|/)\.ssh/`)},
	{"aws-dir", regexp.MustCompile(`(^|/)\.(aws|gnupg|kube)/`)},
	{"system-bin", regexp.MustCompile(`^/(usr/)?s?bin/`)},
}

// traversalPattern matches directory traversal remnants after decoding
// and separator normalization.
var traversalPattern = regexp.MustCompile(`(^|/)\.\.(/|$)`)
