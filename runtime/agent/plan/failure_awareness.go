package plan

import "strings"

// KnownFailure is a recent known-bad action/tool signature drawn from
// memory (§4.3 failure-awareness pre-filter, rule 3).
type KnownFailure struct {
	ActionSubstring string
	Tool            string
}

// ApplyFailureAwareness rewrites plans that match known-bad signatures and
// records a score multiplier on each plan's metadata, applied by Scorer
// before the additive adjustments (§4.3). It runs before scoring, as the
// spec requires, but the multiplier itself only takes effect once a base
// score exists.
func ApplyFailureAwareness(plans []Plan, knownFailures []KnownFailure) {
	for i := range plans {
		applyFailureAwarenessToPlan(&plans[i], knownFailures)
	}
}

func applyFailureAwarenessToPlan(p *Plan, knownFailures []KnownFailure) {
	if strings.EqualFold(p.Tool, "write_file") {
		if rewriteWebRootPath(p) {
			return
		}
	}
	if strings.EqualFold(p.Tool, "execute_command") {
		if rewriteSystemctlCommand(p) {
			return
		}
	}
	if matchesKnownFailure(*p, knownFailures) {
		p.Metadata.ScoreMultiplier = 0.6
		p.Reasoning = "Alternative approach: " + p.Reasoning
		return
	}
	p.Metadata.ScoreMultiplier = 1.0
}

// rewriteWebRootPath rewrites a write_file targeting /var/www/html to a
// workspace-relative path, scoring the plan at ×0.8 (§4.3). A filename that
// names the web root itself leaves nothing to rewrite and scores ×0.1
// ("adaptation impossible"). Returns false, leaving the multiplier unset,
// when the filename is absent or not under /var/www/html.
func rewriteWebRootPath(p *Plan) bool {
	filename, _ := p.Inputs["filename"].(string)
	if !strings.HasPrefix(filename, "/var/www/html") {
		return false
	}
	rest := strings.TrimPrefix(filename, "/var/www/html")
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		p.Metadata.ScoreMultiplier = 0.1
		return true
	}
	p.Inputs["filename"] = "./workspace/" + rest
	p.Metadata.ScoreMultiplier = 0.8
	return true
}

// rewriteSystemctlCommand rewrites an execute_command invocation targeting
// systemctl, scoring the plan at ×0.7. Each "systemctl" is replaced by an
// echo of a blocked notice followed by "#", so the rest of the command is
// commented out; no equivalent user-level command is substituted. Returns
// false, leaving the multiplier unset, when the command is absent or does not
// mention systemctl.
func rewriteSystemctlCommand(p *Plan) bool {
	command, _ := p.Inputs["command"].(string)
	if !strings.Contains(command, "systemctl") {
		return false
	}
	if strings.TrimSpace(command) == "" {
		p.Metadata.ScoreMultiplier = 0.1
		return true
	}
	p.Inputs["command"] = strings.ReplaceAll(command, "systemctl", "echo '[blocked: systemctl unavailable outside service scope]' #")
	p.Metadata.ScoreMultiplier = 0.7
	return true
}

func matchesKnownFailure(p Plan, knownFailures []KnownFailure) bool {
	for _, kf := range knownFailures {
		if kf.Tool != "" && !strings.EqualFold(kf.Tool, p.Tool) {
			continue
		}
		if kf.ActionSubstring != "" && !strings.Contains(strings.ToLower(p.Action), strings.ToLower(kf.ActionSubstring)) {
			continue
		}
		return true
	}
	return false
}
