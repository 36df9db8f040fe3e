package agents

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/athena-ops/athena-stack/internal/models"
)

// securityPatterns match known attack and abuse signatures in log lines.
var securityPatterns = map[string]*regexp.Regexp{
	"auth_failure":         regexp.MustCompile(`(?i)(auth.*fail|login.*fail|invalid.*password|access.*denied)`),
	"injection":            regexp.MustCompile(`(?i)(sql|command|code|script).*injection`),
	"suspicious_ip":        regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b.*(?i:suspicious|blocked|blacklisted)`),
	"brute_force":          regexp.MustCompile(`(?i)(multiple|repeated|brute.*force).*(login|attempt|auth)`),
	"privilege_escalation": regexp.MustCompile(`(?i)(sudo|root|admin|privilege).*(escalation|elevation)`),
	"malware":              regexp.MustCompile(`(?i)(malware|virus|trojan|ransomware|spyware)`),
}

// severityByType assigns a severity to each detected pattern type.
var severityByType = map[string]models.RiskLevel{
	"injection":            models.RiskCritical,
	"privilege_escalation": models.RiskCritical,
	"malware":              models.RiskCritical,
	"brute_force":          models.RiskHigh,
	"auth_failure":         models.RiskMedium,
	"suspicious_ip":        models.RiskMedium,
}

var ipRe = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)

// SecurityAgent detects attack signatures in logs and scores the threat.
type SecurityAgent struct{}

// NewSecurityAgent creates a security analysis agent.
func NewSecurityAgent() *SecurityAgent {
	return &SecurityAgent{}
}

func (a *SecurityAgent) Name() string { return "security" }

// Analyze scans log entries for attack signatures, aggregates them by type
// and severity, and computes a weighted threat score.
func (a *SecurityAgent) Analyze(ctx context.Context, in Input) (models.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AgentResult{}, err
	}

	result := models.AgentResult{Agent: a.Name(), RiskLevel: models.RiskLow}

	issues := detectSecurityIssues(in.Logs)
	if len(issues) == 0 {
		result.Summary = fmt.Sprintf("No security signatures detected across %d log entries.", len(in.Logs))
		return result, nil
	}

	uniqueIPs := extractUniqueIPs(issues)
	perHour := issuesPerHour(issues)
	result.RiskLevel = threatLevel(issues, perHour)
	result.Issues = issues

	result.Details = map[string]any{
		"total_issues":        len(issues),
		"by_severity":         countBySeverity(issues),
		"unique_ips":          uniqueIPs,
		"max_issues_per_hour": maxPerHour(perHour),
	}

	result.Summary = summarizeThreats(issues, uniqueIPs)
	result.Recommendations = securityRecommendations(issues)
	return result, nil
}

// detectSecurityIssues scans each entry against every signature. One entry
// can raise multiple issues of different types.
func detectSecurityIssues(logs []models.LogEntry) []models.SecurityIssue {
	byType := make(map[string]*models.SecurityIssue)

	for _, entry := range logs {
		for name, re := range securityPatterns {
			match := re.FindString(entry.Message)
			if match == "" {
				continue
			}

			issue, ok := byType[name]
			if !ok {
				issue = &models.SecurityIssue{
					Type:        name,
					Severity:    severityFor(name),
					Description: describeIssue(name),
					Evidence:    match,
					Timestamp:   entry.Timestamp,
				}
				byType[name] = issue
			}
			issue.Count++
			if entry.Timestamp.After(issue.Timestamp) {
				issue.Timestamp = entry.Timestamp
			}
		}
	}

	issues := make([]models.SecurityIssue, 0, len(byType))
	for _, issue := range byType {
		issues = append(issues, *issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Count != issues[j].Count {
			return issues[i].Count > issues[j].Count
		}
		return issues[i].Type < issues[j].Type
	})
	return issues
}

func severityFor(issueType string) models.RiskLevel {
	if sev, ok := severityByType[issueType]; ok {
		return sev
	}
	return models.RiskLow
}

func describeIssue(issueType string) string {
	switch issueType {
	case "auth_failure":
		return "Authentication failures observed"
	case "injection":
		return "Possible injection attempt"
	case "suspicious_ip":
		return "Traffic from flagged IP addresses"
	case "brute_force":
		return "Repeated authentication attempts suggest brute forcing"
	case "privilege_escalation":
		return "Possible privilege escalation activity"
	case "malware":
		return "Malware indicators present in logs"
	default:
		return "Security signature matched"
	}
}

// threatLevel computes a weighted score: critical 10, high 5, medium 2,
// low 1 per occurrence, multiplied by 1.5 when issues concentrate above 10
// per hour. Thresholds: >50 critical, >25 high, >10 medium.
func threatLevel(issues []models.SecurityIssue, perHour map[string]int) models.RiskLevel {
	score := 0.0
	for _, issue := range issues {
		weight := 1.0
		switch issue.Severity {
		case models.RiskCritical:
			weight = 10
		case models.RiskHigh:
			weight = 5
		case models.RiskMedium:
			weight = 2
		}
		score += weight * float64(issue.Count)
	}

	if maxPerHour(perHour) > 10 {
		score *= 1.5
	}

	switch {
	case score > 50:
		return models.RiskCritical
	case score > 25:
		return models.RiskHigh
	case score > 10:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

func issuesPerHour(issues []models.SecurityIssue) map[string]int {
	perHour := make(map[string]int)
	for _, issue := range issues {
		if issue.Timestamp.IsZero() {
			continue
		}
		hour := issue.Timestamp.UTC().Format("2006-01-02T15")
		perHour[hour] += issue.Count
	}
	return perHour
}

func maxPerHour(perHour map[string]int) int {
	max := 0
	for _, n := range perHour {
		if n > max {
			max = n
		}
	}
	return max
}

func countBySeverity(issues []models.SecurityIssue) map[string]int {
	counts := map[string]int{"critical": 0, "high": 0, "medium": 0, "low": 0}
	for _, issue := range issues {
		counts[string(issue.Severity)] += issue.Count
	}
	return counts
}

func extractUniqueIPs(issues []models.SecurityIssue) []string {
	seen := make(map[string]bool)
	for _, issue := range issues {
		if ip := ipRe.FindString(issue.Evidence); ip != "" {
			seen[ip] = true
		}
	}

	ips := make([]string, 0, len(seen))
	for ip := range seen {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

func summarizeThreats(issues []models.SecurityIssue, uniqueIPs []string) string {
	parts := make([]string, 0, len(issues))
	total := 0
	for _, issue := range issues {
		total += issue.Count
		parts = append(parts, fmt.Sprintf("%s (%d, %s)", issue.Type, issue.Count, issue.Severity))
	}

	s := fmt.Sprintf("Detected %d security events: %s.", total, strings.Join(parts, ", "))
	if len(uniqueIPs) > 0 {
		s += fmt.Sprintf(" Involved IPs: %s.", strings.Join(uniqueIPs, ", "))
	}
	return s
}

func securityRecommendations(issues []models.SecurityIssue) []models.Recommendation {
	var recs []models.Recommendation
	for _, issue := range issues {
		switch issue.Type {
		case "brute_force", "auth_failure":
			recs = append(recs, models.Recommendation{
				Action:   "Enable account lockout and review failed login sources",
				Reason:   fmt.Sprintf("%d %s events", issue.Count, issue.Type),
				Priority: issue.Severity,
			})
		case "injection":
			recs = append(recs, models.Recommendation{
				Action:   "Audit input validation on affected endpoints",
				Reason:   fmt.Sprintf("%d injection attempts", issue.Count),
				Priority: models.RiskCritical,
			})
		case "privilege_escalation":
			recs = append(recs, models.Recommendation{
				Action:   "Review sudo and role grants on affected hosts",
				Reason:   fmt.Sprintf("%d privilege escalation events", issue.Count),
				Priority: models.RiskCritical,
			})
		case "malware":
			recs = append(recs, models.Recommendation{
				Action:   "Isolate affected hosts and run endpoint scans",
				Reason:   fmt.Sprintf("%d malware indicators", issue.Count),
				Priority: models.RiskCritical,
			})
		case "suspicious_ip":
			recs = append(recs, models.Recommendation{
				Action:   "Confirm blocklist coverage for the flagged addresses",
				Reason:   fmt.Sprintf("%d flagged-IP events", issue.Count),
				Priority: models.RiskMedium,
			})
		}
	}
	return recs
}
