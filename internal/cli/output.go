package cli

import (
	"github.com/fatih/color"

	"github.com/athena-ops/athena-stack/internal/models"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)

	riskColors = map[models.RiskLevel]*color.Color{
		models.RiskLow:      color.New(color.FgGreen),
		models.RiskMedium:   color.New(color.FgYellow),
		models.RiskHigh:     color.New(color.FgRed),
		models.RiskCritical: color.New(color.FgRed, color.Bold),
	}
)

func printSuccess(format string, a ...any) {
	successColor.Printf("✓ "+format+"\n", a...)
}

func printInfo(format string, a ...any) {
	infoColor.Printf(format+"\n", a...)
}

func printWarn(format string, a ...any) {
	warnColor.Printf("⚠ "+format+"\n", a...)
}

// riskString renders a risk level with its severity color.
func riskString(level models.RiskLevel) string {
	if c, ok := riskColors[level]; ok {
		return c.Sprint(string(level))
	}
	return string(level)
}
