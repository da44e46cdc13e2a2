package logo

import (
	"github.com/pterm/pterm"
	"github.com/pterm/pterm/putils"
)

// Display renders the project banner.
func Display() {
	s, _ := pterm.DefaultBigText.WithLetters(
		putils.LettersFromStringWithStyle("R", pterm.FgCyan.ToStyle()),
		putils.LettersFromStringWithStyle("ollupis", pterm.FgLightMagenta.ToStyle())).Srender()
	pterm.DefaultCenter.Println(s)
	pterm.DefaultCenter.WithCenterEachLineSeparately().
		Println("Rollup node and client\nsequencing purchases into chained blocks.")
}
