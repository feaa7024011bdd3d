package parser

import (
	"regexp"
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// moduleLineRe matches a WinDbg `lm` module line:
// "start`addr  end`addr  ModuleName  (status)  [optional path]".
var moduleLineRe = regexp.MustCompile(
	"^\\s*([0-9a-fA-F`]+)\\s+[0-9a-fA-F`]+\\s+(\\S+)\\s+(.*)$")

// symbolStatusOrder lists status phrases in the priority they must be
// searched for — "private pdb" and "pdb symbols" both contain "pdb" so the
// longer, more specific phrase must win.
var symbolStatusOrder = []string{"private pdb", "pdb symbols", "deferred"}

// ParseModules parses a WinDbg `lm` listing into report.Module entries.
// Symbol status is one of deferred|pdb symbols|private pdb|none.
func ParseModules(text string, r *report.Report) {
	for _, line := range strings.Split(text, "\n") {
		m := moduleLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		baseAddr := strings.ReplaceAll(m[1], "`", "")
		name := m[2]
		status := "none"
		lower := strings.ToLower(m[3])
		for _, candidate := range symbolStatusOrder {
			if strings.Contains(lower, candidate) {
				status = candidate
				break
			}
		}
		r.Analysis.Modules = append(r.Analysis.Modules, report.Module{
			Name:        name,
			BaseAddress: baseAddr,
			HasSymbols:  status == "pdb symbols" || status == "private pdb",
		})
	}
}
