package derived

import (
	"strings"

	"github.com/dumpscope/dumpscope/pkg/report"
)

// Module-name markers used by runtime-shape detection. All comparisons are
// against lowercased module basenames.
const (
	moduleCoreCLR = "coreclr"
	moduleCLRJIT  = "clrjit"
	moduleMono    = "monosgen"
	moduleMusl    = "musl"
)

func moduleBaseName(name string) string {
	name = strings.ToLower(name)
	if idx := strings.LastIndexAny(name, "/\\"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, ".dll"), ".so")
}

// DetectRuntimeShape fills environment.runtime and environment.nativeAot
// from the loaded module list: a dump with managed frames but no CoreCLR or
// Mono runtime module is NativeAOT-shaped, and the absence of clrjit means
// no JIT is present. musl libc marks an Alpine image.
func DetectRuntimeShape(r *report.Report) {
	env := &r.Analysis.Environment

	hasCoreCLR := false
	hasJIT := false
	hasMono := false
	hasMusl := false
	for _, m := range r.Analysis.Modules {
		base := moduleBaseName(m.Name)
		switch {
		case strings.Contains(base, moduleCoreCLR):
			hasCoreCLR = true
		case strings.Contains(base, moduleCLRJIT):
			hasJIT = true
		case strings.Contains(base, moduleMono):
			hasMono = true
		case strings.Contains(base, moduleMusl):
			hasMusl = true
		}
	}

	hasManagedFrames := false
	for _, t := range r.Analysis.Threads.All {
		for _, f := range t.CallStack {
			if f.IsManaged {
				hasManagedFrames = true
				break
			}
		}
		if hasManagedFrames {
			break
		}
	}

	if hasMusl {
		env.Platform.IsAlpine = true
		env.Platform.LibcType = "musl"
	}

	switch {
	case hasMono:
		env.Runtime.Type = report.RuntimeMono
	case hasCoreCLR:
		env.Runtime.Type = report.RuntimeCoreCLR
	case hasManagedFrames:
		env.Runtime.Type = report.RuntimeNativeAOT
	}

	aot := &env.NativeAOT
	aot.HasJITCompiler = hasJIT
	if env.Runtime.Type != report.RuntimeNativeAOT {
		return
	}

	aot.IsNativeAOT = true
	aot.Indicators = append(aot.Indicators, "managed frames present without a CoreCLR or Mono runtime module")
	if !hasJIT {
		aot.Indicators = append(aot.Indicators, "no JIT compiler module loaded")
	}

	if aot.TrimmingAnalysis == nil && missingMethodException(r) {
		// A missing-member exception inside a NativeAOT binary is the usual
		// trimming fingerprint.
		aot.TrimmingAnalysis = &report.TrimmingAnalysis{
			Confidence:             "medium",
			PotentialTrimmingIssue: true,
			Recommendation:         "A member was missing at runtime in an AOT-compiled binary; check trimmer root descriptors (TrimmerRootAssembly / DynamicDependency) for the failing type.",
		}
	}
}

func missingMethodException(r *report.Report) bool {
	exc := r.Analysis.Exception
	if exc == nil {
		return false
	}
	switch {
	case strings.Contains(exc.Type, "MissingMethodException"),
		strings.Contains(exc.Type, "MissingMemberException"),
		strings.Contains(exc.Type, "TypeLoadException"):
		return true
	}
	return false
}
