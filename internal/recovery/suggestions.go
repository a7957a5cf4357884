package recovery

// categorySuggestions maps every detection category to actionable
// recovery steps surfaced at strike two and bundled into escalations.
var categorySuggestions = map[Category][]string{
	CategoryShell: {
		"Check that the command exists and is spelled correctly (`which <cmd>`)",
		"Verify the working directory and file paths the command references",
		"Check file permissions on the target paths",
	},
	CategoryModule: {
		"Install the missing dependency (npm install / pip install / go get)",
		"Verify the import path matches the package's actual location",
		"Check that the lockfile and manifest are in sync",
	},
	CategoryBuild: {
		"Read the first compiler error; later errors are usually cascade",
		"Check for recent edits near the reported file and line",
		"Run the build locally with verbose output to get full context",
	},
	CategoryTest: {
		"Run only the failing test to get focused output",
		"Compare the expected and actual values in the assertion message",
		"Check whether recent changes altered the behavior under test",
	},
	CategoryRuntime: {
		"Inspect the stack trace for the first frame in project code",
		"Check for nil/undefined values flowing into the failing call",
		"Add a guard or default for the unexpected input shape",
	},
	CategoryNetwork: {
		"Check that the target service is running and the port is correct",
		"Verify DNS resolution and proxy settings",
		"Retry once; transient network failures are common",
	},
	CategoryResource: {
		"Free disk space or memory before retrying",
		"Check for runaway processes or unclosed file handles",
		"Reduce the working set (smaller batch, fewer parallel jobs)",
	},
	CategoryGeneric: {
		"Read the full error output carefully before retrying",
		"Try a different approach rather than repeating the same command",
		"Break the operation into smaller steps to isolate the failure",
	},
}

// SuggestionsFor returns the recovery suggestions for a category,
// falling back to the generic set.
func SuggestionsFor(category Category) []string {
	if s, ok := categorySuggestions[category]; ok {
		return s
	}
	return categorySuggestions[CategoryGeneric]
}
