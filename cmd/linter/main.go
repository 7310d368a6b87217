// Command linter runs the project's static analyzer. It flags usage of
// panic anywhere, and calls to log.Fatal or os.Exit outside of main.main.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/devicewatch-io/defender-agent/cmd/linter/analyzer"
)

func main() {
	singlechecker.Main(analyzer.Analyzer)
}
