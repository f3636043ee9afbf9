package server

import (
	"fmt"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/swicore/switcher/internal/errs"
	"github.com/swicore/switcher/pkg/types"
)

// launchInput carries everything arg building needs, resolved by the caller.
type launchInput struct {
	ServerID      string
	JavaExe       string
	Option        types.LaunchOption
	CustomCommand string // used when non-empty
}

// buildArgs assembles the child command line. A custom launch command is
// tokenized POSIX-style with variable interpolation; otherwise the canonical
// java invocation is generated. The second return reports the generated path.
func buildArgs(in launchInput) ([]string, bool, error) {
	if in.CustomCommand != "" {
		args, err := interpolateCommand(in)
		return args, false, err
	}

	opt := in.Option
	args := []string{in.JavaExe}
	args = append(args, memArgs(opt)...)
	args = append(args, splitOptions(strValue(opt.JavaOptions))...)
	args = append(args, "-Dswi.serverName="+in.ServerID)
	jar := strValue(opt.JarFile)
	if jar == "" {
		return nil, true, errs.ErrLaunch.WithDetail("no jar file configured")
	}
	args = append(args, "-jar", jar)
	args = append(args, splitOptions(strValue(opt.ServerOptions))...)
	return args, true, nil
}

func memArgs(opt types.LaunchOption) []string {
	var out []string
	if opt.MinHeapMemory != nil && *opt.MinHeapMemory > 0 {
		out = append(out, fmt.Sprintf("-Xms%dM", *opt.MinHeapMemory))
	}
	if opt.MaxHeapMemory != nil && *opt.MaxHeapMemory > 0 {
		out = append(out, fmt.Sprintf("-Xmx%dM", *opt.MaxHeapMemory))
	}
	return out
}

// interpolateCommand tokenizes the custom command and expands the launch
// variables. Multi-token variables expand in place.
func interpolateCommand(in launchInput) ([]string, error) {
	tokens, err := shellwords.Parse(in.CustomCommand)
	if err != nil {
		return nil, errs.ErrLaunch.WithDetail("launch_command: %v", err)
	}

	opt := in.Option
	expand := map[string][]string{
		"$JAVA_EXE":      {in.JavaExe},
		"$JAVA_MEM_ARGS": memArgs(opt),
		"$JAVA_ARGS":     splitOptions(strValue(opt.JavaOptions)),
		"$SERVER_ID":     {in.ServerID},
		"$SERVER_JAR":    {strValue(opt.JarFile)},
		"$SERVER_ARGS":   splitOptions(strValue(opt.ServerOptions)),
	}

	var out []string
	for _, tok := range tokens {
		if repl, ok := expand[tok]; ok {
			out = append(out, repl...)
			continue
		}
		for name, repl := range expand {
			if strings.Contains(tok, name) {
				tok = strings.ReplaceAll(tok, name, strings.Join(repl, " "))
			}
		}
		out = append(out, tok)
	}
	if len(out) == 0 {
		return nil, errs.ErrLaunch.WithDetail("launch_command is empty after expansion")
	}
	return out, nil
}

func splitOptions(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	tokens, err := shellwords.Parse(s)
	if err != nil {
		return strings.Fields(s)
	}
	return tokens
}

func strValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// virtualMemory is swapped out in tests.
var virtualMemory = mem.VirtualMemory

// checkFreeMemory fails when launching a max-heap of the given size would
// leave the host short: available must strictly exceed heap·1.25 plus 12.5%
// of total, so exact equality refuses the start.
func checkFreeMemory(maxHeapMB int) error {
	if maxHeapMB <= 0 {
		return nil
	}
	vm, err := virtualMemory()
	if err != nil {
		return fmt.Errorf("read memory stats: %w", err)
	}
	const mb = 1024 * 1024
	availMB := float64(vm.Available) / mb
	totalMB := float64(vm.Total) / mb
	need := float64(maxHeapMB)*1.25 + totalMB*0.125
	if availMB <= need {
		return errs.ErrOutOfMemory.WithDetail("available %.0fMB, need %.0fMB", availMB, need)
	}
	return nil
}
