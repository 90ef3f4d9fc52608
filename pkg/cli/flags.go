package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NormalizeBooleanFlags rewrites "--flag false" into "--flag=false" for the
// boolean flags of root and its subcommands. pflag would otherwise take
// "false" as a positional argument.
func NormalizeBooleanFlags(root *cobra.Command, args []string) []string {
	bools := booleanFlagNames(root)

	normalized := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		current := args[i]
		if current == "--" {
			return append(normalized, args[i:]...)
		}
		if strings.HasPrefix(current, "--") && !strings.Contains(current, "=") && i+1 < len(args) {
			name := strings.TrimPrefix(current, "--")
			next := strings.ToLower(args[i+1])
			if bools[name] && (next == "true" || next == "false") {
				normalized = append(normalized, fmt.Sprintf("--%s=%s", name, next))
				i++
				continue
			}
		}
		normalized = append(normalized, current)
	}
	return normalized
}

func booleanFlagNames(root *cobra.Command) map[string]bool {
	names := map[string]bool{}
	collect := func(f *pflag.Flag) {
		if f.Value.Type() == "bool" {
			names[f.Name] = true
		}
	}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.PersistentFlags().VisitAll(collect)
		c.LocalFlags().VisitAll(collect)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(root)
	return names
}

// headerValue collects repeated --header Name=Value entries
type headerValue struct {
	headers map[string]string
}

var _ pflag.Value = (*headerValue)(nil)

func (h *headerValue) String() string {
	if len(h.headers) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(h.headers))
	for k, v := range h.headers {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// Set splits on the first '='; a value without one is a header with no value
func (h *headerValue) Set(val string) error {
	if h.headers == nil {
		h.headers = map[string]string{}
	}
	name, value, _ := strings.Cut(val, "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("header name is empty in %q", val)
	}
	h.headers[name] = value
	return nil
}

func (h *headerValue) Type() string { return "Name=Value" }
