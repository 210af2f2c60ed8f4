package params

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/rendis/worldscript/pkg/schema"
)

// Resolver expands macro tokens in action parameter templates.
//
// The template is scanned once, left to right. Each token is replaced by
// exactly one substitution and the substituted text is written straight to
// the output, so a value that itself looks like a token is never expanded
// again. Resolution never fails: unknown input is copied through and
// malformed or unanswerable tokens fall back to neutral defaults.
type Resolver struct {
	providers Providers
	logger    *slog.Logger
}

// NewResolver creates a Resolver over the given providers.
func NewResolver(p Providers, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{providers: p, logger: logger}
}

// funcToken is one function-call family: %prefix(args...).
type funcToken struct {
	prefix string // including the opening parenthesis
	arity  int
	eval   func(r *Resolver, ctx context.Context, args []int64) (string, error)
	zero   string
}

// funcTokens is ordered longest prefix first.
var funcTokens = sortFuncs([]funcToken{
	{prefix: "%stc(", arity: 2, eval: evalStat, zero: DefaultNumber},
	{prefix: "%task_data(", arity: 2, eval: evalTask, zero: DefaultNumber},
	{prefix: "%global_dyna_data(", arity: 2, eval: evalGlobalInt, zero: DefaultNumber},
	{prefix: "%global_dyna_data_str(", arity: 2, eval: evalGlobalString, zero: DefaultName},
	{prefix: "%random(", arity: 1, eval: evalRandom, zero: DefaultNumber},
})

func sortFuncs(fs []funcToken) []funcToken {
	sort.SliceStable(fs, func(i, j int) bool {
		return len(fs[i].prefix) > len(fs[j].prefix)
	})
	return fs
}

// Resolve returns template with every recognised token expanded against ec
// and the configured providers.
func (r *Resolver) Resolve(ctx context.Context, template string, ec *schema.ExecutionContext) string {
	if !strings.Contains(template, "%") {
		return template
	}

	var out strings.Builder
	out.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.IndexByte(template[i:], '%')
		if idx == -1 {
			out.WriteString(template[i:])
			break
		}

		// Write everything before the marker.
		out.WriteString(template[i : i+idx])
		pos := i + idx
		rest := template[pos:]

		if n, ok := r.expandFunc(ctx, &out, rest); ok {
			i = pos + n
			continue
		}
		if n, ok := expandSimple(&out, rest, ec); ok {
			i = pos + n
			continue
		}
		if strings.HasPrefix(rest, "%%") {
			out.WriteByte('%')
			i = pos + 2
			continue
		}

		// Not a token: keep the percent sign.
		out.WriteByte('%')
		i = pos + 1
	}

	return out.String()
}

// expandFunc expands a function-call token at the start of rest and reports
// how many bytes of rest it consumed.
func (r *Resolver) expandFunc(ctx context.Context, out *strings.Builder, rest string) (int, bool) {
	for _, ft := range funcTokens {
		if !strings.HasPrefix(rest, ft.prefix) {
			continue
		}

		closeIdx := strings.IndexByte(rest[len(ft.prefix):], ')')
		if closeIdx == -1 {
			// Unterminated: leave the token text as authored.
			out.WriteString(ft.prefix)
			return len(ft.prefix), true
		}
		end := len(ft.prefix) + closeIdx + 1
		token := rest[:end]
		inner := rest[len(ft.prefix) : end-1]

		args, ok := parseArgs(inner, ft.arity)
		if !ok {
			r.logger.WarnContext(ctx, "malformed macro arguments",
				slog.String("code", schema.ErrCodeConfiguration),
				slog.String("token", token),
			)
			out.WriteString(ft.zero)
			return end, true
		}

		val, err := ft.eval(r, ctx, args)
		if err != nil {
			r.logger.WarnContext(ctx, "macro provider failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
			val = ft.zero
		}
		out.WriteString(val)
		return end, true
	}
	return 0, false
}

func expandSimple(out *strings.Builder, rest string, ec *schema.ExecutionContext) (int, bool) {
	for _, tok := range simpleTokens {
		if strings.HasPrefix(rest, tok.name) {
			out.WriteString(tok.value(ec))
			return len(tok.name), true
		}
	}
	return 0, false
}

// parseArgs parses a comma separated argument list of exactly arity
// integers. Two-argument forms split on the first comma only, so a stray
// second comma makes the second argument unparseable.
func parseArgs(inner string, arity int) ([]int64, bool) {
	var parts []string
	switch arity {
	case 1:
		parts = []string{inner}
	case 2:
		a, b, found := strings.Cut(inner, ",")
		if !found {
			return nil, false
		}
		parts = []string{a, b}
	default:
		return nil, false
	}

	args := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, false
		}
		args = append(args, n)
	}
	return args, true
}

// ids narrows provider arguments to unsigned 32-bit identifiers.
func ids(args []int64) (uint32, uint32, bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	for _, a := range args {
		if a < 0 || a > int64(^uint32(0)) {
			return 0, 0, false
		}
	}
	return uint32(args[0]), uint32(args[1]), true
}

func evalStat(r *Resolver, ctx context.Context, args []int64) (string, error) {
	event, typ, ok := ids(args)
	if !ok || r.providers.Stats == nil {
		return DefaultNumber, nil
	}
	v, err := r.providers.Stats.Stat(ctx, event, typ)
	if err != nil {
		return DefaultNumber, err
	}
	return strconv.FormatInt(v, 10), nil
}

func evalTask(r *Resolver, ctx context.Context, args []int64) (string, error) {
	task, field, ok := ids(args)
	if !ok || r.providers.Tasks == nil {
		return DefaultNumber, nil
	}
	v, err := r.providers.Tasks.TaskField(ctx, task, field)
	if err != nil {
		return DefaultNumber, err
	}
	return strconv.FormatInt(v, 10), nil
}

func evalGlobalInt(r *Resolver, ctx context.Context, args []int64) (string, error) {
	dataset, index, ok := ids(args)
	if !ok || r.providers.Globals == nil {
		return DefaultNumber, nil
	}
	v, err := r.providers.Globals.GlobalInt(ctx, dataset, index)
	if err != nil {
		return DefaultNumber, err
	}
	return strconv.FormatInt(v, 10), nil
}

func evalGlobalString(r *Resolver, ctx context.Context, args []int64) (string, error) {
	dataset, index, ok := ids(args)
	if !ok || r.providers.Globals == nil {
		return DefaultName, nil
	}
	v, err := r.providers.Globals.GlobalString(ctx, dataset, index)
	if err != nil {
		return DefaultName, err
	}
	return nameOrDefault(v), nil
}

func evalRandom(r *Resolver, _ context.Context, args []int64) (string, error) {
	n := args[0]
	if n <= 0 || r.providers.Random == nil {
		return DefaultNumber, nil
	}
	if n > int64(maxInt) {
		n = int64(maxInt)
	}
	return strconv.Itoa(r.providers.Random.Intn(int(n))), nil
}

const maxInt = int(^uint(0) >> 1)
