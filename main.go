package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/vish/memramp/internal/allocator"
	"github.com/vish/memramp/internal/ramp"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// newAllocator builds the allocator backing a run.
var newAllocator = func(limit resource.Quantity) ramp.Allocator {
	return allocator.New(allocator.WithLimit(limit))
}

type options struct {
	memoryLimit string
	hold        time.Duration

	limit resource.Quantity
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	glog.Flush()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := exitOK
	cmd := newRootCommand(&code)
	cmd.SetArgs(terminateFlags(cmd.Flags(), args))
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n%s", err, cmd.UsageString())
		return exitUsage
	}
	return code
}

var negativeInt = regexp.MustCompile(`^-[0-9]+$`)

// terminateFlags inserts "--" before a negative integer that would otherwise
// be parsed as a shorthand flag, provided it is the first positional argument.
// Later positionals are never parsed as flags since interspersing is off.
func terminateFlags(fs *pflag.FlagSet, args []string) []string {
	expectValue := false
	for i, arg := range args {
		switch {
		case expectValue:
			expectValue = false
		case arg == "--":
			return args
		case negativeInt.MatchString(arg):
			out := make([]string, 0, len(args)+1)
			out = append(out, args[:i]...)
			out = append(out, "--")
			return append(out, args[i:]...)
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			expectValue = takesValue(fs, arg)
		default:
			return args
		}
	}
	return args
}

// takesValue reports whether arg is a flag whose value is the next argument.
func takesValue(fs *pflag.FlagSet, arg string) bool {
	if strings.Contains(arg, "=") {
		return false
	}
	var f *pflag.Flag
	if name, ok := strings.CutPrefix(arg, "--"); ok {
		f = fs.Lookup(name)
	} else if name := arg[1:]; len(name) == 1 {
		f = fs.ShorthandLookup(name)
	}
	return f != nil && f.NoOptDefVal == ""
}

func newRootCommand(code *int) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "memramp [flags] <initial_memory_mb> <final_memory_mb> <duration_s> <initial_wait_s>",
		Short: "Gradually increase memory usage to observe behavior under memory pressure",
		Long: `memramp allocates initial_memory_mb, waits initial_wait_s seconds, then grows
its memory linearly until it holds final_memory_mb after duration_s seconds.
Interrupting it reports the memory reached and exits successfully.
Flags go before the positional arguments.`,
		Args:          cobra.MatchAll(cobra.ExactArgs(4), integerArgs),
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			limit, err := resource.ParseQuantity(opts.memoryLimit)
			if err != nil {
				return fmt.Errorf("invalid --memory-limit %q: %w", opts.memoryLimit, err)
			}
			if limit.Sign() < 0 {
				return fmt.Errorf("--memory-limit cannot be negative, got %q", opts.memoryLimit)
			}
			if opts.hold < 0 {
				return fmt.Errorf("--hold cannot be negative, got %v", opts.hold)
			}
			opts.limit = limit
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = run(cmd.Context(), paramsFromArgs(args), opts, cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.memoryLimit, "memory-limit", "0", "report out of memory once this much would be committed, e.g. 512Mi (0 disables the limit)")
	cmd.Flags().DurationVar(&opts.hold, "hold", 0, "keep the final allocation for this long before exiting")
	cmd.Flags().AddGoFlagSet(flag.CommandLine)
	cmd.Flags().SetInterspersed(false)

	return cmd
}

func integerArgs(_ *cobra.Command, args []string) error {
	for _, arg := range args {
		if _, err := strconv.Atoi(arg); err != nil {
			return fmt.Errorf("invalid integer argument %q", arg)
		}
	}
	return nil
}

func paramsFromArgs(args []string) ramp.Params {
	n := make([]int, len(args))
	for i, arg := range args {
		n[i], _ = strconv.Atoi(arg)
	}
	return ramp.Params{
		InitialMB:          n[0],
		FinalMB:            n[1],
		DurationSeconds:    n[2],
		InitialWaitSeconds: n[3],
	}
}

func run(ctx context.Context, p ramp.Params, opts *options, out io.Writer) int {
	if err := p.Validate(); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return exitError
	}
	if !opts.limit.IsZero() {
		glog.Infof("Reporting out of memory above %q", opts.limit.String())
	}

	s := ramp.New(p, newAllocator(opts.limit),
		ramp.WithOutput(out),
		ramp.WithHold(opts.hold),
	)
	err := s.Run(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, allocator.ErrOutOfMemory):
		glog.Warningf("Allocation failed at %dMB: %v", s.Current(), err)
		fmt.Fprintf(out, "\nOOM Error occurred at %dMB allocation\n", s.Current())
		return exitError
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(out, "\nProcess interrupted. Final memory allocation: %dMB\n", s.Current())
		return exitOK
	default:
		fmt.Fprintf(out, "Error: %v\n", err)
		return exitError
	}
}
