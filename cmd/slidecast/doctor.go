package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/maauso/slidecast/internal/bootstrap"
	"github.com/maauso/slidecast/internal/config"
	"github.com/maauso/slidecast/internal/event"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and host resources",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
}

type toolReport struct {
	name    string
	path    string
	version string
	err     error
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := cfg.NewLogger()

	deps, err := bootstrap.NewDependencies(cfg, logger, event.NopObserver{})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reports := []toolReport{
		checkTool(ctx, "ffmpeg", cfg.FFmpegPath, cfg.SubprocessTimeout, deps.Processor.Version),
		checkTool(ctx, "ffprobe", cfg.FFprobePath, cfg.SubprocessTimeout, nil),
		checkTool(ctx, "yt-dlp", cfg.YtDlpPath, cfg.SubprocessTimeout, deps.YtDlp.Version),
		checkTool(ctx, "tesseract", cfg.TesseractPath, cfg.SubprocessTimeout, deps.Tesseract.Version),
	}

	required := map[string]bool{"ffmpeg": true, "ffprobe": true}
	hints := map[string]string{
		"yt-dlp":    "needed for YouTube sources",
		"tesseract": "needed for --ocr",
	}

	out := cmd.OutOrStdout()
	var missing []string
	for _, report := range reports {
		switch {
		case report.path == "" && required[report.name]:
			fmt.Fprintf(out, "%-10s missing\n", report.name)
			missing = append(missing, report.name)
		case report.path == "":
			fmt.Fprintf(out, "%-10s missing (%s)\n", report.name, hints[report.name])
		case report.err != nil:
			fmt.Fprintf(out, "%-10s %s (version check failed: %v)\n", report.name, report.path, report.err)
		case report.version != "":
			fmt.Fprintf(out, "%-10s %s\n", report.name, report.version)
		default:
			fmt.Fprintf(out, "%-10s %s\n", report.name, report.path)
		}
	}

	printHost(ctx, out, cfg)

	if len(missing) > 0 {
		return fmt.Errorf("required tools missing: %s", strings.Join(missing, ", "))
	}
	return nil
}

// checkTool resolves a binary on PATH and, when a version probe is
// given, captures the version it reports.
func checkTool(ctx context.Context, name, configured string, timeout time.Duration, probe func(context.Context) (string, error)) toolReport {
	report := toolReport{name: name}

	bin := configured
	if bin == "" {
		bin = name
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return report
	}
	report.path = path

	if probe == nil {
		return report
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	report.version, report.err = probe(probeCtx)
	return report
}

// printHost reports CPU and memory so worker-count tuning has context,
// plus the publishing and scratch configuration in effect.
func printHost(ctx context.Context, out io.Writer, cfg *config.Config) {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		fmt.Fprintf(out, "%-10s unavailable: %v\n", "cpu", err)
	} else {
		fmt.Fprintf(out, "%-10s %d logical cores (workers: %d)\n", "cpu", cores, cfg.Workers)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		fmt.Fprintf(out, "%-10s unavailable: %v\n", "memory", err)
	} else {
		fmt.Fprintf(out, "%-10s %.1f GiB total, %.0f%% used\n", "memory", float64(vm.Total)/(1<<30), vm.UsedPercent)
	}

	if cfg.S3Enabled() {
		fmt.Fprintf(out, "%-10s bucket %s (%s)\n", "s3", cfg.S3Bucket, cfg.S3Region)
	} else {
		fmt.Fprintf(out, "%-10s disabled\n", "s3")
	}
	fmt.Fprintf(out, "%-10s %s\n", "temp dir", cfg.TempDir)
}
