package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wraxau/AC-laba3/internal/config"
	"github.com/wraxau/AC-laba3/internal/domain"
	"github.com/wraxau/AC-laba3/internal/infra/fsx"
	"github.com/wraxau/AC-laba3/internal/infra/httpx"
	"github.com/wraxau/AC-laba3/internal/invert"
	"github.com/wraxau/AC-laba3/internal/pipeline"
	"github.com/wraxau/AC-laba3/internal/source"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		Path:         ra.Path,
		Out:          ra.Out,
		OutSet:       ra.OutSet,
		Workers:      ra.Workers,
		WorkersSet:   ra.WorkersSet,
		SourceURL:    ra.SourceURL,
		SourceURLSet: ra.SourceURLSet,
	})
	if err != nil {
		emitReport(reportForConfigError(err))
		return 1
	}

	logger := newLogger(eff.LogLevel)

	// Ctrl-C / SIGTERM：取消后不再接受新条目，排空队列并正常产出报告。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client *http.Client
	var src source.Source
	if eff.SourceURL != "" {
		client, err = httpx.NewClient(eff.ProxyURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "初始化 HTTP client 失败：%v\n", err)
			return 1
		}
		src = source.Index{URL: eff.SourceURL, Client: client}
	} else {
		src = source.Dir{Root: eff.Path}
	}

	proc := invert.Processor{Client: client}

	progressW, interactive := pickProgressWriter()
	var obs pipeline.Observer
	var ui *progressUI
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	rr := pipeline.ExecuteWithObserver(ctx, eff, src, proc.Process, obs, logger)
	if ui != nil {
		ui.stop()
	}

	// report.json 只在输出目录可用时落盘；运行级失败仍照常输出到 stdout。
	if !rr.HasFatal() {
		if err := writeReportFile(eff.Out, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, !rr.HasFatal())
	}
	if rr.HasFatal() {
		return 1
	}
	// 单条目失败不改变退出码：逐条结论都在报告里，调用方按需判断。
	return 0
}

type runArgs struct {
	Path string

	Out    string
	OutSet bool

	Workers    int
	WorkersSet bool

	SourceURL    string
	SourceURLSet bool
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	setWorkers := func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("--workers 需要一个整数，实际是 %q", v)
		}
		ra.Workers = n
		ra.WorkersSet = true
		return nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--out":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--out 需要一个值")
			}
			i++
			ra.Out = args[i]
			ra.OutSet = true
		case strings.HasPrefix(a, "--out="):
			ra.Out = strings.TrimPrefix(a, "--out=")
			ra.OutSet = true
		case a == "--workers":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--workers 需要一个值")
			}
			i++
			if err := setWorkers(args[i]); err != nil {
				return runArgs{}, err
			}
		case strings.HasPrefix(a, "--workers="):
			if err := setWorkers(strings.TrimPrefix(a, "--workers=")); err != nil {
				return runArgs{}, err
			}
		case a == "--source-url":
			if i+1 >= len(args) {
				return runArgs{}, fmt.Errorf("--source-url 需要一个值")
			}
			i++
			ra.SourceURL = args[i]
			ra.SourceURLSet = true
		case strings.HasPrefix(a, "--source-url="):
			ra.SourceURL = strings.TrimPrefix(a, "--source-url=")
			ra.SourceURLSet = true
		case strings.HasPrefix(a, "-"):
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			if ra.Path != "" {
				return runArgs{}, fmt.Errorf("重复的 path：%q 与 %q", ra.Path, a)
			}
			ra.Path = a
		}
	}

	if ra.OutSet && strings.TrimSpace(ra.Out) == "" {
		return runArgs{}, fmt.Errorf("--out 不能为空")
	}
	if ra.SourceURLSet && strings.TrimSpace(ra.SourceURL) == "" {
		return runArgs{}, fmt.Errorf("--source-url 不能为空")
	}

	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  invimg run [path] [--out DIR] [--workers N] [--source-url URL]

命令：
  run    批量反色处理一个目录（或远端 autoindex）里的图片

使用 "invimg run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  invimg run [path] [--out DIR] [--workers N] [--source-url URL]

参数：
  --out         输出目录（默认 <path>/out；远端模式默认 <cwd>/out）
  --workers     worker 数（1..32，默认 4）
  --source-url  远端 autoindex 页面 URL；指定后 path 不再参与枚举
  -h, --help    显示帮助
`)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(lvl).
		With().Timestamp().Logger()
}

func emitReport(rr domain.RunReport) {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "完成：processed=%d skipped=%d failed=%d\n",
			rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
		)
		if rr.Summary.Failed > 0 {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed {
					continue
				}
				key := it.Name
				if key == "" {
					key = "<run>"
				}
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintf(os.Stderr, "完成：processed=%d skipped=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed,
	)
}

func reportForConfigError(err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(outDir string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(outDir, "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, wroteReport bool) {
	if w == nil {
		return
	}
	if wroteReport {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Out, "report.json"))
	}
	fmt.Fprintf(w, "out: %s\n", eff.Out)
}
