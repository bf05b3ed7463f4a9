package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/serialkit/application"
	"github.com/lk2023060901/serialkit/pkg/log"
	"github.com/lk2023060901/serialkit/pkg/serial/cbor"
	"github.com/lk2023060901/serialkit/pkg/serial/frame"
	"github.com/lk2023060901/serialkit/pkg/serial/json"
	"github.com/lk2023060901/serialkit/pkg/serial/properties"
	"github.com/lk2023060901/serialkit/pkg/util/conc"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2

	moduleName = "serialfmt"
	stdinName  = "-"
)

// settings 对应配置文件的 serialfmt 段，命令行参数优先。
type settings struct {
	Workers  int    `mapstructure:"workers"`
	To       string `mapstructure:"to"`
	Compress int    `mapstructure:"compress"`
}

type result struct {
	out     []byte
	changed bool
}

type command struct {
	settings
	check  bool
	format *json.Format
	stdin  io.Reader
	lg     *log.MLogger
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet(moduleName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "config file (.yaml, .yml or .json)")
		pretty     = fs.Bool("pretty", false, "pretty print JSON output")
		indent     = fs.String("indent", "    ", "indent used with --pretty")
		lenient    = fs.Bool("lenient", false, "accept lenient JSON input")
		check      = fs.Bool("check", false, "list files whose formatting differs instead of printing them")
		to         = fs.String("to", "json", "output format: json, cbor or properties")
		workers    = fs.Int("workers", 0, "files processed in parallel, 0 means GOMAXPROCS")
		compress   = fs.Int("compress", -1, "zstd-compress cbor frames of at least this many bytes, -1 disables")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "serialfmt: %v\n", err)
		fs.PrintDefaults()
		return exitUsage
	}
	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(stderr, "serialfmt: no input files")
		fs.PrintDefaults()
		return exitUsage
	}
	if lo.Count(files, stdinName) > 1 {
		fmt.Fprintln(stderr, "serialfmt: standard input can be read only once")
		return exitUsage
	}

	app := application.New()
	if err := app.Init(*configPath); err != nil {
		fmt.Fprintf(stderr, "serialfmt: %v\n", err)
		return exitUsage
	}
	lg := app.Logger(moduleName)
	undo, err := maxprocs.Set(maxprocs.Logger(lg.Sugar().Debugf))
	if err != nil {
		lg.Warn("adjust GOMAXPROCS failed", zap.Error(err))
	}
	defer undo()

	s := settings{To: "json", Compress: -1}
	if cfg := app.Config(); cfg != nil && cfg.IsSet(moduleName) {
		if err := cfg.UnmarshalKey(moduleName, &s); err != nil {
			fmt.Fprintf(stderr, "serialfmt: decode %s section: %v\n", moduleName, err)
			return exitUsage
		}
	}
	if fs.Changed("workers") {
		s.Workers = *workers
	}
	if fs.Changed("to") {
		s.To = *to
	}
	if fs.Changed("compress") {
		s.Compress = *compress
	}
	if !lo.Contains([]string{"json", "cbor", "properties"}, s.To) {
		fmt.Fprintf(stderr, "serialfmt: unknown output format %q\n", s.To)
		return exitUsage
	}
	if *check && s.To != "json" {
		fmt.Fprintln(stderr, "serialfmt: --check requires --to json")
		return exitUsage
	}

	var opts []json.Option
	if fs.Changed("pretty") {
		opts = append(opts, json.WithPrettyPrint(*pretty))
	}
	if fs.Changed("indent") {
		opts = append(opts, json.WithPrettyPrintIndent(*indent))
	}
	if fs.Changed("lenient") {
		opts = append(opts, json.WithLenient(*lenient))
	}
	var format *json.Format
	if path := app.ConfigPath(); path != "" {
		format, err = json.LoadConfig(path, opts...)
	} else {
		format, err = json.New(opts...)
	}
	if err != nil {
		fmt.Fprintf(stderr, "serialfmt: %v\n", err)
		return exitUsage
	}

	cmd := &command{settings: s, check: *check, format: format, stdin: stdin, lg: lg}
	code, err := cmd.execute(files, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "serialfmt: %v\n", err)
	}
	_ = lg.Sync()
	return code
}

// execute 在协程池中处理所有文件，并按参数顺序输出结果。
func (c *command) execute(files []string, stdout, stderr io.Writer) (int, error) {
	pool, err := conc.NewPool[result](c.Workers, conc.WithName(moduleName))
	if err != nil {
		return exitUsage, err
	}
	defer pool.Release()

	var fw *frame.Writer
	if c.To == "cbor" {
		if fw, err = frame.NewWriter(stdout, "cbor", frame.WithCompression(c.Compress)); err != nil {
			return exitFailed, err
		}
	}

	futures := make([]*conc.Future[result], len(files))
	for i, name := range files {
		futures[i] = pool.Submit(func() (result, error) {
			return c.process(name)
		})
	}

	code := exitOK
	for i, fut := range futures {
		name := files[i]
		res, err := fut.Await()
		if err != nil {
			c.lg.Debug("process file failed", log.FieldPath(name), zap.Error(err))
			fmt.Fprintf(stderr, "serialfmt: %s: %v\n", name, err)
			code = exitFailed
			continue
		}
		switch {
		case c.check:
			if res.changed {
				fmt.Fprintln(stdout, name)
				code = exitFailed
			}
		case fw != nil:
			err = fw.WriteFrame(res.out)
		default:
			_, err = stdout.Write(append(res.out, '\n'))
		}
		if err != nil {
			return exitFailed, err
		}
	}
	return code, nil
}

func (c *command) process(name string) (result, error) {
	var (
		data []byte
		err  error
	)
	if name == stdinName {
		data, err = io.ReadAll(c.stdin)
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return result{}, err
	}
	el, err := json.ParseElement(c.format, data)
	if err != nil {
		return result{}, err
	}

	var out []byte
	switch c.To {
	case "cbor":
		out, err = cbor.Marshal(cbor.Default, json.ElementSerializer, el)
	case "properties":
		out, err = properties.Marshal(properties.Default, json.ElementSerializer, el)
		out = bytes.TrimSuffix(out, []byte("\n"))
	default:
		out, err = json.EncodeToBytes(c.format, json.ElementSerializer, el)
	}
	if err != nil {
		return result{}, err
	}
	c.lg.Debug("file processed", log.FieldPath(name), log.FieldFormat(c.To), zap.Int("bytes", len(out)))
	return result{out: out, changed: !bytes.Equal(bytes.TrimSuffix(data, []byte("\n")), out)}, nil
}
