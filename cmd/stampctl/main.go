// Command stampctl renders stamps offline from a preset or a YAML/JSON
// configuration file.
package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"stampdesk/stamp-studio/stamp-studio-backend/internal/stamp"
)

var errTerminal = errors.New("refusing to write PNG to a terminal, use -o")

type options struct {
	configPath string
	presetID   string
	format     string
	scale      float64
	output     string
	list       bool
}

// isTerminal is replaced in tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "stampctl: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stampctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "stamp configuration file (YAML or JSON)")
	fs.StringVar(&opts.presetID, "preset", "", "start from a built-in preset")
	fs.StringVar(&opts.format, "format", "svg", "output format: svg or png")
	fs.Float64Var(&opts.scale, "scale", stamp.DefaultRasterScale, "PNG scale factor")
	fs.StringVar(&opts.output, "o", "", "output file, - for stdout (default: derived from the primary text)")
	fs.BoolVar(&opts.list, "list", false, "list built-in presets and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.list {
		return listPresets(stdout)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	var body []byte
	var name string
	switch strings.ToLower(opts.format) {
	case "svg":
		body, err = stamp.Serialize(stamp.Render(cfg))
		name = stamp.ExportFilename(cfg.PrimaryText)
	case "png":
		var buf bytes.Buffer
		err = stamp.EncodePNG(&buf, cfg, opts.scale)
		body = buf.Bytes()
		name = stamp.RasterFilename(cfg.PrimaryText)
	default:
		return fmt.Errorf("unknown format %q", opts.format)
	}
	if err != nil {
		return err
	}

	switch opts.output {
	case "-":
		if opts.format == "png" && isTerminal(stdout) {
			return errTerminal
		}
		_, err = stdout.Write(body)
		return err
	case "":
		opts.output = name
	}
	if err := os.WriteFile(opts.output, body, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "wrote %s (%d bytes)\n", filepath.Clean(opts.output), len(body))
	return nil
}

// loadConfig applies the config file on top of the preset, or on top of
// the default configuration when no preset is named.
func loadConfig(opts options) (stamp.StampConfig, error) {
	cfg := stamp.DefaultConfig()
	if opts.presetID != "" {
		p, err := stamp.FindPreset(opts.presetID)
		if err != nil {
			return cfg, err
		}
		cfg = p.Config
	}
	if opts.configPath != "" {
		data, err := os.ReadFile(opts.configPath)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", opts.configPath, err)
		}
	}
	return cfg.Normalize(), nil
}

func listPresets(w io.Writer) error {
	presets, err := stamp.Presets()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSHAPE\tDESCRIPTION")
	for _, p := range presets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Config.Shape, p.Description)
	}
	return tw.Flush()
}
