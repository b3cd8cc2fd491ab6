package printing

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/kioskworks/boothd/internal/config"
	"github.com/kioskworks/boothd/internal/debug"
)

// Printer hands a composed output to the print subsystem.
type Printer interface {
	Print(sessionID, path string) error
}

// NewFromConfig selects a printer implementation based on configuration.
func NewFromConfig(cfg *config.Config) (Printer, error) {
	switch cfg.Print.Type {
	case "spool":
		return &SpoolPrinter{dir: cfg.Print.SpoolDir}, nil
	case "command":
		if cfg.Print.Command == "" {
			return nil, fmt.Errorf("print.command is required for print type %q", cfg.Print.Type)
		}
		return &CommandPrinter{command: cfg.Print.Command}, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported print type: %s", cfg.Print.Type)
	}
}

// SpoolPrinter copies outputs into a spool directory watched by the
// actual print driver host.
type SpoolPrinter struct {
	dir string
}

func (p *SpoolPrinter) Print(sessionID, path string) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("print: create spool dir: %w", err)
	}
	dst := filepath.Join(p.dir, fmt.Sprintf("%s%s", sessionID, filepath.Ext(path)))

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("print: open output: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("print: create spool file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("print: spool copy: %w", err)
	}
	debug.Info("Spooled %s -> %s", path, dst)
	return nil
}

// CommandPrinter invokes an external command (e.g. lp) with the
// output path as its last argument.
type CommandPrinter struct {
	command string
}

func (p *CommandPrinter) Print(sessionID, path string) error {
	cmd := exec.Command(p.command, path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("print: %s failed: %w (%s)", p.command, err, string(out))
	}
	debug.Info("Print command %s accepted %s", p.command, path)
	return nil
}
