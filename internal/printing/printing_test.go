package printing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kioskworks/boothd/internal/config"
)

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Print.Type = "spool"
	cfg.Print.SpoolDir = t.TempDir()
	p, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*SpoolPrinter); !ok {
		t.Errorf("printer = %T, want *SpoolPrinter", p)
	}

	cfg.Print.Type = "command"
	cfg.Print.Command = ""
	if _, err := NewFromConfig(cfg); err == nil {
		t.Error("expected error for command type without command")
	}
	cfg.Print.Command = "lp"
	p, err = NewFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*CommandPrinter); !ok {
		t.Errorf("printer = %T, want *CommandPrinter", p)
	}

	cfg.Print.Type = "none"
	p, err = NewFromConfig(cfg)
	if err != nil || p != nil {
		t.Errorf("none: printer = %v, err = %v", p, err)
	}

	cfg.Print.Type = "carrier-pigeon"
	if _, err := NewFromConfig(cfg); err == nil {
		t.Error("expected error for unsupported print type")
	}
}

func TestSpoolPrinter(t *testing.T) {
	srcDir, spoolDir := t.TempDir(), t.TempDir()
	src := filepath.Join(srcDir, "output.jpg")
	if err := os.WriteFile(src, []byte("composed"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &SpoolPrinter{dir: spoolDir}
	if err := p.Print("sess-1", src); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(spoolDir, "sess-1.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "composed" {
		t.Errorf("spooled content = %q", data)
	}
}

func TestSpoolPrinter_MissingSource(t *testing.T) {
	p := &SpoolPrinter{dir: t.TempDir()}
	if err := p.Print("sess-1", filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Error("expected error for missing output file")
	}
}

func TestCommandPrinter_Failure(t *testing.T) {
	p := &CommandPrinter{command: "/nonexistent/print-command"}
	if err := p.Print("sess-1", "whatever.jpg"); err == nil {
		t.Error("expected error for missing command")
	}
}
