package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestTargetFlagExists(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)

	for _, name := range []string{"target", "opt", "dump-ir", "output"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected flag --%s to exist", name)
		}
	}
}

func TestDefaultRunProducesX86_64Assembly(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--target=x86-64", "--opt=2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v (stderr: %s)", err, errOut.String())
	}
	asm := out.String()
	for _, want := range []string{"add:", "max3:"} {
		if !strings.Contains(asm, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, asm)
		}
	}
}

func TestUnknownTargetFails(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--target=vax-11"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an unknown target to fail")
	}
}

func TestUnknownOptLevelFails(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--target=x86-64", "--opt=9"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an unknown optimization level to fail")
	}
}

func TestEveryAdvertisedTargetCompiles(t *testing.T) {
	for name := range archFlag {
		t.Run(name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs([]string{"--target=" + name})
			if err := cmd.Execute(); err != nil {
				t.Fatalf("expected no error for target %s, got %v (stderr: %s)", name, err, errOut.String())
			}
			if !strings.Contains(out.String(), "add") {
				t.Errorf("expected assembly for target %s to mention the add function, got:\n%s", name, out.String())
			}
		})
	}
}

func TestDumpIRWritesToStderr(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--target=arm64-linux", "--opt=0", "--dump-ir"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(errOut.String(), "add") {
		t.Errorf("expected dumped IR on stderr to mention the sample functions, got:\n%s", errOut.String())
	}
}

func TestOutputFlagWritesFile(t *testing.T) {
	tmpDir := t.TempDir()
	outFile := filepath.Join(tmpDir, "sample.s")

	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs([]string{"--target=ppc64le", "--opt=1", "--output=" + outFile})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("expected no error, got %v (stderr: %s)", err, errOut.String())
	}
	if out.Len() != 0 {
		t.Errorf("expected stdout to stay empty when -o is set, got:\n%s", out.String())
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("reading output file: %s", err)
	}
	if !strings.Contains(string(data), "add") {
		t.Errorf("expected the written assembly file to contain the add function, got:\n%s", string(data))
	}
}
