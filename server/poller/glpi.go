package poller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// DefaultCommandTimeout bounds one agent invocation.
const DefaultCommandTimeout = 5 * time.Minute

const (
	discoveryDir = "netdiscovery"
	inventoryDir = "netinventory"
)

// commandRunner executes name with args and returns its captured output.
type commandRunner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// GLPIAgent polls devices by running the GLPI agent's netdiscovery and
// netinventory tools.
type GLPIAgent struct {
	// Path is the agent install directory, or the full path of the
	// netdiscovery executable.
	Path string
	// OutputDir is passed as --save; reports land below it.
	OutputDir string
	// Timeout bounds each command. Zero means DefaultCommandTimeout.
	Timeout time.Duration
	// Codepage decodes console output that is not valid UTF-8
	// ("cp866" or "cp1251"; default cp866).
	Codepage string

	run   commandRunner
	hosts hostLocks
}

// hostLocks serializes agent runs per IP. Runs for one IP share report
// files, so a discovery must not clear the files of a running poll.
type hostLocks struct {
	mu   sync.Mutex
	busy map[string]chan struct{}
}

// lock blocks until ip is free or ctx is done.
func (h *hostLocks) lock(ctx context.Context, ip string) (func(), error) {
	for {
		h.mu.Lock()
		if h.busy == nil {
			h.busy = make(map[string]chan struct{})
		}
		wait, held := h.busy[ip]
		if !held {
			done := make(chan struct{})
			h.busy[ip] = done
			h.mu.Unlock()
			return func() {
				h.mu.Lock()
				delete(h.busy, ip)
				h.mu.Unlock()
				close(done)
			}, nil
		}
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for agent run on %s: %w", ip, ctx.Err())
		}
	}
}

// NewGLPIAgent returns an agent runner writing reports below outputDir.
func NewGLPIAgent(path, outputDir string, timeout time.Duration) *GLPIAgent {
	return &GLPIAgent{Path: path, OutputDir: outputDir, Timeout: timeout, run: execRunner}
}

// Executables returns the netdiscovery and netinventory commands.
func (a *GLPIAgent) Executables() (discovery, inventory string, err error) {
	p := strings.TrimSpace(a.Path)
	if p == "" {
		return "", "", errors.New("GLPI agent path is not configured")
	}
	ext := ""
	if runtime.GOOS == "windows" {
		ext = ".bat"
	}
	base := strings.ToLower(filepath.Base(p))
	if strings.Contains(base, "netdiscovery") {
		return p, filepath.Join(filepath.Dir(p), strings.Replace(filepath.Base(p), "discovery", "inventory", 1)), nil
	}
	return filepath.Join(p, "glpi-netdiscovery"+ext), filepath.Join(p, "glpi-netinventory"+ext), nil
}

// ReportPaths lists where the agent may have written the report for ip,
// most likely location first. A discovery run never writes to the
// netinventory directory, so those paths leave it out.
func (a *GLPIAgent) ReportPaths(ip string, discoveryOnly bool) []string {
	name := ip + ".xml"
	disc := filepath.Join(a.OutputDir, discoveryDir, name)
	inv := filepath.Join(a.OutputDir, inventoryDir, name)
	direct := filepath.Join(a.OutputDir, name)
	if discoveryOnly {
		return []string{disc, direct}
	}
	return []string{inv, direct, disc}
}

func (a *GLPIAgent) removeStale(ip string, discoveryOnly bool) {
	for _, p := range a.ReportPaths(ip, discoveryOnly) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logWarn("Failed to remove stale report", "path", p, "error", err)
		}
	}
}

func (a *GLPIAgent) findReport(ip string, discoveryOnly bool) (string, error) {
	for _, p := range a.ReportPaths(ip, discoveryOnly) {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w for %s (save=%s)", ErrNoReport, ip, a.OutputDir)
}

func (a *GLPIAgent) args(t Target) []string {
	community := t.Community
	if community == "" {
		community = "public"
	}
	return []string{"--host", t.IP, "-i", "--community", community, "--save=" + a.OutputDir, "--debug"}
}

func (a *GLPIAgent) runTool(ctx context.Context, name string, t Target) error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	run := a.run
	if run == nil {
		run = execRunner
	}

	start := time.Now()
	stdout, stderr, err := run(ctx, name, a.args(t)...)
	logDebug("Agent command finished", "cmd", filepath.Base(name), "ip", t.IP, "duration", time.Since(start), "error", err)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", filepath.Base(name), timeout)
	}
	msg := strings.TrimSpace(a.decode(stderr))
	if msg == "" {
		msg = strings.TrimSpace(a.decode(stdout))
	}
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("%s failed: %s", filepath.Base(name), msg)
}

// Poll runs netdiscovery then netinventory for t and returns the report path.
func (a *GLPIAgent) Poll(ctx context.Context, t Target) (string, error) {
	disc, inv, err := a.Executables()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	unlock, err := a.hosts.lock(ctx, t.IP)
	if err != nil {
		return "", err
	}
	defer unlock()
	a.removeStale(t.IP, false)

	if err := a.runTool(ctx, disc, t); err != nil {
		return "", err
	}
	if err := a.runTool(ctx, inv, t); err != nil {
		return "", err
	}
	return a.findReport(t.IP, false)
}

// Discover runs netdiscovery only. The report carries the serial number and
// is used when registering a new printer.
func (a *GLPIAgent) Discover(ctx context.Context, t Target) (string, error) {
	disc, _, err := a.Executables()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	unlock, err := a.hosts.lock(ctx, t.IP)
	if err != nil {
		return "", err
	}
	defer unlock()
	a.removeStale(t.IP, true)

	if err := a.runTool(ctx, disc, t); err != nil {
		return "", err
	}
	return a.findReport(t.IP, true)
}

var codepages = map[string]encoding.Encoding{
	"cp866":        charmap.CodePage866,
	"ibm866":       charmap.CodePage866,
	"cp1251":       charmap.Windows1251,
	"windows-1251": charmap.Windows1251,
}

// decode converts console output to UTF-8. Valid UTF-8 is returned as is.
func (a *GLPIAgent) decode(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	enc, ok := codepages[strings.ToLower(a.Codepage)]
	if !ok {
		enc = charmap.CodePage866
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}
