package out

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"punchclock/internal/modules/location/domain"
	"punchclock/internal/platform/clock"
)

type storedDecision struct {
	Permission domain.Permission `json:"permission"`
	DecidedAt  time.Time         `json:"decided_at"`
}

// PromptPermission asks on the terminal once and remembers the answer in
// the data directory. Without a terminal it falls back to the stored
// decision or Denied.
type PromptPermission struct {
	path  string
	in    io.Reader
	out   io.Writer
	clock clock.Clock
}

func NewPromptPermission(dataDir string, in io.Reader, out io.Writer, clk clock.Clock) *PromptPermission {
	return &PromptPermission{
		path:  filepath.Join(dataDir, "location-permission.json"),
		in:    in,
		out:   out,
		clock: clk,
	}
}

func (p *PromptPermission) Check(context.Context) (domain.Permission, error) {
	return p.load()
}

func (p *PromptPermission) Request(ctx context.Context) (domain.Permission, error) {
	stored, err := p.load()
	if err != nil {
		return domain.PermissionDenied, err
	}
	if stored != domain.PermissionUndetermined {
		return stored, nil
	}
	if p.in == nil || p.out == nil {
		return domain.PermissionDenied, nil
	}

	if _, err := fmt.Fprint(p.out, "Allow punchclock to attach your location to check-ins? [y/N]: "); err != nil {
		return domain.PermissionDenied, fmt.Errorf("write prompt: %w", err)
	}
	answer, err := readAnswer(ctx, p.in)
	if err != nil {
		return domain.PermissionDenied, err
	}
	decision := domain.PermissionDenied
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		decision = domain.PermissionGranted
	}
	if err := p.save(decision); err != nil {
		return decision, err
	}
	return decision, nil
}

// Reset forgets the stored decision so the next request prompts again.
func (p *PromptPermission) Reset() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset location permission: %w", err)
	}
	return nil
}

func (p *PromptPermission) load() (domain.Permission, error) {
	payload, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.PermissionUndetermined, nil
		}
		return domain.PermissionUndetermined, fmt.Errorf("read location permission: %w", err)
	}
	stored := storedDecision{}
	if err := json.Unmarshal(payload, &stored); err != nil {
		return domain.PermissionUndetermined, fmt.Errorf("decode location permission: %w", err)
	}
	return domain.ParsePermission(string(stored.Permission))
}

func (p *PromptPermission) save(permission domain.Permission) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("create permission dir: %w", err)
	}
	payload, err := json.MarshalIndent(storedDecision{Permission: permission, DecidedAt: p.clock.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal location permission: %w", err)
	}
	if err := os.WriteFile(p.path, payload, 0o600); err != nil {
		return fmt.Errorf("write location permission: %w", err)
	}
	return nil
}

func readAnswer(ctx context.Context, in io.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		ch <- result{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return "", fmt.Errorf("read answer: %w", res.err)
		}
		return res.line, nil
	}
}
