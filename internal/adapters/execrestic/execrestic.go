// Package execrestic provides a restic client adapter using exec.Command.
package execrestic

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// ExecResticClient implements ports.ResticClient using exec.Command.
type ExecResticClient struct {
	// resticPath is the path to the restic binary. Defaults to "restic".
	resticPath string
}

// Option is a functional option for configuring ExecResticClient.
type Option func(*ExecResticClient)

// WithResticPath sets a custom path to the restic binary.
func WithResticPath(path string) Option {
	return func(c *ExecResticClient) {
		c.resticPath = path
	}
}

// New creates a new ExecResticClient adapter.
func New(opts ...Option) *ExecResticClient {
	c := &ExecResticClient{
		resticPath: "restic",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init initializes a new restic repository at the given path.
func (r *ExecResticClient) Init(ctx context.Context, repoPath, password string) error {
	out, err := r.run(ctx, password, "init", "--repo", repoPath)
	if err != nil {
		// Check if repo already exists
		if strings.Contains(string(out), "already initialized") ||
			strings.Contains(string(out), "config file already exists") {
			return fmt.Errorf("repository already initialized at %s", repoPath)
		}
		return fmt.Errorf("restic init failed: %w: %s", err, string(out))
	}
	return nil
}

// Backup creates a new backup of the given paths to the repository.
func (r *ExecResticClient) Backup(ctx context.Context, repoPath, password string, paths []string, tags []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("no paths specified for backup")
	}

	args := []string{"backup", "--repo", repoPath, "--json"}
	for _, tag := range tags {
		args = append(args, "--tag", tag)
	}
	args = append(args, paths...)

	out, err := r.run(ctx, password, args...)
	if err != nil {
		return "", fmt.Errorf("restic backup failed: %w: %s", err, string(out))
	}
	return parseSnapshotID(out)
}

// parseSnapshotID finds the summary message among restic's JSON lines.
func parseSnapshotID(out []byte) (string, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var summary struct {
			MessageType string `json:"message_type"`
			SnapshotID  string `json:"snapshot_id"`
		}
		if err := json.Unmarshal([]byte(line), &summary); err != nil {
			continue
		}
		if summary.MessageType == "summary" && summary.SnapshotID != "" {
			return summary.SnapshotID, nil
		}
	}

	return "", fmt.Errorf("could not parse snapshot ID from restic output")
}

// Snapshots returns all snapshots in the repository.
func (r *ExecResticClient) Snapshots(ctx context.Context, repoPath, password string, tags []string) ([]ports.Snapshot, error) {
	args := []string{"snapshots", "--repo", repoPath, "--json"}
	for _, tag := range tags {
		args = append(args, "--tag", tag)
	}

	out, err := r.output(ctx, password, args...)
	if err != nil {
		return nil, fmt.Errorf("restic snapshots failed: %w", err)
	}
	return parseSnapshots(out)
}

func parseSnapshots(out []byte) ([]ports.Snapshot, error) {
	// Empty repository returns "null"
	if strings.TrimSpace(string(out)) == "null" {
		return []ports.Snapshot{}, nil
	}
	var snapshots []ports.Snapshot
	if err := json.Unmarshal(out, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to parse snapshots: %w", err)
	}
	return snapshots, nil
}

// Restore restores a snapshot to the given target directory.
func (r *ExecResticClient) Restore(ctx context.Context, repoPath, password, snapshotID, targetDir string, include []string) error {
	if snapshotID == "" {
		snapshotID = "latest"
	}

	args := []string{"restore", "--repo", repoPath, "--target", targetDir}
	for _, inc := range include {
		args = append(args, "--include", inc)
	}
	args = append(args, snapshotID)

	out, err := r.run(ctx, password, args...)
	if err != nil {
		return fmt.Errorf("restic restore failed: %w: %s", err, string(out))
	}
	return nil
}

// IsInitialized checks if a restic repository exists at the given path.
func (r *ExecResticClient) IsInitialized(repoPath string) bool {
	// Check for restic config file
	configPath := filepath.Join(repoPath, "config")
	info, err := os.Stat(configPath)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// run executes restic and returns its combined output.
func (r *ExecResticClient) run(ctx context.Context, password string, args ...string) ([]byte, error) {
	return r.command(ctx, password, args...).CombinedOutput()
}

// output executes restic and returns stdout only, so warnings on stderr do
// not corrupt JSON output.
func (r *ExecResticClient) output(ctx context.Context, password string, args ...string) ([]byte, error) {
	cmd := r.command(ctx, password, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, stderr.String())
	}
	return out, nil
}

// command creates an exec.Cmd for the restic binary.
func (r *ExecResticClient) command(ctx context.Context, password string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, r.resticPath, args...)
	cmd.Env = append(os.Environ(), "RESTIC_PASSWORD="+password)
	return cmd
}

// Compile-time check that ExecResticClient implements ports.ResticClient.
var _ ports.ResticClient = (*ExecResticClient)(nil)
