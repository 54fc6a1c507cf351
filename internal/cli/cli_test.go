package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/backup"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/config"
	"github.com/mcdonaldj/sitebak/internal/jobs"
	"github.com/mcdonaldj/sitebak/internal/mocks"
	"github.com/mcdonaldj/sitebak/internal/notice"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/recovery"
	"github.com/mcdonaldj/sitebak/internal/schedule"
	"github.com/mcdonaldj/sitebak/internal/views"
)

// ============================================================================
// Mock implementations for testing
// ============================================================================

type mockConfigService struct {
	config     *config.Config
	loadErr    error
	saveErr    error
	saved      *config.Config
	configPath string
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.SiteDir = "/test/site"
	cfg.BackupDir = "/test/backups"
	cfg.StatePath = "/test/state.db"
	cfg.BackupIdentifier = "abc123"
	return cfg
}

func newMockConfigService() *mockConfigService {
	return &mockConfigService{config: testConfig(), configPath: "/test/.sitebak/config.yaml"}
}

func (m *mockConfigService) Load() (*config.Config, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.config, nil
}

func (m *mockConfigService) Save(cfg *config.Config) error {
	m.saved = cfg
	return m.saveErr
}

func (m *mockConfigService) ConfigPath() string            { return m.configPath }
func (m *mockConfigService) DefaultConfig() *config.Config { return testConfig() }

type mockBackupService struct {
	result  backup.Result
	err     error
	options []backup.Options
}

func (m *mockBackupService) Create(ctx context.Context, opts backup.Options) (backup.Result, error) {
	m.options = append(m.options, opts)
	return m.result, m.err
}

type mockRecoveryService struct {
	verifyErr    error
	restoreErr   error
	verified     []string
	restoreCalls []recovery.RestoreOptions
}

func (m *mockRecoveryService) Verify(ctx context.Context, filename string) error {
	m.verified = append(m.verified, filename)
	return m.verifyErr
}

func (m *mockRecoveryService) Restore(ctx context.Context, opts recovery.RestoreOptions) error {
	m.restoreCalls = append(m.restoreCalls, opts)
	return m.restoreErr
}

type mockArchiveService struct {
	table       views.Table
	details     map[string]ports.TUIDetails
	detailsDirs []string
	link        archive.DownloadLink
	comparison  ports.TUIComparison
	fileDiff    ports.TUIFileDiff
	set         [][3]string
	deleted     []string
	err         error
}

func newMockArchiveService() *mockArchiveService {
	return &mockArchiveService{details: make(map[string]ports.TUIDetails)}
}

func (m *mockArchiveService) Table(ctx context.Context) views.Table { return m.table }

func (m *mockArchiveService) Details(ctx context.Context, filename, dir string) (ports.TUIDetails, error) {
	m.detailsDirs = append(m.detailsDirs, dir)
	if m.err != nil {
		return ports.TUIDetails{}, m.err
	}
	return m.details[filename], nil
}

func (m *mockArchiveService) SetAttribute(ctx context.Context, filename, key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.set = append(m.set, [3]string{filename, key, value})
	return nil
}

func (m *mockArchiveService) Delete(ctx context.Context, filename string) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, filename)
	return nil
}

func (m *mockArchiveService) Link(ctx context.Context, filename string) (archive.DownloadLink, error) {
	return m.link, m.err
}

func (m *mockArchiveService) Compare(ctx context.Context, oldFile, newFile string) (ports.TUIComparison, error) {
	return m.comparison, m.err
}

func (m *mockArchiveService) CompareFile(ctx context.Context, oldFile, newFile, path string) (ports.TUIFileDiff, error) {
	return m.fileDiff, m.err
}

type mockJobService struct {
	jobs     []jobs.Job
	summary  jobs.Summary
	added    []jobs.Job
	notAdded bool
	cleared  bool
	err      error
}

func (m *mockJobService) Add(job jobs.Job) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	m.added = append(m.added, job)
	return !m.notAdded, nil
}

func (m *mockJobService) List() ([]jobs.Job, error)                         { return m.jobs, m.err }
func (m *mockJobService) RunAll(ctx context.Context) (jobs.Summary, error) { return m.summary, m.err }

func (m *mockJobService) Clear() error {
	m.cleared = true
	return m.err
}

type mockNoticeService struct {
	notices   []notice.Notice
	dismissed []string
	cleared   bool
}

func (m *mockNoticeService) List() ([]notice.Notice, error) { return m.notices, nil }

func (m *mockNoticeService) Dismiss(id string) (bool, error) {
	for _, n := range m.notices {
		if n.ID == id {
			m.dismissed = append(m.dismissed, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockNoticeService) Clear() error {
	m.cleared = true
	return nil
}

type mockCronService struct {
	result schedule.Result
	err    error
	modes  []string
}

func (m *mockCronService) Tick(ctx context.Context, mode string, now time.Time) (schedule.Result, error) {
	m.modes = append(m.modes, mode)
	return m.result, m.err
}

// ============================================================================
// Test harness
// ============================================================================

type harness struct {
	cli       *CLI
	out       *bytes.Buffer
	errOut    *bytes.Buffer
	exitCode  int
	config    *mockConfigService
	scheduler *mocks.MockScheduler
	backup    *mockBackupService
	recovery  *mockRecoveryService
	archives  *mockArchiveService
	jobs      *mockJobService
	notices   *mockNoticeService
	cron      *mockCronService
	served    string
	uiRuns    int
}

func newHarness(args ...string) *harness {
	h := &harness{
		out:       &bytes.Buffer{},
		errOut:    &bytes.Buffer{},
		exitCode:  -1,
		config:    newMockConfigService(),
		scheduler: mocks.NewMockScheduler(),
		backup:    &mockBackupService{},
		recovery:  &mockRecoveryService{},
		archives:  newMockArchiveService(),
		jobs:      &mockJobService{},
		notices:   &mockNoticeService{},
		cron:      &mockCronService{},
	}
	h.cli = NewForTesting(h.out, h.errOut, append([]string{"sitebak"}, args...))
	h.cli.Exit = func(code int) { h.exitCode = code }
	h.cli.ConfigSvc = h.config
	h.cli.SchedulerSvc = h.scheduler
	h.cli.Now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	h.cli.Connect = func(cfg *config.Config) (*Services, error) {
		return &Services{
			Backup:   h.backup,
			Recovery: h.recovery,
			Archives: h.archives,
			Jobs:     h.jobs,
			Notices:  h.notices,
			Cron:     h.cron,
			Serve: func(ctx context.Context, addr string) error {
				h.served = addr
				return nil
			},
			UI: func(ctx context.Context) error {
				h.uiRuns++
				return nil
			},
		}, nil
	}
	return h
}

func (h *harness) run(t *testing.T) {
	t.Helper()
	h.cli.Run()
}

func (h *harness) expectExit(t *testing.T, code int) {
	t.Helper()
	if h.exitCode != code {
		t.Errorf("exit code = %d, expected %d (stdout=%q stderr=%q)", h.exitCode, code, h.out.String(), h.errOut.String())
	}
}

func (h *harness) expectOutput(t *testing.T, substrs ...string) {
	t.Helper()
	for _, s := range substrs {
		if !strings.Contains(h.out.String(), s) {
			t.Errorf("output missing %q:\n%s", s, h.out.String())
		}
	}
}

const archiveName = "sitebak-abc123-site-20240101-030000.zip"

// ============================================================================
// Dispatch
// ============================================================================

func TestNoArgsLaunchesUI(t *testing.T) {
	h := newHarness()
	h.run(t)
	if h.uiRuns != 1 {
		t.Errorf("uiRuns = %d, expected 1", h.uiRuns)
	}

	h = newHarness("ui")
	h.run(t)
	if h.uiRuns != 1 {
		t.Errorf("uiRuns = %d, expected 1", h.uiRuns)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness("frobnicate")
	h.run(t)
	h.expectExit(t, 1)
	if !strings.Contains(h.errOut.String(), "Unknown command: frobnicate") {
		t.Errorf("stderr = %q", h.errOut.String())
	}
	h.expectOutput(t, "Usage:")
}

func TestVersionAndHelp(t *testing.T) {
	for _, arg := range []string{"version", "-v", "--version"} {
		h := newHarness(arg)
		h.run(t)
		h.expectOutput(t, "sitebak vtest")
	}
	for _, arg := range []string{"help", "-h", "--help"} {
		h := newHarness(arg)
		h.run(t)
		h.expectOutput(t, "sitebak cron [backup|restore]", "sitebak restore <archive>")
		h.expectExit(t, -1)
	}
}

func TestConnectFailures(t *testing.T) {
	t.Run("load error", func(t *testing.T) {
		h := newHarness("list")
		h.config.loadErr = errors.New("permission denied")
		h.run(t)
		h.expectExit(t, 1)
		if !strings.Contains(h.errOut.String(), "permission denied") {
			t.Errorf("stderr = %q", h.errOut.String())
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		h := newHarness("list")
		h.config.config.BackupIdentifier = "Not Valid"
		h.config.config.Compressor = "rar"
		h.run(t)
		h.expectExit(t, 1)
		for _, s := range []string{"backup_identifier", "compressor"} {
			if !strings.Contains(h.errOut.String(), s) {
				t.Errorf("stderr missing %q: %q", s, h.errOut.String())
			}
		}
	})

	t.Run("connect error", func(t *testing.T) {
		h := newHarness("list")
		h.cli.Connect = func(*config.Config) (*Services, error) { return nil, errors.New("state database locked") }
		h.run(t)
		h.expectExit(t, 1)
	})
}

func TestParseArgs(t *testing.T) {
	positional, flags := parseArgs([]string{"a.zip", "--wipe", "--title=Before upgrade", "wp-content"})
	if len(positional) != 2 || positional[0] != "a.zip" || positional[1] != "wp-content" {
		t.Errorf("positional = %v", positional)
	}
	if _, ok := flags["wipe"]; !ok {
		t.Error("Expected wipe flag")
	}
	if flags["title"] != "Before upgrade" {
		t.Errorf("title = %q", flags["title"])
	}
}

// ============================================================================
// Backups and ticks
// ============================================================================

func TestRunBackup(t *testing.T) {
	h := newHarness("run", "--title=Before upgrade", "--protect")
	h.backup.result = backup.Result{
		Filename:  archiveName,
		Size:      2048,
		FileCount: 12,
		Pruned:    []string{"sitebak-abc123-site-20231201-030000.zip"},
		Warnings:  []string{"queueing uploads: db locked"},
	}
	h.run(t)

	h.expectExit(t, -1)
	if len(h.backup.options) != 1 {
		t.Fatalf("Create calls = %d, expected 1", len(h.backup.options))
	}
	opts := h.backup.options[0]
	if opts.Trigger != catalog.TriggerManual || opts.Title != "Before upgrade" || !opts.Protect {
		t.Errorf("options = %+v", opts)
	}
	h.expectOutput(t, archiveName, "2.0 KiB", "12 files", "20231201", "(retention)", "db locked")
}

func TestRunBackupError(t *testing.T) {
	h := newHarness("run")
	h.backup.err = backup.ErrSiteNotFound
	h.run(t)
	h.expectExit(t, 1)
	if !strings.Contains(h.errOut.String(), "Backup failed") {
		t.Errorf("stderr = %q", h.errOut.String())
	}
}

func TestRunCron(t *testing.T) {
	h := newHarness("cron")
	h.cron.result = schedule.Result{
		Mode:   schedule.ModeBackup,
		Backup: &backup.Result{Filename: archiveName},
		Jobs: jobs.Summary{
			Completed: 1,
			Retrying:  1,
			Results: []jobs.Result{
				{Job: jobs.Job{Action: "upload_directory", ActionTitle: "Upload backup to Directory"}},
				{Job: jobs.Job{Action: "upload_restic"}, Err: errors.New("repository offline")},
			},
		},
	}
	h.run(t)

	h.expectExit(t, -1)
	if len(h.cron.modes) != 1 || h.cron.modes[0] != schedule.ModeBackup {
		t.Errorf("modes = %v", h.cron.modes)
	}
	h.expectOutput(t, "Scheduled backup "+archiveName, "Upload backup to Directory", "upload_restic: repository offline (will retry)", "1 completed, 1 retrying")
}

func TestRunCronModes(t *testing.T) {
	h := newHarness("cron", "restore")
	h.run(t)
	if len(h.cron.modes) != 1 || h.cron.modes[0] != schedule.ModeRestore {
		t.Errorf("modes = %v", h.cron.modes)
	}

	h = newHarness("cron", "sideways")
	h.run(t)
	h.expectExit(t, 1)
	if len(h.cron.modes) != 0 {
		t.Error("Tick should not run for an invalid mode")
	}
}

func TestRunCronFailures(t *testing.T) {
	h := newHarness("cron")
	h.cron.result = schedule.Result{BackupErr: errors.New("disk full")}
	h.run(t)
	h.expectExit(t, -1)
	h.expectOutput(t, "Scheduled backup failed: disk full")

	h = newHarness("cron")
	h.cron.err = errors.New("running jobs: database locked")
	h.run(t)
	h.expectExit(t, 1)
}

// ============================================================================
// Archive commands
// ============================================================================

func TestListArchives(t *testing.T) {
	h := newHarness("list")
	h.archives.table = views.Table{
		Counts: []views.Count{{Title: "All", Count: 1}, {Title: "Web Server", Count: 1}},
		Rows: []views.Row{{
			Filename:  archiveName,
			Title:     "Before upgrade",
			HasTitle:  true,
			Size:      "2.0 MB",
			Locations: "Web Server" + views.LockMarker,
		}},
	}
	h.run(t)
	h.expectOutput(t, "All (1) | Web Server (1)", archiveName, "Before upgrade", "[locked]")
}

func TestListArchivesEmpty(t *testing.T) {
	h := newHarness("list")
	h.archives.table = views.Table{Counts: []views.Count{{Title: "All"}}}
	h.run(t)
	h.expectOutput(t, "All (0)", views.EmptyMessage)
}

func TestShowArchive(t *testing.T) {
	h := newHarness("show", archiveName)
	h.archives.details[archiveName] = ports.TUIDetails{
		Filename:   archiveName,
		Compressor: "native",
		Attributes: []ports.TUIAttribute{
			{Key: "compressor", Value: "native"},
			{Key: "title", Value: "Before upgrade"},
		},
		Entries: []ports.TUIEntry{
			{Name: "wp-content", IsDir: true},
			{Name: "index.php", Size: 1536},
		},
	}
	h.run(t)
	h.expectExit(t, -1)
	h.expectOutput(t, "Before upgrade", "wp-content/", "1.5 KiB", "index.php")
	if strings.Count(h.out.String(), "native") != 1 {
		t.Errorf("compressor printed more than once:\n%s", h.out.String())
	}
}

func TestShowArchiveErrors(t *testing.T) {
	h := newHarness("show")
	h.run(t)
	h.expectExit(t, 1)
	h.expectOutput(t, "Usage: sitebak show")

	h = newHarness("show", archiveName)
	h.archives.err = archive.ErrNotArchive
	h.run(t)
	h.expectExit(t, 1)
}

func TestBrowseArchive(t *testing.T) {
	h := newHarness("browse", archiveName, "/wp-content/")
	h.archives.details[archiveName] = ports.TUIDetails{
		Entries: []ports.TUIEntry{{Name: "wp-content/a.css", Size: 6}},
	}
	h.run(t)
	if len(h.archives.detailsDirs) != 1 || h.archives.detailsDirs[0] != "wp-content" {
		t.Errorf("dirs = %v", h.archives.detailsDirs)
	}
	h.expectOutput(t, "wp-content/a.css", "6 B")
}

func TestSetAttribute(t *testing.T) {
	h := newHarness("set", archiveName, "title", "Before", "upgrade")
	h.run(t)
	h.expectExit(t, -1)
	if len(h.archives.set) != 1 || h.archives.set[0] != [3]string{archiveName, "title", "Before upgrade"} {
		t.Errorf("set = %v", h.archives.set)
	}

	h = newHarness("set", archiveName, "title")
	h.run(t)
	h.expectExit(t, 1)
}

func TestDeleteArchive(t *testing.T) {
	h := newHarness("delete", archiveName)
	h.run(t)
	h.expectExit(t, -1)
	if len(h.archives.deleted) != 1 {
		t.Errorf("deleted = %v", h.archives.deleted)
	}
	h.expectOutput(t, "Deleted "+archiveName)
}

func TestRunVerify(t *testing.T) {
	h := newHarness("verify", archiveName)
	h.run(t)
	h.expectExit(t, -1)
	h.expectOutput(t, "Checksum verified for "+archiveName)

	h = newHarness("verify", archiveName)
	h.recovery.verifyErr = recovery.ErrChecksumMismatch
	h.run(t)
	h.expectExit(t, 1)
	if !strings.Contains(h.errOut.String(), "checksum mismatch") {
		t.Errorf("stderr = %q", h.errOut.String())
	}
}

func TestRunRestore(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		wipe   bool
		aside  bool
		banner string
	}{
		{"plain", nil, false, false, "Restoring " + archiveName},
		{"wipe", []string{"--wipe"}, true, false, "wiping current site"},
		{"archive", []string{"--archive"}, false, true, "archiving current site"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(append([]string{"restore", archiveName}, tt.args...)...)
			h.run(t)
			h.expectExit(t, -1)
			if len(h.recovery.restoreCalls) != 1 {
				t.Fatalf("restore calls = %d", len(h.recovery.restoreCalls))
			}
			opts := h.recovery.restoreCalls[0]
			if opts.Filename != archiveName || opts.Wipe != tt.wipe || opts.Archive != tt.aside {
				t.Errorf("options = %+v", opts)
			}
			h.expectOutput(t, tt.banner, "Successfully restored")
		})
	}
}

func TestRunRestoreConflictsAndErrors(t *testing.T) {
	h := newHarness("restore", archiveName, "--wipe", "--archive")
	h.run(t)
	h.expectExit(t, 1)
	if len(h.recovery.restoreCalls) != 0 {
		t.Error("Restore should not run with conflicting flags")
	}

	h = newHarness("restore", archiveName)
	h.recovery.restoreErr = recovery.ErrExists
	h.run(t)
	h.expectExit(t, 1)
	if !strings.Contains(h.errOut.String(), "site directory already exists") {
		t.Errorf("stderr = %q", h.errOut.String())
	}
}

func TestRunRestoreSchedule(t *testing.T) {
	h := newHarness("restore", archiveName, "--schedule")
	h.run(t)
	h.expectExit(t, -1)
	if len(h.recovery.restoreCalls) != 0 {
		t.Error("Scheduled restore must not run immediately")
	}
	if len(h.jobs.added) != 1 {
		t.Fatalf("added = %d jobs, expected 1", len(h.jobs.added))
	}
	job := h.jobs.added[0]
	if job.Action != recovery.ActionRestore || job.ActionData != archiveName {
		t.Errorf("job = %+v", job)
	}
	h.expectOutput(t, "Scheduled restore")

	h = newHarness("restore", archiveName, "--schedule")
	h.jobs.notAdded = true
	h.run(t)
	h.expectOutput(t, "already scheduled")
}

func TestCreateLink(t *testing.T) {
	h := newHarness("link", archiveName)
	h.archives.link = archive.DownloadLink{DownloadURL: "https://example.com/sitebak/download?t=abc", ExpiresWhen: "1 hour"}
	h.run(t)
	h.expectExit(t, -1)
	h.expectOutput(t, "https://example.com/sitebak/download?t=abc", "expires in 1 hour")

	h = newHarness("link", archiveName)
	h.archives.err = &archive.ValidationError{Errors: []string{archive.MsgPermission, archive.MsgNotFound}}
	h.run(t)
	h.expectExit(t, 1)
	if !strings.Contains(h.errOut.String(), archive.MsgNotFound) {
		t.Errorf("stderr = %q", h.errOut.String())
	}
}

func TestRunDiff(t *testing.T) {
	h := newHarness("diff", "old.zip", "new.zip")
	h.archives.comparison = ports.TUIComparison{
		Changes: []ports.TUIChange{
			{Path: "index.php", Status: 'M'},
			{Path: "shell.php", Status: 'A'},
			{Path: "readme.html", Status: 'D'},
		},
		Modified: 1, Added: 1, Deleted: 1,
	}
	h.run(t)
	h.expectOutput(t, "M index.php", "A shell.php", "D readme.html", "1 modified, 1 added, 1 deleted")

	h = newHarness("diff", "old.zip", "new.zip", "index.php")
	h.archives.fileDiff = ports.TUIFileDiff{
		Path: "index.php",
		Lines: []ports.TUIDiffLine{
			{Type: ' ', Content: "<?php"},
			{Type: '-', Content: "echo 1;"},
			{Type: '+', Content: "echo 2;"},
		},
	}
	h.run(t)
	h.expectOutput(t, "- echo 1;", "+ echo 2;")

	h = newHarness("diff", "old.zip", "new.zip", "logo.png")
	h.archives.fileDiff = ports.TUIFileDiff{Path: "logo.png", IsBinary: true}
	h.run(t)
	h.expectOutput(t, "Binary file logo.png differs")

	h = newHarness("diff", "old.zip")
	h.run(t)
	h.expectExit(t, 1)
}

// ============================================================================
// Jobs and notices
// ============================================================================

func TestJobsList(t *testing.T) {
	h := newHarness("jobs")
	h.run(t)
	h.expectOutput(t, "No queued jobs")

	h = newHarness("jobs")
	h.jobs.jobs = []jobs.Job{{
		Action:      "upload_directory",
		ActionTitle: "Upload backup to Directory",
		Status:      jobs.StatusQueued,
		Attempts:    1,
		LastError:   "share offline",
		NextRunAt:   time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC),
	}}
	h.run(t)
	h.expectOutput(t, "Upload backup to Directory", "share offline", "2024-01-01 12:05")
}

func TestJobsRunAndClear(t *testing.T) {
	h := newHarness("jobs", "run")
	h.jobs.summary = jobs.Summary{
		Completed: 1,
		Dropped:   1,
		Results: []jobs.Result{
			{Job: jobs.Job{Action: "delete_local"}},
			{Job: jobs.Job{Action: "bogus"}, Err: jobs.ErrUnknownAction, Dropped: true},
		},
	}
	h.run(t)
	h.expectOutput(t, "1 completed", "1 dropped", "bogus: unknown job action")

	h = newHarness("jobs", "run")
	h.jobs.summary = jobs.Summary{
		Lost:    1,
		Results: []jobs.Result{{Job: jobs.Job{Action: "restore"}, Status: jobs.StatusRunning, Lost: true}},
	}
	h.run(t)
	h.expectOutput(t, "restore (taken over by another run)", "1 taken over")

	h = newHarness("jobs", "clear")
	h.run(t)
	if !h.jobs.cleared {
		t.Error("Expected queue to be cleared")
	}

	h = newHarness("jobs", "explode")
	h.run(t)
	h.expectExit(t, 1)
}

func TestNotices(t *testing.T) {
	h := newHarness("notices")
	h.run(t)
	h.expectOutput(t, "No notices")

	n := notice.Notice{ID: "0123456789abcdef", Level: notice.LevelError, Message: "Upload to Directory failed", CreatedAt: time.Now()}
	h = newHarness("notices")
	h.notices.notices = []notice.Notice{n}
	h.run(t)
	h.expectOutput(t, "01234567", "error", "Upload to Directory failed")

	h = newHarness("notices", "dismiss", n.ID)
	h.notices.notices = []notice.Notice{n}
	h.run(t)
	h.expectExit(t, -1)
	if len(h.notices.dismissed) != 1 {
		t.Error("Expected notice to be dismissed")
	}

	h = newHarness("notices", "dismiss", "missing")
	h.run(t)
	h.expectExit(t, 1)

	h = newHarness("notices", "clear")
	h.run(t)
	if !h.notices.cleared {
		t.Error("Expected notices to be cleared")
	}
}

// ============================================================================
// Scheduler, status, init, serve
// ============================================================================

func TestInstallScheduler(t *testing.T) {
	h := newHarness("install")
	h.run(t)
	h.expectExit(t, -1)
	if len(h.scheduler.InstallCalls) != 1 {
		t.Fatalf("install calls = %d", len(h.scheduler.InstallCalls))
	}
	call := h.scheduler.InstallCalls[0]
	if call.ExecPath != "/usr/local/bin/sitebak" || call.ConfigPath != h.config.configPath || call.IntervalMinutes != DefaultTickInterval {
		t.Errorf("install call = %+v", call)
	}
	h.expectOutput(t, "every 5 minutes", h.scheduler.UnitPathResult)

	h = newHarness("install", "--interval=15")
	h.run(t)
	if h.scheduler.InstallCalls[0].IntervalMinutes != 15 {
		t.Errorf("interval = %d", h.scheduler.InstallCalls[0].IntervalMinutes)
	}

	h = newHarness("install", "--interval=0")
	h.run(t)
	h.expectExit(t, 1)
	if len(h.scheduler.InstallCalls) != 0 {
		t.Error("Install should not run with an invalid interval")
	}
}

func TestInstallSchedulerAlreadyInstalled(t *testing.T) {
	h := newHarness("install")
	h.scheduler.Installed = true
	h.run(t)
	h.expectExit(t, 1)
	h.expectOutput(t, "already installed")
}

func TestUninstallScheduler(t *testing.T) {
	h := newHarness("uninstall")
	h.run(t)
	h.expectExit(t, 1)
	h.expectOutput(t, "not installed")

	h = newHarness("uninstall")
	h.scheduler.Installed = true
	h.run(t)
	h.expectExit(t, -1)
	h.expectOutput(t, "Uninstalled schedule")
}

func TestShowStatus(t *testing.T) {
	h := newHarness("status")
	h.scheduler.StatusResult = "loaded"
	h.run(t)
	h.expectExit(t, -1)
	h.expectOutput(t, "/test/site", "/test/backups", h.config.configPath, "local", "0 3 * * *", "next 2024-01-02 03:00", "installed & loaded")

	h = newHarness("status")
	h.config.config.Schedule = "whenever"
	h.run(t)
	h.expectOutput(t, "invalid", "Configuration problems")
}

func TestInitConfig(t *testing.T) {
	h := newHarness("init")
	h.config.configPath = filepath.Join(t.TempDir(), "config.yaml")
	h.run(t)
	h.expectExit(t, -1)
	if h.config.saved == nil {
		t.Fatal("Expected config to be saved")
	}
	h.expectOutput(t, "Created config at")

	// An existing file is never overwritten.
	if err := os.WriteFile(h.config.configPath, []byte("site_dir: /srv/www\n"), 0600); err != nil {
		t.Fatal(err)
	}
	h2 := newHarness("init")
	h2.config.configPath = h.config.configPath
	h2.run(t)
	if h2.config.saved != nil {
		t.Error("Existing config was overwritten")
	}
	h2.expectOutput(t, "already exists")
}

func TestRunServe(t *testing.T) {
	h := newHarness("serve")
	h.run(t)
	if h.served != "127.0.0.1:8080" {
		t.Errorf("served on %q", h.served)
	}

	h = newHarness("serve", "--addr=:9000")
	h.run(t)
	if h.served != ":9000" {
		t.Errorf("served on %q", h.served)
	}
}
