// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/mcdonaldj/sitebak/internal/archive"
	"github.com/mcdonaldj/sitebak/internal/backup"
	"github.com/mcdonaldj/sitebak/internal/catalog"
	"github.com/mcdonaldj/sitebak/internal/config"
	"github.com/mcdonaldj/sitebak/internal/jobs"
	"github.com/mcdonaldj/sitebak/internal/notice"
	"github.com/mcdonaldj/sitebak/internal/ports"
	"github.com/mcdonaldj/sitebak/internal/recovery"
	"github.com/mcdonaldj/sitebak/internal/schedule"
	"github.com/mcdonaldj/sitebak/internal/views"
)

// DefaultTickInterval is how often the installed scheduler runs `sitebak cron`.
const DefaultTickInterval = 5

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load() (*config.Config, error)
	Save(cfg *config.Config) error
	ConfigPath() string
	DefaultConfig() *config.Config
}

// BackupService creates backups.
type BackupService interface {
	Create(ctx context.Context, opts backup.Options) (backup.Result, error)
}

// RecoveryService verifies and restores archives.
type RecoveryService interface {
	Verify(ctx context.Context, filename string) error
	Restore(ctx context.Context, opts recovery.RestoreOptions) error
}

// ArchiveService lists and edits archives.
type ArchiveService interface {
	Table(ctx context.Context) views.Table
	Details(ctx context.Context, filename, dir string) (ports.TUIDetails, error)
	SetAttribute(ctx context.Context, filename, key, value string) error
	Delete(ctx context.Context, filename string) error
	Link(ctx context.Context, filename string) (archive.DownloadLink, error)
	Compare(ctx context.Context, oldFile, newFile string) (ports.TUIComparison, error)
	CompareFile(ctx context.Context, oldFile, newFile, path string) (ports.TUIFileDiff, error)
}

// JobService reads and drains the job queue.
type JobService interface {
	Add(job jobs.Job) (bool, error)
	List() ([]jobs.Job, error)
	RunAll(ctx context.Context) (jobs.Summary, error)
	Clear() error
}

// NoticeService reads and dismisses notices.
type NoticeService interface {
	List() ([]notice.Notice, error)
	Dismiss(id string) (bool, error)
	Clear() error
}

// CronService runs scheduled ticks.
type CronService interface {
	Tick(ctx context.Context, mode string, now time.Time) (schedule.Result, error)
}

// Services are the engine components behind the commands. They are built
// from the loaded configuration by CLI.Connect.
type Services struct {
	Backup   BackupService
	Recovery RecoveryService
	Archives ArchiveService
	Jobs     JobService
	Notices  NoticeService
	Cron     CronService
	// Serve runs the download endpoint until ctx is done.
	Serve func(ctx context.Context, addr string) error
	// UI runs the terminal UI.
	UI func(ctx context.Context) error
}

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Ctx is passed to every blocking operation.
	Ctx context.Context

	ConfigSvc    ConfigService
	SchedulerSvc ports.Scheduler
	// Connect builds the engine services for cfg.
	Connect func(cfg *config.Config) (*Services, error)
	// Executable returns the path installed into the scheduler.
	Executable func() (string, error)
	Now        func() time.Time

	// Color functions (can be disabled for testing)
	green  func(a ...interface{}) string
	yellow func(a ...interface{}) string
	cyan   func(a ...interface{}) string
	gray   func(a ...interface{}) string
	red    func(a ...interface{}) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:        os.Stdout,
		Err:        os.Stderr,
		Version:    version,
		Args:       os.Args,
		Exit:       os.Exit,
		Ctx:        context.Background(),
		ConfigSvc:  defaultConfigService{},
		Executable: os.Executable,
		Now:        time.Now,
		green:      color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:     color.New(color.FgYellow).SprintFunc(),
		cyan:       color.New(color.FgCyan).SprintFunc(),
		gray:       color.New(color.FgHiBlack).SprintFunc(),
		red:        color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...interface{}) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:        out,
		Err:        errOut,
		Version:    "test",
		Args:       args,
		Exit:       func(int) {},
		Ctx:        context.Background(),
		ConfigSvc:  defaultConfigService{},
		Executable: func() (string, error) { return "/usr/local/bin/sitebak", nil },
		Now:        time.Now,
		green:      noColor,
		yellow:     noColor,
		cyan:       noColor,
		gray:       noColor,
		red:        noColor,
	}
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (defaultConfigService) Load() (*config.Config, error)   { return config.Load() }
func (defaultConfigService) Save(cfg *config.Config) error   { return cfg.Save() }
func (defaultConfigService) ConfigPath() string              { return config.ConfigPath() }
func (defaultConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	if len(c.Args) < 2 {
		c.RunUI()
		return
	}

	switch c.Args[1] {
	case "ui":
		c.RunUI()
	case "run":
		c.RunBackup()
	case "cron":
		c.RunCron()
	case "list":
		c.ListArchives()
	case "show":
		c.ShowArchive()
	case "browse":
		c.BrowseArchive()
	case "set":
		c.SetAttribute()
	case "delete":
		c.DeleteArchive()
	case "verify":
		c.RunVerify()
	case "restore":
		c.RunRestore()
	case "link":
		c.CreateLink()
	case "diff":
		c.RunDiff()
	case "jobs":
		c.RunJobs()
	case "notices":
		c.RunNotices()
	case "install":
		c.InstallScheduler()
	case "uninstall":
		c.UninstallScheduler()
	case "status":
		c.ShowStatus()
	case "init":
		c.InitConfig()
	case "serve":
		c.RunServe()
	case "version", "-v", "--version":
		fmt.Fprintf(c.Out, "sitebak v%s\n", c.Version)
	case "help", "-h", "--help":
		c.PrintUsage()
	default:
		fmt.Fprintf(c.Err, "Unknown command: %s\n", c.Args[1])
		c.PrintUsage()
		c.Exit(1)
	}
}

// PrintUsage prints the help message.
func (c *CLI) PrintUsage() {
	fmt.Fprintln(c.Out, `sitebak - Website Backup Tool

Usage:
  sitebak                                  Launch interactive TUI
  sitebak ui                               Launch interactive TUI
  sitebak run [--title=T] [--description=D] [--protect]
                                           Back up the site now
  sitebak cron [backup|restore]            Run one scheduled tick (backup if due, then jobs)
  sitebak list                             List archives in every storage location
  sitebak show <archive>                   Show an archive's log and contents
  sitebak browse <archive> [dir]           List a directory inside an archive
  sitebak set <archive> <key> <value>      Set an archive log attribute (e.g. title, protect)
  sitebak delete <archive>                 Delete the web server copy of an archive
  sitebak verify <archive>                 Verify archive integrity
  sitebak restore <archive> [--wipe|--archive|--schedule]
                                           Restore the site from an archive
  sitebak link <archive>                   Create a public download link
  sitebak diff <old> <new> [path]          Compare two archives (or one file in them)
  sitebak jobs [run|clear]                 Show, drain or clear the job queue
  sitebak notices [dismiss <id>|clear]     Show or dismiss notices
  sitebak install [--interval=MINUTES]     Install the launchd schedule
  sitebak uninstall                        Remove the launchd schedule
  sitebak status                           Show configuration and schedule status
  sitebak init                             Create default config file
  sitebak serve [--addr=HOST:PORT]         Serve download links
  sitebak version, -v                      Show version
  sitebak help, -h                         Show this help

Config: ~/.sitebak/config.yaml (SITEBAK_CONFIG overrides)`)
}

// fail prints an error and exits with status 1.
func (c *CLI) fail(format string, a ...interface{}) {
	fmt.Fprintf(c.Err, format+"\n", a...)
	c.Exit(1)
}

// usage prints a usage line and exits with status 1.
func (c *CLI) usage(line string) {
	fmt.Fprintln(c.Out, "Usage: "+line)
	c.Exit(1)
}

// connect loads and validates the configuration and builds the services.
func (c *CLI) connect() (*config.Config, *Services, bool) {
	cfg, err := c.ConfigSvc.Load()
	if err != nil {
		c.fail("Error loading config: %v", err)
		return nil, nil, false
	}
	if err := cfg.Validate(); err != nil {
		c.fail("Invalid config %s:\n%v", c.ConfigSvc.ConfigPath(), err)
		return nil, nil, false
	}
	if c.Connect == nil {
		c.fail("Error: no services configured")
		return nil, nil, false
	}
	svc, err := c.Connect(cfg)
	if err != nil {
		c.fail("Error: %v", err)
		return nil, nil, false
	}
	return cfg, svc, true
}

// parseArgs splits args into positional arguments and --key[=value] flags.
func parseArgs(args []string) ([]string, map[string]string) {
	var positional []string
	flags := make(map[string]string)
	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			positional = append(positional, arg)
			continue
		}
		name, value, _ := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		flags[name] = value
	}
	return positional, flags
}

func (c *CLI) args() ([]string, map[string]string) {
	if len(c.Args) < 3 {
		return nil, map[string]string{}
	}
	return parseArgs(c.Args[2:])
}

// InitConfig creates the default config file.
func (c *CLI) InitConfig() {
	path := c.ConfigSvc.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(c.Out, "Config already exists at %s\n", path)
		return
	}
	if err := c.ConfigSvc.Save(c.ConfigSvc.DefaultConfig()); err != nil {
		c.fail("Error saving config: %v", err)
		return
	}
	fmt.Fprintf(c.Out, "Created config at %s\n", path)
}

// RunBackup runs a manual backup.
func (c *CLI) RunBackup() {
	_, flags := c.args()
	cfg, svc, ok := c.connect()
	if !ok {
		return
	}

	fmt.Fprintf(c.Out, "%s Backing up %s...\n", c.cyan("=>"), cfg.SiteDir)

	_, protect := flags["protect"]
	res, err := svc.Backup.Create(c.Ctx, backup.Options{
		Trigger:     catalog.TriggerManual,
		Title:       flags["title"],
		Description: flags["description"],
		Protect:     protect,
	})
	if err != nil {
		c.fail("Backup failed: %v", err)
		return
	}

	fmt.Fprintf(c.Out, "  %s %s %s %d files %s\n",
		c.green("*"),
		res.Filename,
		c.yellow(humanize.IBytes(uint64(max(res.Size, 0)))),
		res.FileCount,
		c.gray(res.Duration.Round(time.Millisecond).String()))
	for _, name := range res.Pruned {
		fmt.Fprintf(c.Out, "  %s %s %s\n", c.gray("-"), c.gray(name), c.gray("(retention)"))
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(c.Out, "  %s %s\n", c.yellow("!"), w)
	}
}

// RunCron runs one scheduled tick. It is what the installed scheduler calls.
func (c *CLI) RunCron() {
	positional, _ := c.args()
	mode := schedule.ModeBackup
	if len(positional) > 0 {
		mode = positional[0]
	}
	if mode != schedule.ModeBackup && mode != schedule.ModeRestore {
		c.usage("sitebak cron [backup|restore]")
		return
	}

	_, svc, ok := c.connect()
	if !ok {
		return
	}

	res, err := svc.Cron.Tick(c.Ctx, mode, c.Now())
	if res.Backup != nil {
		fmt.Fprintf(c.Out, "%s Scheduled backup %s\n", c.green("*"), res.Backup.Filename)
	}
	if res.BackupErr != nil {
		fmt.Fprintf(c.Out, "%s Scheduled backup failed: %v\n", c.red("x"), res.BackupErr)
	}
	if err != nil {
		c.fail("Tick failed: %v", err)
		return
	}
	c.printSummary(res.Jobs)
	if !res.NextRun.IsZero() {
		fmt.Fprintf(c.Out, "Next backup: %s\n", res.NextRun.Format("2006-01-02 15:04"))
	}
}

func (c *CLI) printSummary(sum jobs.Summary) {
	for _, r := range sum.Results {
		switch {
		case r.Lost:
			fmt.Fprintf(c.Out, "  %s %s %s\n", c.yellow("!"), jobTitle(r.Job), c.gray("(taken over by another run)"))
		case r.Err == nil:
			fmt.Fprintf(c.Out, "  %s %s\n", c.green("*"), jobTitle(r.Job))
		case r.Dropped:
			fmt.Fprintf(c.Out, "  %s %s: %v\n", c.red("x"), jobTitle(r.Job), r.Err)
		default:
			fmt.Fprintf(c.Out, "  %s %s: %v %s\n", c.yellow("!"), jobTitle(r.Job), r.Err, c.gray("(will retry)"))
		}
	}
	fmt.Fprintf(c.Out, "Jobs: %s completed, %s retrying",
		c.green(strconv.Itoa(sum.Completed)),
		c.yellow(strconv.Itoa(sum.Retrying)))
	if sum.Dropped > 0 {
		fmt.Fprintf(c.Out, ", %s dropped", c.red(strconv.Itoa(sum.Dropped)))
	}
	if sum.Lost > 0 {
		fmt.Fprintf(c.Out, ", %s taken over", c.yellow(strconv.Itoa(sum.Lost)))
	}
	fmt.Fprintln(c.Out)
}

func jobTitle(j jobs.Job) string {
	if j.ActionTitle != "" {
		return j.ActionTitle
	}
	return j.Action
}

// ListArchives lists the archives of every storage location.
func (c *CLI) ListArchives() {
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	table := svc.Archives.Table(c.Ctx)
	fmt.Fprintln(c.Out, views.FormatCounts(table.Counts))
	fmt.Fprintln(c.Out)
	if table.Empty() {
		fmt.Fprintln(c.Out, views.EmptyMessage)
		return
	}

	fmt.Fprintf(c.Out, "  %-45s %-28s %10s  %s\n", "ARCHIVE", "TITLE", "SIZE", "LOCATIONS")
	fmt.Fprintf(c.Out, "  %-45s %-28s %10s  %s\n", "-------", "-----", "----", "---------")
	for _, r := range table.Rows {
		title := r.Title
		if !r.HasTitle {
			title = c.gray(title)
		}
		fmt.Fprintf(c.Out, "  %-45s %-28s %10s  %s\n", r.Filename, title, r.Size, r.Locations)
	}
}

// ShowArchive prints an archive's log attributes and its top-level entries.
func (c *CLI) ShowArchive() {
	positional, _ := c.args()
	if len(positional) < 1 {
		c.usage("sitebak show <archive>")
		return
	}
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	d, err := svc.Archives.Details(c.Ctx, positional[0], "")
	if err != nil {
		c.fail("Error: %v", err)
		return
	}

	fmt.Fprintf(c.Out, "%s\n\n", c.cyan(d.Filename))
	fmt.Fprintf(c.Out, "  %-14s %s\n", "compressor", d.Compressor)
	for _, a := range d.Attributes {
		if a.Key == "compressor" {
			continue
		}
		fmt.Fprintf(c.Out, "  %-14s %s\n", a.Key, a.Value)
	}
	fmt.Fprintln(c.Out)
	c.printEntries(d.Entries)
}

// BrowseArchive lists one directory inside an archive.
func (c *CLI) BrowseArchive() {
	positional, _ := c.args()
	if len(positional) < 1 {
		c.usage("sitebak browse <archive> [dir]")
		return
	}
	dir := ""
	if len(positional) > 1 {
		dir = strings.Trim(positional[1], "/")
	}
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	d, err := svc.Archives.Details(c.Ctx, positional[0], dir)
	if err != nil {
		c.fail("Error: %v", err)
		return
	}
	c.printEntries(d.Entries)
}

func (c *CLI) printEntries(entries []ports.TUIEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(c.Out, c.gray("  (empty)"))
		return
	}
	for _, e := range entries {
		if e.IsDir {
			fmt.Fprintf(c.Out, "  %10s  %s\n", c.gray("-"), c.cyan(e.Name+"/"))
			continue
		}
		fmt.Fprintf(c.Out, "  %10s  %s\n", humanize.IBytes(uint64(max(e.Size, 0))), e.Name)
	}
}

// SetAttribute stores one attribute in an archive's log.
func (c *CLI) SetAttribute() {
	positional, _ := c.args()
	if len(positional) < 3 {
		c.usage("sitebak set <archive> <key> <value>")
		return
	}
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	filename, key, value := positional[0], positional[1], strings.Join(positional[2:], " ")
	if err := svc.Archives.SetAttribute(c.Ctx, filename, key, value); err != nil {
		c.fail("Error: %v", err)
		return
	}
	fmt.Fprintf(c.Out, "%s %s: %s = %q\n", c.green("*"), filename, key, value)
}

// DeleteArchive deletes the web server copy of an archive.
func (c *CLI) DeleteArchive() {
	positional, _ := c.args()
	if len(positional) < 1 {
		c.usage("sitebak delete <archive>")
		return
	}
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	if err := svc.Archives.Delete(c.Ctx, positional[0]); err != nil {
		c.fail("Error: %v", err)
		return
	}
	fmt.Fprintf(c.Out, "%s Deleted %s\n", c.yellow("-"), positional[0])
}

// RunVerify verifies an archive against the checksum in its log.
func (c *CLI) RunVerify() {
	positional, _ := c.args()
	if len(positional) < 1 {
		c.usage("sitebak verify <archive>")
		return
	}
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	if err := svc.Recovery.Verify(c.Ctx, positional[0]); err != nil {
		c.fail("Verification failed: %v", err)
		return
	}
	fmt.Fprintf(c.Out, "%s Checksum verified for %s\n", c.green("*"), positional[0])
}

// RunRestore restores the site from an archive, or schedules the restore
// for the next `sitebak cron restore`.
func (c *CLI) RunRestore() {
	positional, flags := c.args()
	if len(positional) < 1 {
		c.usage("sitebak restore <archive> [--wipe|--archive|--schedule]")
		return
	}
	_, wipe := flags["wipe"]
	_, aside := flags["archive"]
	_, scheduled := flags["schedule"]
	if wipe && aside {
		fmt.Fprintln(c.Out, "Cannot use both --wipe and --archive")
		c.Exit(1)
		return
	}

	_, svc, ok := c.connect()
	if !ok {
		return
	}
	filename := positional[0]

	if scheduled {
		added, err := svc.Jobs.Add(jobs.Job{
			Action:      recovery.ActionRestore,
			ActionData:  filename,
			ActionTitle: "Restore " + filename,
		})
		if err != nil {
			c.fail("Error scheduling restore: %v", err)
			return
		}
		if !added {
			fmt.Fprintf(c.Out, "Restore of %s is already scheduled\n", filename)
			return
		}
		fmt.Fprintf(c.Out, "%s Scheduled restore of %s (runs on the next `sitebak cron restore`)\n", c.green("*"), filename)
		return
	}

	switch {
	case wipe:
		fmt.Fprintf(c.Out, "%s Restoring %s (wiping current site)...\n", c.yellow("!"), filename)
	case aside:
		fmt.Fprintf(c.Out, "%s Restoring %s (archiving current site)...\n", c.yellow("!"), filename)
	default:
		fmt.Fprintf(c.Out, "Restoring %s...\n", filename)
	}

	opts := recovery.RestoreOptions{Filename: filename, Wipe: wipe, Archive: aside}
	if err := svc.Recovery.Restore(c.Ctx, opts); err != nil {
		c.fail("Restore failed: %v", err)
		return
	}
	fmt.Fprintf(c.Out, "%s Successfully restored %s\n", c.green("*"), filename)
}

// CreateLink prints a public download link for an archive.
func (c *CLI) CreateLink() {
	positional, _ := c.args()
	if len(positional) < 1 {
		c.usage("sitebak link <archive>")
		return
	}
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	link, err := svc.Archives.Link(c.Ctx, positional[0])
	if err != nil {
		c.fail("Error: %v", err)
		return
	}
	fmt.Fprintln(c.Out, link.DownloadURL)
	fmt.Fprintf(c.Out, "%s\n", c.gray("expires in "+link.ExpiresWhen))
}

// RunDiff compares two archives, or one file inside them.
func (c *CLI) RunDiff() {
	positional, _ := c.args()
	if len(positional) < 2 {
		c.usage("sitebak diff <old> <new> [path]")
		return
	}
	_, svc, ok := c.connect()
	if !ok {
		return
	}
	oldFile, newFile := positional[0], positional[1]

	if len(positional) > 2 {
		d, err := svc.Archives.CompareFile(c.Ctx, oldFile, newFile, positional[2])
		if err != nil {
			c.fail("Error: %v", err)
			return
		}
		if d.IsBinary {
			fmt.Fprintf(c.Out, "Binary file %s differs\n", d.Path)
			return
		}
		for _, l := range d.Lines {
			line := string(l.Type) + " " + l.Content
			switch l.Type {
			case '+':
				fmt.Fprintln(c.Out, c.green(line))
			case '-':
				fmt.Fprintln(c.Out, c.red(line))
			default:
				fmt.Fprintln(c.Out, c.gray(line))
			}
		}
		return
	}

	cmp, err := svc.Archives.Compare(c.Ctx, oldFile, newFile)
	if err != nil {
		c.fail("Error: %v", err)
		return
	}
	for _, ch := range cmp.Changes {
		switch ch.Status {
		case 'A':
			fmt.Fprintf(c.Out, "  %s %s\n", c.green("A"), ch.Path)
		case 'D':
			fmt.Fprintf(c.Out, "  %s %s\n", c.red("D"), ch.Path)
		default:
			fmt.Fprintf(c.Out, "  %s %s\n", c.yellow("M"), ch.Path)
		}
	}
	fmt.Fprintf(c.Out, "%d modified, %d added, %d deleted\n", cmp.Modified, cmp.Added, cmp.Deleted)
}

// RunJobs shows, drains or clears the job queue.
func (c *CLI) RunJobs() {
	positional, _ := c.args()
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	sub := ""
	if len(positional) > 0 {
		sub = positional[0]
	}
	switch sub {
	case "":
	case "run":
		sum, err := svc.Jobs.RunAll(c.Ctx)
		if err != nil {
			c.fail("Error running jobs: %v", err)
			return
		}
		c.printSummary(sum)
		return
	case "clear":
		if err := svc.Jobs.Clear(); err != nil {
			c.fail("Error: %v", err)
			return
		}
		fmt.Fprintf(c.Out, "%s Cleared the job queue\n", c.yellow("-"))
		return
	default:
		c.usage("sitebak jobs [run|clear]")
		return
	}

	list, err := svc.Jobs.List()
	if err != nil {
		c.fail("Error: %v", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(c.Out, "No queued jobs")
		return
	}
	fmt.Fprintf(c.Out, "  %-10s %-8s %-36s %s\n", "STATUS", "ATTEMPTS", "JOB", "NEXT RUN")
	for _, j := range list {
		next := "-"
		if !j.NextRunAt.IsZero() {
			next = j.NextRunAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(c.Out, "  %-10s %-8d %-36s %s\n", j.Status, j.Attempts, jobTitle(j), next)
		if j.LastError != "" {
			fmt.Fprintf(c.Out, "  %s\n", c.gray("  last error: "+j.LastError))
		}
	}
}

// RunNotices shows or dismisses notices.
func (c *CLI) RunNotices() {
	positional, _ := c.args()
	_, svc, ok := c.connect()
	if !ok {
		return
	}

	if len(positional) > 0 {
		switch positional[0] {
		case "clear":
			if err := svc.Notices.Clear(); err != nil {
				c.fail("Error: %v", err)
				return
			}
			fmt.Fprintf(c.Out, "%s Cleared notices\n", c.yellow("-"))
		case "dismiss":
			if len(positional) < 2 {
				c.usage("sitebak notices dismiss <id>")
				return
			}
			found, err := svc.Notices.Dismiss(positional[1])
			if err != nil {
				c.fail("Error: %v", err)
				return
			}
			if !found {
				c.fail("No notice %s", positional[1])
				return
			}
			fmt.Fprintf(c.Out, "%s Dismissed %s\n", c.yellow("-"), positional[1])
		default:
			c.usage("sitebak notices [dismiss <id>|clear]")
		}
		return
	}

	list, err := svc.Notices.List()
	if err != nil {
		c.fail("Error: %v", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(c.Out, "No notices")
		return
	}
	for _, n := range list {
		level := c.cyan(string(n.Level))
		switch n.Level {
		case notice.LevelError:
			level = c.red(string(n.Level))
		case notice.LevelWarning:
			level = c.yellow(string(n.Level))
		}
		fmt.Fprintf(c.Out, "  %s %s %s %s\n", c.gray(n.ID[:min(8, len(n.ID))]), level, c.gray(n.CreatedAt.Format("2006-01-02 15:04")), n.Message)
	}
}

// InstallScheduler installs the periodic `sitebak cron` run.
func (c *CLI) InstallScheduler() {
	_, flags := c.args()
	svc := c.SchedulerSvc

	if svc.IsInstalled() {
		fmt.Fprintln(c.Out, "Schedule already installed. Uninstall first to reinstall.")
		c.Exit(1)
		return
	}

	interval := DefaultTickInterval
	if v, ok := flags["interval"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.fail("Invalid --interval %q: must be a positive number of minutes", v)
			return
		}
		interval = n
	}

	exe, err := c.Executable()
	if err != nil {
		c.fail("Error: %v", err)
		return
	}
	if err := svc.Install(exe, c.ConfigSvc.ConfigPath(), interval); err != nil {
		c.fail("Error installing schedule: %v", err)
		return
	}

	fmt.Fprintf(c.Out, "%s Installed schedule (sitebak cron every %d minutes)\n", c.green("*"), interval)
	fmt.Fprintf(c.Out, "  Unit: %s\n", svc.UnitPath())
	fmt.Fprintf(c.Out, "  Log:  %s\n", svc.LogPath())
}

// UninstallScheduler removes the periodic run.
func (c *CLI) UninstallScheduler() {
	svc := c.SchedulerSvc

	if !svc.IsInstalled() {
		fmt.Fprintln(c.Out, "Schedule not installed.")
		c.Exit(1)
		return
	}
	if err := svc.Uninstall(); err != nil {
		c.fail("Error uninstalling schedule: %v", err)
		return
	}
	fmt.Fprintf(c.Out, "%s Uninstalled schedule\n", c.yellow("-"))
}

// ShowStatus shows the configuration and schedule status.
func (c *CLI) ShowStatus() {
	cfg, err := c.ConfigSvc.Load()
	if err != nil {
		c.fail("Error loading config: %v", err)
		return
	}

	fmt.Fprintln(c.Out, "sitebak status:")
	fmt.Fprintf(c.Out, "  Site:     %s\n", cfg.SiteDir)
	fmt.Fprintf(c.Out, "  Backups:  %s\n", cfg.BackupDir)
	fmt.Fprintf(c.Out, "  Config:   %s\n", c.ConfigSvc.ConfigPath())

	var enabled []string
	for _, s := range cfg.Storage {
		if s.Enabled {
			enabled = append(enabled, s.Key)
		}
	}
	fmt.Fprintf(c.Out, "  Storage:  %s\n", strings.Join(enabled, ", "))

	if next, err := schedule.NextRunAt(cfg.Schedule, c.Now()); err == nil {
		fmt.Fprintf(c.Out, "  Schedule: %s (next %s)\n", cfg.Schedule, next.Format("2006-01-02 15:04"))
	} else {
		fmt.Fprintf(c.Out, "  Schedule: %s\n", c.red("invalid: "+err.Error()))
	}

	switch status := c.SchedulerSvc.Status(); status {
	case "loaded":
		fmt.Fprintf(c.Out, "  launchd:  %s\n", c.green("installed & loaded"))
	case "not loaded":
		fmt.Fprintf(c.Out, "  launchd:  %s\n", c.gray("installed (not loaded)"))
	default:
		fmt.Fprintf(c.Out, "  launchd:  %s\n", c.gray(status))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(c.Out, "\n%s\n%v\n", c.red("Configuration problems:"), err)
	}
}

// RunServe serves download links until the context is cancelled.
func (c *CLI) RunServe() {
	_, flags := c.args()
	cfg, svc, ok := c.connect()
	if !ok {
		return
	}

	addr := cfg.Serve.Addr
	if v := flags["addr"]; v != "" {
		addr = v
	}
	fmt.Fprintf(c.Out, "%s Serving downloads on %s\n", c.cyan("=>"), addr)
	if err := svc.Serve(c.Ctx, addr); err != nil {
		c.fail("Error: %v", err)
	}
}

// RunUI launches the terminal UI.
func (c *CLI) RunUI() {
	_, svc, ok := c.connect()
	if !ok {
		return
	}
	if err := svc.UI(c.Ctx); err != nil {
		c.fail("Error: %v", err)
	}
}
