// Package audit persists the policy change journal as JSON Lines files with
// daily rotation, size caps, retention cleanup, and an in-memory cache of
// recent entries.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/AppLock-Forge/applockforge/internal/domain/audit"
)

// journalFilePattern matches journal filenames: changes-YYYY-MM-DD.log or
// changes-YYYY-MM-DD-N.log for size-rotated continuations.
var journalFilePattern = regexp.MustCompile(`^changes-(\d{4}-\d{2}-\d{2})(?:-(\d+))?\.log$`)

// journalFileInfo holds the parsed components of a journal filename.
type journalFileInfo struct {
	name   string
	date   string
	suffix int
}

func parseJournalFilename(name string) (journalFileInfo, bool) {
	m := journalFilePattern.FindStringSubmatch(name)
	if m == nil {
		return journalFileInfo{}, false
	}
	info := journalFileInfo{name: name, date: m[1]}
	if m[2] != "" {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return journalFileInfo{}, false
		}
		info.suffix = n
	}
	return info, true
}

// sortJournalFiles orders files chronologically: by date, then suffix.
func sortJournalFiles(files []journalFileInfo) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].date != files[j].date {
			return files[i].date < files[j].date
		}
		return files[i].suffix < files[j].suffix
	})
}

// FileJournalConfig holds configuration for the file-based change journal.
type FileJournalConfig struct {
	// Dir is the directory where journal files are stored.
	Dir string
	// RetentionDays is the number of days to keep journal files (default 30).
	RetentionDays int
	// MaxFileSizeMB is the maximum file size before rotation (default 50).
	MaxFileSizeMB int
	// CacheSize is the number of recent entries kept in memory (default 500).
	CacheSize int
}

// FileJournal implements audit.Journal on rotated JSON Lines files.
type FileJournal struct {
	dir           string
	maxFileSize   int64
	retentionDays int
	currentFile   *os.File
	currentDate   string
	currentSize   int64
	currentSuffix int
	cache         *recentCache
	mu            sync.Mutex
	logger        *slog.Logger
	cancel        context.CancelFunc
	closed        bool
}

// NewFileJournal opens a file-based change journal. It creates the
// directory if needed, opens today's file, runs retention cleanup, fills the
// cache from the most recent file, and starts the hourly cleanup goroutine.
func NewFileJournal(cfg FileJournalConfig, logger *slog.Logger) (*FileJournal, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 50
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 500
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &FileJournal{
		dir:           cfg.Dir,
		maxFileSize:   int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		retentionDays: cfg.RetentionDays,
		cache:         newRecentCache(cfg.CacheSize),
		logger:        logger,
		cancel:        cancel,
	}

	today := time.Now().UTC().Format("2006-01-02")
	if err := j.openCurrentFile(today); err != nil {
		cancel()
		return nil, fmt.Errorf("open journal file: %w", err)
	}

	j.runCleanup()
	j.populateCache()
	go j.cleanupLoop(ctx)

	return j, nil
}

// Append writes records as JSON lines, rotating by date and size as needed.
func (j *FileJournal) Append(ctx context.Context, records ...audit.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, rec := range records {
		dateStr := rec.Timestamp.UTC().Format("2006-01-02")
		if dateStr != j.currentDate {
			if err := j.rotateDateLocked(dateStr); err != nil {
				return fmt.Errorf("date rotation: %w", err)
			}
		}
		if j.currentSize >= j.maxFileSize {
			if err := j.rotateSizeLocked(); err != nil {
				return fmt.Errorf("size rotation: %w", err)
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal change record: %w", err)
		}
		n, err := j.currentFile.Write(append(data, '\n'))
		if err != nil {
			return fmt.Errorf("write change record: %w", err)
		}
		j.currentSize += int64(n)
		j.cache.Add(rec)
	}
	return nil
}

// Flush syncs the current file to disk.
func (j *FileJournal) Flush(_ context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.currentFile != nil {
		return j.currentFile.Sync()
	}
	return nil
}

// Recent returns the last n change records from the cache, newest first.
func (j *FileJournal) Recent(n int) []audit.ChangeRecord {
	return j.cache.Recent(n)
}

// Close stops the cleanup goroutine and closes the current file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	j.cancel()

	if j.currentFile != nil {
		_ = j.currentFile.Sync()
		err := j.currentFile.Close()
		j.currentFile = nil
		return err
	}
	return nil
}

// openCurrentFile opens the journal file for a date, resuming the highest
// existing suffix so restarts keep appending where they left off.
func (j *FileJournal) openCurrentFile(dateStr string) error {
	suffix := j.highestSuffix(dateStr)
	f, size, err := j.openFile(dateStr, suffix)
	if err != nil {
		return err
	}
	j.currentFile = f
	j.currentDate = dateStr
	j.currentSize = size
	j.currentSuffix = suffix
	return nil
}

func (j *FileJournal) highestSuffix(dateStr string) int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, e := range entries {
		info, ok := parseJournalFilename(e.Name())
		if ok && info.date == dateStr && info.suffix > highest {
			highest = info.suffix
		}
	}
	return highest
}

func (j *FileJournal) openFile(dateStr string, suffix int) (*os.File, int64, error) {
	name := journalFilename(dateStr, suffix)
	f, err := os.OpenFile(filepath.Join(j.dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, 0, fmt.Errorf("open file %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat file %s: %w", name, err)
	}
	return f, info.Size(), nil
}

func journalFilename(dateStr string, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("changes-%s.log", dateStr)
	}
	return fmt.Sprintf("changes-%s-%d.log", dateStr, suffix)
}

// rotateDateLocked switches to a fresh file for the given date.
// Must be called with j.mu held.
func (j *FileJournal) rotateDateLocked(dateStr string) error {
	if j.currentFile != nil {
		_ = j.currentFile.Sync()
		_ = j.currentFile.Close()
		j.currentFile = nil
	}
	j.currentSuffix = 0
	j.currentDate = dateStr

	f, size, err := j.openFile(dateStr, 0)
	if err != nil {
		return err
	}
	j.currentFile = f
	j.currentSize = size
	return nil
}

// rotateSizeLocked continues the current date under the next suffix.
// Must be called with j.mu held.
func (j *FileJournal) rotateSizeLocked() error {
	if j.currentFile != nil {
		_ = j.currentFile.Sync()
		_ = j.currentFile.Close()
		j.currentFile = nil
	}
	j.currentSuffix++

	f, size, err := j.openFile(j.currentDate, j.currentSuffix)
	if err != nil {
		return err
	}
	j.currentFile = f
	j.currentSize = size
	return nil
}

// runCleanup deletes journal files older than the retention period.
func (j *FileJournal) runCleanup() {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		j.logger.Error("journal cleanup: failed to read directory", "dir", j.dir, "error", err)
		return
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	deleted := 0
	for _, e := range entries {
		info, ok := parseJournalFilename(e.Name())
		if !ok {
			continue
		}
		fileDate, err := time.Parse("2006-01-02", info.date)
		if err != nil || !fileDate.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, e.Name())); err != nil {
			j.logger.Error("journal cleanup: failed to delete file", "file", e.Name(), "error", err)
		} else {
			deleted++
		}
	}
	if deleted > 0 {
		j.logger.Info("journal cleanup completed", "deleted", deleted)
	}
}

func (j *FileJournal) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runCleanup()
		}
	}
}

// populateCache reads the most recent journal file into the cache so Recent
// works across restarts.
func (j *FileJournal) populateCache() {
	mostRecent := j.mostRecentFile()
	if mostRecent == "" {
		return
	}

	f, err := os.Open(filepath.Join(j.dir, mostRecent))
	if err != nil {
		j.logger.Error("journal cache: failed to open file", "file", mostRecent, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	var records []audit.ChangeRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var rec audit.ChangeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			j.logger.Warn("journal cache: skipping malformed line", "file", mostRecent, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		j.logger.Error("journal cache: error reading file", "file", mostRecent, "error", err)
	}

	start := 0
	if len(records) > j.cache.size {
		start = len(records) - j.cache.size
	}
	for _, rec := range records[start:] {
		j.cache.Add(rec)
	}
}

// mostRecentFile returns the newest non-empty journal file, or "".
func (j *FileJournal) mostRecentFile() string {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		return ""
	}

	var files []journalFileInfo
	for _, e := range entries {
		info, ok := parseJournalFilename(e.Name())
		if !ok {
			continue
		}
		finfo, err := e.Info()
		if err != nil || finfo.Size() == 0 {
			continue
		}
		files = append(files, info)
	}
	if len(files) == 0 {
		return ""
	}
	sortJournalFiles(files)
	return files[len(files)-1].name
}

// Compile-time interface verification.
var _ audit.Journal = (*FileJournal)(nil)

// recentCache is a ring buffer of recent change records.
type recentCache struct {
	entries []audit.ChangeRecord
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

func newRecentCache(size int) *recentCache {
	if size <= 0 {
		size = 500
	}
	return &recentCache{
		entries: make([]audit.ChangeRecord, size),
		size:    size,
	}
}

// Add appends a record, overwriting the oldest entry when full.
func (c *recentCache) Add(rec audit.ChangeRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.head] = rec
	c.head = (c.head + 1) % c.size
	if c.count < c.size {
		c.count++
	}
}

// Recent returns the last n entries, newest first.
func (c *recentCache) Recent(n int) []audit.ChangeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || c.count == 0 {
		return nil
	}
	if n > c.count {
		n = c.count
	}
	result := make([]audit.ChangeRecord, n)
	for i := 0; i < n; i++ {
		// head is the next write position, so head-1 is newest
		idx := (c.head - 1 - i + c.size) % c.size
		result[i] = c.entries[idx]
	}
	return result
}
