// Package archivelog persists the metadata sidecar of each archive.
//
// Every "name.zip" has a "name.log" next to it holding a JSON object of
// attributes. A missing log is a valid state (archives from before
// metadata existed) and reads as an empty record.
package archivelog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mcdonaldj/sitebak/internal/ports"
)

// Record is the metadata of one archive.
type Record struct {
	// Zip is the archive path the record belongs to.
	Zip string
	// Attrs holds the ordered attributes. Never nil on records returned by Store.
	Attrs *Attributes
	// Malformed is set when a log existed but could not be parsed.
	Malformed bool
}

// Get returns the value of key, if set.
func (r Record) Get(key string) (Value, bool) {
	return r.Attrs.Get(key)
}

// Store reads and writes archive logs.
type Store struct {
	fs         ports.FileSystem
	locker     ports.Locker
	compressor ports.Compressor
	log        zerolog.Logger
}

// NewStore creates a Store. The compressor is used to recover logs that
// only exist inside their archive.
func NewStore(fs ports.FileSystem, locker ports.Locker, compressor ports.Compressor, log zerolog.Logger) *Store {
	return &Store{
		fs:         fs,
		locker:     locker,
		compressor: compressor,
		log:        log.With().Str("component", "archivelog").Logger(),
	}
}

// PathFromZip returns the log path of a zip: same directory, ".zip"
// replaced by ".log".
func PathFromZip(zip string) string {
	if strings.HasSuffix(zip, ".zip") {
		return strings.TrimSuffix(zip, ".zip") + ".log"
	}
	return zip + ".log"
}

// PathFromZip returns the log path of a zip.
func (s *Store) PathFromZip(zip string) string {
	return PathFromZip(zip)
}

// Exists reports whether the log of zip is present.
func (s *Store) Exists(zip string) bool {
	return s.fs.Exists(PathFromZip(zip))
}

// GetByZip reads the log of zip. A missing or malformed log yields an
// empty record; malformed records are flagged.
func (s *Store) GetByZip(zip string) Record {
	rec := Record{Zip: zip, Attrs: NewAttributes()}
	path := PathFromZip(zip)

	data, err := s.fs.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("log", path).Msg("reading archive log")
		}
		return rec
	}

	attrs := NewAttributes()
	if err := attrs.UnmarshalJSON(data); err != nil {
		s.log.Warn().Err(err).Str("log", path).Msg("ignoring malformed archive log")
		rec.Malformed = true
		return rec
	}
	rec.Attrs = attrs
	return rec
}

// Write persists the full record. The log is written to a temporary file
// and renamed into place so readers never see a partial log.
func (s *Store) Write(rec Record) bool {
	if rec.Zip == "" {
		return false
	}
	if rec.Attrs == nil {
		rec.Attrs = NewAttributes()
	}

	data, err := rec.Attrs.MarshalJSON()
	if err != nil {
		s.log.Error().Err(err).Str("zip", rec.Zip).Msg("encoding archive log")
		return false
	}

	path := PathFromZip(rec.Zip)
	tmp := path + ".tmp-" + uuid.NewString()
	if err := s.fs.WriteFile(tmp, data, 0644); err != nil {
		s.log.Error().Err(err).Str("log", path).Msg("writing archive log")
		return false
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		s.log.Error().Err(err).Str("log", path).Msg("replacing archive log")
		return false
	}
	return true
}

// Update applies fn to the current log of zip and writes the result, while
// holding the log's lock. Concurrent updates to different keys are not lost.
func (s *Store) Update(zip string, fn func(*Attributes)) (Record, bool) {
	path := PathFromZip(zip)
	unlock, err := s.locker.Lock(path)
	if err != nil {
		s.log.Error().Err(err).Str("log", path).Msg("locking archive log")
		return Record{Zip: zip, Attrs: NewAttributes()}, false
	}
	defer func() {
		if err := unlock(); err != nil {
			s.log.Warn().Err(err).Str("log", path).Msg("unlocking archive log")
		}
	}()

	rec := s.GetByZip(zip)
	fn(rec.Attrs)
	return rec, s.Write(rec)
}

// DeleteByZip removes the log of zip. A log that is already gone counts
// as deleted.
func (s *Store) DeleteByZip(zip string) bool {
	path := PathFromZip(zip)
	if !s.fs.Exists(path) {
		return true
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Error().Err(err).Str("log", path).Msg("deleting archive log")
		return false
	}
	return true
}

// RestoreByZip re-creates a missing log from the copy embedded in the zip.
// It returns true when the log exists afterwards.
func (s *Store) RestoreByZip(zip string) bool {
	path := PathFromZip(zip)
	if s.fs.Exists(path) {
		return true
	}
	if !s.fs.Exists(zip) {
		return false
	}

	name := filepath.Base(path)
	files, err := s.compressor.GetFile(zip, name)
	if err != nil {
		s.log.Warn().Err(err).Str("zip", zip).Msg("reading embedded archive log")
		return false
	}
	if len(files) == 0 || len(files[0].Content) == 0 {
		return false
	}

	attrs := NewAttributes()
	if err := attrs.UnmarshalJSON(files[0].Content); err != nil {
		s.log.Warn().Err(err).Str("zip", zip).Msg("ignoring malformed embedded archive log")
		return false
	}

	if !s.Write(Record{Zip: zip, Attrs: attrs}) {
		return false
	}
	s.log.Info().Str("log", path).Msg("restored archive log from archive")
	return true
}
