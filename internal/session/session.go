// Package session implements the Redis-backed session store (spec §4.6,
// C6): per-bank session lifecycle, progress/error counters, file-list
// cache and the client's cancel flag. Grounded on the teacher's atomic
// counting idiom (dirCreateMu-style single-writer discipline) and on
// github.com/redis/go-redis/v9, the Redis client the spec's key/value
// store (atomic INCR, list push, GET/SET/DEL) describes.
package session

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/biomaj/biomaj-download/internal/model"
)

// Store is the session key/value store described in spec §4.6. All keys
// share a configurable prefix and are scoped by bank and session id.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New wraps an existing Redis client. prefix is prepended to every key
// (spec §4.6: "prefix is configurable").
func New(rdb *redis.Client, prefix string) *Store {
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) aliveKey(bank, sid string) string     { return s.prefix + ":" + bank + ":session:" + sid }
func (s *Store) progressKey(bank, sid string) string  { return s.aliveKey(bank, sid) + ":progress" }
func (s *Store) errorKey(bank, sid string) string     { return s.aliveKey(bank, sid) + ":error" }
func (s *Store) errorInfoKey(bank, sid string) string { return s.aliveKey(bank, sid) + ":error:info" }
func (s *Store) filesKey(bank, sid string) string     { return s.aliveKey(bank, sid) + ":files" }
func (s *Store) cancelKey(bank string) string         { return s.prefix + ":" + bank + ":action:cancel" }

// CreateSession generates a fresh session id, marks it alive and returns
// it (spec §4.5 create_session).
func (s *Store) CreateSession(ctx context.Context, bank string) (string, error) {
	sid := uuid.NewString()
	if err := s.rdb.Set(ctx, s.aliveKey(bank, sid), "1", 0).Err(); err != nil {
		return "", errors.Wrap(err, "session: create")
	}
	return sid, nil
}

// Alive reports whether the session is still marked alive. A worker
// consults this before acting on a job (spec §4.5 state machine:
// "SESSION_ALIVE?").
func (s *Store) Alive(ctx context.Context, bank, sid string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.aliveKey(bank, sid)).Result()
	if err != nil {
		return false, errors.Wrap(err, "session: alive")
	}
	return n > 0, nil
}

// IncrProgress increments the session's progress counter and returns the
// new value (spec §4.6: "counter, increment-only").
func (s *Store) IncrProgress(ctx context.Context, bank, sid string) (int64, error) {
	n, err := s.rdb.Incr(ctx, s.progressKey(bank, sid)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "session: incr progress")
	}
	return n, nil
}

// IncrError increments the session's error counter and appends msg to
// error:info (spec §4.5 list_op/download_op error paths).
func (s *Store) IncrError(ctx context.Context, bank, sid, msg string) error {
	if _, err := s.rdb.Incr(ctx, s.errorKey(bank, sid)).Result(); err != nil {
		return errors.Wrap(err, "session: incr error")
	}
	if err := s.rdb.RPush(ctx, s.errorInfoKey(bank, sid), msg).Err(); err != nil {
		return errors.Wrap(err, "session: push error:info")
	}
	return nil
}

// Progress returns the current progress and error counters.
func (s *Store) Progress(ctx context.Context, bank, sid string) (progress, errs int64, err error) {
	progress, err = s.rdb.Get(ctx, s.progressKey(bank, sid)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, errors.Wrap(err, "session: get progress")
	}
	errs, err = s.rdb.Get(ctx, s.errorKey(bank, sid)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return progress, 0, errors.Wrap(err, "session: get error")
	}
	return progress, errs, nil
}

// ErrorInfo returns the accumulated error:info list.
func (s *Store) ErrorInfo(ctx context.Context, bank, sid string) ([]string, error) {
	msgs, err := s.rdb.LRange(ctx, s.errorInfoKey(bank, sid), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "session: error:info")
	}
	return msgs, nil
}

// SetFiles serializes and stores the matched file list under key
// "files" (spec §4.5 list_op: "a single atomic write per session").
func (s *Store) SetFiles(ctx context.Context, bank, sid string, files []model.RemoteFile) error {
	data, err := json.Marshal(files)
	if err != nil {
		return errors.Wrap(err, "session: marshal files")
	}
	if err := s.rdb.Set(ctx, s.filesKey(bank, sid), data, 0).Err(); err != nil {
		return errors.Wrap(err, "session: set files")
	}
	return nil
}

// Files loads the file list stored by SetFiles.
func (s *Store) Files(ctx context.Context, bank, sid string) ([]model.RemoteFile, error) {
	data, err := s.rdb.Get(ctx, s.filesKey(bank, sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "session: get files")
	}
	var files []model.RemoteFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, errors.Wrap(err, "session: unmarshal files")
	}
	return files, nil
}

// Clean deletes every key belonging to the session (spec §4.5 clean).
func (s *Store) Clean(ctx context.Context, bank, sid string) error {
	keys := []string{
		s.aliveKey(bank, sid),
		s.progressKey(bank, sid),
		s.errorKey(bank, sid),
		s.errorInfoKey(bank, sid),
		s.filesKey(bank, sid),
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "session: clean")
	}
	return nil
}

// SetCancel raises the bank's one-shot cancel flag (spec §4.6
// action:cancel, consumed by the client).
func (s *Store) SetCancel(ctx context.Context, bank string) error {
	return errors.Wrap(s.rdb.Set(ctx, s.cancelKey(bank), "1", 0).Err(), "session: set cancel")
}

// ConsumeCancel reports whether the cancel flag was set, clearing it
// atomically if so (spec §4.7: "it consumes the flag and raises
// Canceled").
func (s *Store) ConsumeCancel(ctx context.Context, bank string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.cancelKey(bank)).Result()
	if err != nil {
		return false, errors.Wrap(err, "session: consume cancel")
	}
	return n > 0, nil
}
