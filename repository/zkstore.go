package repository

import (
	"context"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/libkv/store"
	"github.com/docker/libkv/store/zookeeper"
)

// ZKConfig configures the Zookeeper-backed Store, sharing its
// connection settings shape with leader.ElectionConfig so both
// components campaign/persist against the same quorum.
type ZKConfig struct {
	ZKServers         []string      `yaml:"zk_servers"`
	Root              string        `yaml:"root"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// zkStore implements Store on top of github.com/docker/libkv, the
// same coordination client used for leader election (leader/election.go),
// storing each version of a key as a child node named after its
// version's UnixNano timestamp.
type zkStore struct {
	kv   store.Store
	root string
}

// NewZKStore dials Zookeeper through libkv and returns a Store rooted
// at cfg.Root.
func NewZKStore(cfg ZKConfig) (Store, error) {
	timeout := cfg.ConnectionTimeout
	if timeout == 0 {
		timeout = time.Second
	}
	kv, err := zookeeper.New(cfg.ZKServers, &store.Config{ConnectionTimeout: timeout})
	if err != nil {
		return nil, err
	}
	return &zkStore{kv: kv, root: strings.TrimPrefix(cfg.Root, "/")}, nil
}

func (s *zkStore) versionsDir(key string) string {
	return strings.TrimPrefix(path.Join(s.root, key), "/")
}

func (s *zkStore) versionPath(key string, v time.Time) string {
	return path.Join(s.versionsDir(key), strconv.FormatInt(v.UnixNano(), 10))
}

func (s *zkStore) Store(_ context.Context, key string, value []byte) (time.Time, error) {
	v := time.Now()
	if err := s.kv.Put(s.versionPath(key, v), value, nil); err != nil {
		return time.Time{}, err
	}
	return v, nil
}

func (s *zkStore) CompareAndSwap(ctx context.Context, key string, expected time.Time, value []byte) (time.Time, error) {
	latest, err := s.latestVersion(ctx, key)
	if err != nil {
		if _, ok := err.(*NotFoundError); !ok {
			return time.Time{}, err
		}
	}
	if expected.IsZero() {
		if !latest.IsZero() {
			return time.Time{}, &ConflictError{Key: key}
		}
	} else if !latest.Equal(expected) {
		return time.Time{}, &ConflictError{Key: key}
	}
	return s.Store(ctx, key, value)
}

func (s *zkStore) latestVersion(ctx context.Context, key string) (time.Time, error) {
	versions, err := s.Versions(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	if len(versions) == 0 {
		return time.Time{}, nil
	}
	return versions[len(versions)-1], nil
}

func (s *zkStore) Get(ctx context.Context, key string) ([]byte, error) {
	latest, err := s.latestVersion(ctx, key)
	if err != nil {
		return nil, err
	}
	if latest.IsZero() {
		return nil, &NotFoundError{Key: key}
	}
	return s.GetVersion(ctx, key, latest)
}

func (s *zkStore) GetVersion(_ context.Context, key string, version time.Time) ([]byte, error) {
	pair, err := s.kv.Get(s.versionPath(key, version))
	if err != nil {
		return nil, &NotFoundError{Key: key, Version: version}
	}
	return pair.Value, nil
}

func (s *zkStore) Versions(_ context.Context, key string) ([]time.Time, error) {
	pairs, err := s.kv.List(s.versionsDir(key))
	if err != nil {
		return nil, &NotFoundError{Key: key}
	}
	out := make([]time.Time, 0, len(pairs))
	for _, pair := range pairs {
		name := path.Base(pair.Key)
		nanos, err := strconv.ParseInt(name, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, time.Unix(0, nanos))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (s *zkStore) Delete(_ context.Context, key string) error {
	return s.kv.DeleteTree(s.versionsDir(key))
}

func (s *zkStore) IDs(_ context.Context, prefix string) ([]string, error) {
	pairs, err := s.kv.List(strings.TrimPrefix(path.Join(s.root, prefix), "/"))
	if err != nil {
		return nil, nil
	}
	out := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, strings.TrimPrefix(pair.Key, s.root+"/"))
	}
	sort.Strings(out)
	return out, nil
}
