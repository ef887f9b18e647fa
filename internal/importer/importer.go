package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"dm-service/internal/repositories"
)

const friendsSuffix = ".friends.json"

// Report summarises one import run.
type Report struct {
	Users       int
	Friendships int
	Existing    int
	Skipped     int
}

// Importer loads the legacy flat-file layout: <dir>/users.json maps user
// names to passwords and <dir>/users/<name>.friends.json lists friend names.
// Passwords are ignored. Running it twice is harmless.
type Importer struct {
	users   repositories.UserRepository
	friends repositories.FriendRepository
	logger  *zap.Logger
}

// New builds an Importer.
func New(users repositories.UserRepository, friends repositories.FriendRepository, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{users: users, friends: friends, logger: logger}
}

// Run imports everything under dir.
func (im *Importer) Run(ctx context.Context, dir string) (Report, error) {
	var report Report

	names, err := readUsers(filepath.Join(dir, "users.json"))
	if err != nil {
		return report, err
	}
	known := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := im.users.EnsureUser(ctx, name); err != nil {
			return report, fmt.Errorf("import user %q: %w", name, err)
		}
		known[name] = struct{}{}
		report.Users++
	}

	files, err := filepath.Glob(filepath.Join(dir, "users", "*"+friendsSuffix))
	if err != nil {
		return report, err
	}
	sort.Strings(files)
	for _, file := range files {
		owner := strings.TrimSuffix(filepath.Base(file), friendsSuffix)
		if _, ok := known[owner]; !ok {
			im.logger.Warn("skipping friends of unknown user", zap.String("user", owner))
			report.Skipped++
			continue
		}
		friends, err := readFriends(file)
		if err != nil {
			return report, err
		}
		for _, friend := range friends {
			if err := im.addFriend(ctx, owner, friend, known, &report); err != nil {
				return report, err
			}
		}
	}

	im.logger.Info("legacy import finished",
		zap.Int("users", report.Users),
		zap.Int("friendships", report.Friendships),
		zap.Int("existing", report.Existing),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

func (im *Importer) addFriend(ctx context.Context, owner, friend string, known map[string]struct{}, report *Report) error {
	friend = strings.TrimSpace(friend)
	// legacy lists start with the owner itself
	if friend == "" || friend == owner {
		return nil
	}
	if _, ok := known[friend]; !ok {
		im.logger.Warn("skipping unknown friend", zap.String("user", owner), zap.String("friend", friend))
		report.Skipped++
		return nil
	}
	_, err := im.friends.AddFriend(ctx, owner, friend)
	switch {
	case err == nil:
		report.Friendships++
	case errors.Is(err, repositories.ErrAlreadyFriends):
		report.Existing++
	default:
		return fmt.Errorf("import friendship %s-%s: %w", owner, friend, err)
	}
	return nil
}

func readUsers(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	var passwords map[string]string
	if err := json.Unmarshal(data, &passwords); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	names := make([]string, 0, len(passwords))
	for name := range passwords {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func readFriends(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read friends: %w", err)
	}
	var friends []string
	if err := json.Unmarshal(data, &friends); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return friends, nil
}
