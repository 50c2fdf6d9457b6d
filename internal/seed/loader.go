// Package seed loads users and competitions from YAML fixture files.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/judgehub/internal/judging"
	"github.com/terra-clan/judgehub/internal/models"
	"github.com/terra-clan/judgehub/internal/scoring"
)

// File is the on-disk fixture format
type File struct {
	Users        []UserFixture        `yaml:"users"`
	Competitions []CompetitionFixture `yaml:"competitions"`
}

// UserFixture describes a user to create
type UserFixture struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// CompetitionFixture describes a competition to create
type CompetitionFixture struct {
	Name         string             `yaml:"name"`
	Description  string             `yaml:"description"`
	StartsAt     string             `yaml:"starts_at"`
	EndsAt       string             `yaml:"ends_at"`
	Status       string             `yaml:"status"`
	Criteria     []CriterionFixture `yaml:"criteria"`
	Participants []string           `yaml:"participants"`
	Judges       []string           `yaml:"judges"` // usernames
}

// CriterionFixture describes one weighted criterion
type CriterionFixture struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Weight float64 `yaml:"weight"`
}

// Target is the subset of the judging service the loader drives
type Target interface {
	Register(ctx context.Context, in judging.RegisterInput) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	CreateCompetition(ctx context.Context, in judging.CreateCompetitionInput, createdBy string) (*models.Competition, error)
	ListCompetitions(ctx context.Context, filters models.CompetitionFilters) ([]*models.Competition, error)
	AddJudge(ctx context.Context, competitionID, userID string) (*models.Competition, error)
	UpdateStatus(ctx context.Context, id string, next models.CompetitionStatus) (*models.Competition, error)
}

// Result counts what Apply created
type Result struct {
	Users        int
	Competitions int
}

// LoadDir reads every *.yaml and *.yml file in dir, in name order
func LoadDir(dir string) ([]*File, error) {
	slog.Info("loading fixtures from directory", "dir", dir)

	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list fixtures: %w", err)
		}
		paths = append(paths, matches...)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("failed to read fixtures dir: %w", err)
		}
	}

	files := make([]*File, 0, len(paths))
	for _, path := range paths {
		f, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		files = append(files, f)
	}
	return files, nil
}

// LoadFile parses and validates a single fixture file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, u := range f.Users {
		if u.Username == "" {
			return nil, fmt.Errorf("user %d: username is required", i)
		}
		if !models.Role(u.Role).IsValid() {
			return nil, fmt.Errorf("user %s: invalid role %q", u.Username, u.Role)
		}
	}
	for i, c := range f.Competitions {
		if c.Name == "" {
			return nil, fmt.Errorf("competition %d: name is required", i)
		}
		if c.Status != "" {
			if _, ok := models.ParseCompetitionStatus(c.Status); !ok {
				return nil, fmt.Errorf("competition %s: invalid status %q", c.Name, c.Status)
			}
		}
	}

	return &f, nil
}

// Apply creates the users and competitions that do not exist yet.
// Users are matched by username and competitions by name.
func Apply(ctx context.Context, t Target, files []*File) (Result, error) {
	var res Result

	users, err := t.ListUsers(ctx)
	if err != nil {
		return res, err
	}
	byName := make(map[string]*models.User, len(users))
	for _, u := range users {
		byName[strings.ToLower(u.Username)] = u
	}

	existing, err := t.ListCompetitions(ctx, models.CompetitionFilters{})
	if err != nil {
		return res, err
	}
	competitions := make(map[string]bool, len(existing))
	for _, c := range existing {
		competitions[c.Name] = true
	}

	for _, f := range files {
		for _, uf := range f.Users {
			if byName[strings.ToLower(uf.Username)] != nil {
				continue
			}
			u, err := t.Register(ctx, judging.RegisterInput{
				Username: uf.Username,
				Password: uf.Password,
				Role:     models.Role(uf.Role),
			})
			if err != nil {
				return res, fmt.Errorf("user %s: %w", uf.Username, err)
			}
			byName[strings.ToLower(u.Username)] = u
			res.Users++
		}
	}

	var createdBy string
	for _, u := range byName {
		if u.Role == models.RoleAdmin {
			createdBy = u.ID
			break
		}
	}

	for _, f := range files {
		for _, cf := range f.Competitions {
			if competitions[cf.Name] {
				continue
			}
			if err := applyCompetition(ctx, t, cf, byName, createdBy); err != nil {
				return res, fmt.Errorf("competition %s: %w", cf.Name, err)
			}
			competitions[cf.Name] = true
			res.Competitions++
		}
	}

	slog.Info("fixtures applied", "users", res.Users, "competitions", res.Competitions)
	return res, nil
}

func applyCompetition(ctx context.Context, t Target, cf CompetitionFixture, users map[string]*models.User, createdBy string) error {
	in := judging.CreateCompetitionInput{
		Name:         cf.Name,
		Description:  cf.Description,
		Participants: cf.Participants,
	}

	var err error
	if in.StartsAt, err = parseTime(cf.StartsAt); err != nil {
		return fmt.Errorf("starts_at: %w", err)
	}
	if in.EndsAt, err = parseTime(cf.EndsAt); err != nil {
		return fmt.Errorf("ends_at: %w", err)
	}
	for _, c := range cf.Criteria {
		in.Criteria = append(in.Criteria, scoring.CriterionInput{ID: c.ID, Name: c.Name, Weight: c.Weight})
	}

	c, err := t.CreateCompetition(ctx, in, createdBy)
	if err != nil {
		return err
	}

	for _, name := range cf.Judges {
		u := users[strings.ToLower(name)]
		if u == nil {
			return fmt.Errorf("unknown judge %q", name)
		}
		if _, err := t.AddJudge(ctx, c.ID, u.ID); err != nil {
			return fmt.Errorf("judge %s: %w", name, err)
		}
	}

	if cf.Status == "" {
		return nil
	}
	target, _ := models.ParseCompetitionStatus(cf.Status)
	for _, step := range statusPath(target) {
		if _, err := t.UpdateStatus(ctx, c.ID, step); err != nil {
			if errors.Is(err, judging.ErrConflict) {
				return fmt.Errorf("cannot reach status %s: %w", target, err)
			}
			return err
		}
	}
	return nil
}

// statusPath lists the transitions from upcoming to target
func statusPath(target models.CompetitionStatus) []models.CompetitionStatus {
	switch target {
	case models.StatusOngoing:
		return []models.CompetitionStatus{models.StatusOngoing}
	case models.StatusCompleted:
		return []models.CompetitionStatus{models.StatusOngoing, models.StatusCompleted}
	case models.StatusCanceled:
		return []models.CompetitionStatus{models.StatusCanceled}
	default:
		return nil
	}
}

func parseTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
