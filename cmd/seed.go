package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database/postgres"
)

var seedCmd = &cobra.Command{
	Use:   "seed <rosters.yaml>",
	Short: "Load class rosters into PostgreSQL",
	Long: `Create or update classes and their students from a YAML file.

Re-running the command is safe: classes are renamed and students are moved
to the class the file lists them under.

Example file:
  classes:
    - id: CS-3A
      name: Computer Science 3A
      students:
        - id: s1
          name: Alice Novak
          roll_number: "1"`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type rosterFile struct {
	Classes []rosterClass `yaml:"classes"`
}

type rosterClass struct {
	ID       string          `yaml:"id"`
	Name     string          `yaml:"name"`
	Students []rosterStudent `yaml:"students"`
}

type rosterStudent struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	RollNumber string `yaml:"roll_number"`
}

func runSeed(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening roster file: %w", err)
	}
	defer f.Close()

	classes, err := readRosterFile(f)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Roster.Source == "mariadb" {
		logger.Warn("rosters are read from MariaDB; the seeded PostgreSQL rosters stay unused until ROSTER_SOURCE=postgres")
	}

	ctx := context.Background()
	pool, err := postgres.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewRosterRepository(pool)

	total := 0
	for _, c := range classes {
		total += len(c.Students)
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Seeding rosters"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("students"),
		progressbar.OptionFullWidth(),
	)

	for _, c := range classes {
		if err := repo.SaveClass(ctx, c.ID, c.Name); err != nil {
			return err
		}
		for _, s := range c.Students {
			student := attendance.Student{ID: s.ID, Name: s.Name, RollNumber: s.RollNumber}
			if err := repo.SaveStudent(ctx, c.ID, student); err != nil {
				return err
			}
			_ = bar.Add(1)
		}
		logger.Info("class seeded", zap.String("class_id", c.ID), zap.Int("students", len(c.Students)))
	}
	_ = bar.Finish()

	fmt.Printf("\nSeeded %d classes with %d students\n", len(classes), total)
	return nil
}

// readRosterFile decodes and validates a roster file. Every class needs an
// id, every student an id and a name, and a student may appear only once.
func readRosterFile(r io.Reader) ([]rosterClass, error) {
	var file rosterFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("roster file is empty")
		}
		return nil, fmt.Errorf("parsing roster file: %w", err)
	}
	if len(file.Classes) == 0 {
		return nil, errors.New("roster file lists no classes")
	}

	seenClass := make(map[string]bool)
	seenStudent := make(map[string]string)
	for i := range file.Classes {
		c := &file.Classes[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		if c.ID == "" {
			return nil, fmt.Errorf("class #%d has no id", i+1)
		}
		if seenClass[c.ID] {
			return nil, fmt.Errorf("class %s is listed twice", c.ID)
		}
		seenClass[c.ID] = true

		for j := range c.Students {
			s := &c.Students[j]
			s.ID = strings.TrimSpace(s.ID)
			s.Name = strings.TrimSpace(s.Name)
			s.RollNumber = strings.TrimSpace(s.RollNumber)
			if s.ID == "" || s.Name == "" {
				return nil, fmt.Errorf("class %s: student #%d needs an id and a name", c.ID, j+1)
			}
			if other, ok := seenStudent[s.ID]; ok {
				return nil, fmt.Errorf("student %s is listed in %s and %s", s.ID, other, c.ID)
			}
			seenStudent[s.ID] = c.ID
		}
	}
	return file.Classes, nil
}
