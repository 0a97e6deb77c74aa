// Package fixture runs the configured seed and cleanup SQL scripts.
//
// A Fixture is handed explicitly to whoever needs known data: each
// end-to-end test calls Setup before it runs and Teardown when it is done,
// and the `gradebook fixture` command does the same against a live
// database.
package fixture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aanand-mishra/gradebook-api/internal/config"
)

// Executor runs one literal SQL script.
type Executor interface {
	Exec(ctx context.Context, script string) error
}

type script struct {
	name string
	sql  string
}

// Fixture holds the ordered setup and teardown scripts.
type Fixture struct {
	exec     Executor
	setup    []script
	teardown []script
}

// New builds a Fixture from the scripts in cfg. Empty scripts are skipped.
func New(exec Executor, cfg config.Fixtures) *Fixture {
	return &Fixture{
		exec: exec,
		setup: nonEmpty(
			script{"create student", cfg.CreateStudent},
			script{"create math grade", cfg.CreateMathGrade},
			script{"create science grade", cfg.CreateScienceGrade},
			script{"create history grade", cfg.CreateHistoryGrade},
		),
		teardown: nonEmpty(
			script{"delete student", cfg.DeleteStudent},
			script{"delete math grade", cfg.DeleteMathGrade},
			script{"delete science grade", cfg.DeleteScienceGrade},
			script{"delete history grade", cfg.DeleteHistoryGrade},
		),
	}
}

// Setup inserts the fixture rows. It stops at the first failing script.
func (f *Fixture) Setup(ctx context.Context) error {
	for _, s := range f.setup {
		if err := f.exec.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("fixture setup: %s: %w", s.name, err)
		}
	}
	return nil
}

// Teardown removes the fixture rows. Every script runs even if an earlier
// one failed, so one broken script does not leave the other tables dirty.
func (f *Fixture) Teardown(ctx context.Context) error {
	var errs []error
	for _, s := range f.teardown {
		if err := f.exec.Exec(ctx, s.sql); err != nil {
			errs = append(errs, fmt.Errorf("fixture teardown: %s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}

func nonEmpty(scripts ...script) []script {
	out := make([]script, 0, len(scripts))
	for _, s := range scripts {
		if strings.TrimSpace(s.sql) != "" {
			out = append(out, s)
		}
	}
	return out
}
