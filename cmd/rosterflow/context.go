package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/jask/rosterflow/internal/config"
	"github.com/jask/rosterflow/internal/database"
	"github.com/jask/rosterflow/internal/database/repository"
)

// app is everything a command needs once the database is up.
type app struct {
	cfg config.Config
	db  *sql.DB
	log *zap.Logger

	rosters  *repository.RosterRepo
	players  *repository.PlayerRepo
	audits   *repository.AuditRepo
	sessions *repository.SessionRepo
}

type commandContext struct {
	dbFlag      *string
	verboseFlag *bool

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(dbFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{dbFlag: dbFlag, verboseFlag: verboseFlag}
}

func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
		if c.configErr != nil {
			return
		}
		if c.dbFlag != nil && *c.dbFlag != "" {
			c.config.Database.Path = *c.dbFlag
		}
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *zap.Logger {
	if c.verboseFlag != nil && *c.verboseFlag {
		log, err := zap.NewDevelopment()
		if err == nil {
			return log
		}
	}
	return zap.NewNop()
}

// withApp opens the database, runs migrations, wires the repositories, runs
// fn, and closes up. Every command goes through here.
func (c *commandContext) withApp(fn func(*app) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	migrations := cfg.Database.Migrations
	if migrations == "" {
		migrations = "internal/database/migrations"
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.RunMigrationsWithDB(db, migrations); err != nil {
		return err
	}

	log := c.logger()
	defer log.Sync()

	a := &app{
		cfg:      cfg,
		db:       db,
		log:      log,
		rosters:  repository.NewRosterRepo(db),
		players:  repository.NewPlayerRepo(db),
		audits:   repository.NewAuditRepo(db),
		sessions: repository.NewSessionRepo(db),
	}
	return fn(a)
}
