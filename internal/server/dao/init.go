package dao

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"taf/internal/common"
	"taf/internal/server/model"
)

const dbWaitDelay = 2 * time.Second

// Open connects to the configured database, retrying while it comes up
// (compose starts the app next to the database), and migrates the schema.
func Open(ctx context.Context, cfg common.Config, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := newDialector(cfg)
	if err != nil {
		return nil, err
	}

	gormConf := &gorm.Config{
		Logger: gormlogger.New(gormWriter{logger.Sugar()}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	tries := cfg.DBWaitTries
	if tries < 1 {
		tries = 1
	}
	var db *gorm.DB
	for i := 0; i < tries; i++ {
		db, err = gorm.Open(dialector, gormConf)
		if err == nil {
			break
		}
		logger.Warn("database unavailable, retrying", zap.String("driver", cfg.DBDriver), zap.Int("attempt", i+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dbWaitDelay):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("database unavailable after %d attempts: %w", tries, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Run{}, &model.Schedule{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func newDialector(cfg common.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "mysql":
		port := cfg.DBPort
		if port == 0 {
			port = 3306
		}
		mc := gomysql.NewConfig()
		mc.User = cfg.DBUser
		mc.Passwd = cfg.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.DBHost, strconv.Itoa(port))
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.Loc = time.Local
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mysql.Open(mc.FormatDSN()), nil
	case "postgres":
		port := cfg.DBPort
		if port == 0 {
			port = 5432
		}
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, port, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.DBPath), nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

type gormWriter struct {
	*zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.Warnf(format, args...)
}
