package db

import (
	"fmt"

	"biz_manager/internal/model"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models 需要自动建表的全部模型。
var Models = []any{
	&model.Product{},
	&model.Customer{},
	&model.Order{},
	&model.StockEntry{},
	&model.Notification{},
}

// Open 按驱动名连接数据库，挂上 otelgorm 插件并自动建表。
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	case "mysql":
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := gdb.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("db tracing plugin: %w", err)
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	return nil
}
