package database

import (
	"fmt"
	"time"

	"wallet-provider/pkg/config"
	"wallet-provider/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DSN 根据配置拼接 PostgreSQL 连接串
func DSN(c config.DBConfig) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.Host, c.User, c.Password, c.Name, c.Port)
}

// ConnectPostgres 连接到 PostgreSQL 数据库
func ConnectPostgres(dsn string, env string) (*gorm.DB, error) {
	level := gormlogger.Info // 开发环境打印 SQL 语句方便调试
	if env == "production" {
		level = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("无法连接到数据库: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 连接池配置
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("PostgreSQL 连接成功")
	return db, nil
}
