package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"wallet-provider/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		command string
		source  string
		steps   int
	)
	flag.StringVar(&command, "cmd", "up", "Command to run: up, down, version")
	flag.StringVar(&source, "path", "file://migrations", "Migration source (pending_transactions, outbox_messages)")
	flag.IntVar(&steps, "steps", 0, "Apply only N migrations (down: roll back N), 0 = all")
	flag.Parse()

	// 1. 加载配置
	config.Init()
	db := config.Global.DB
	if db.Driver == "memory" {
		log.Fatalf("db.driver=memory uses gorm AutoMigrate at startup, nothing to migrate")
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		db.User, db.Password, db.Host, db.Port, db.Name)

	// 2. 初始化 migrate
	m, err := migrate.New(source, dsn)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	// 3. 执行
	switch command {
	case "up":
		err = run(m.Up, func() error { return m.Steps(steps) }, steps)
	case "down":
		err = run(m.Down, func() error { return m.Steps(-steps) }, steps)
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			log.Println("No migration applied yet")
			return
		}
		if verr != nil {
			log.Fatalf("Read version failed: %v", verr)
		}
		log.Printf("Schema version %d (dirty=%v)", version, dirty)
		return
	default:
		log.Fatalf("Unknown command: %s", command)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration %s failed: %v", command, err)
	}
	log.Printf("Migration %s done", command)
}

// run steps 为 0 时执行全部
func run(all, partial func() error, steps int) error {
	if steps > 0 {
		return partial()
	}
	return all()
}
