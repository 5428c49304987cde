package database

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Models are the tables AutoMigrate keeps in sync.
var Models = []interface{}{
	&models.Payment{},
	&models.ProviderPayment{},
	&models.WebhookEvent{},
}

// SetupDatabase opens the configured database and migrates the schema. MySQL
// connections are retried while the server starts; failure panics.
func SetupDatabase() {
	driver := strings.ToLower(env.GetEnv("DB_DRIVER", DriverSQLite))

	var err error
	for i := 0; i < maxRetries; i++ {
		DB, err = Open(driver)
		if err == nil {
			if err = DB.AutoMigrate(Models...); err != nil {
				panic(fmt.Errorf("auto migrate: %w", err))
			}
			log.Printf("Database ready (driver=%s, name=%s)", driver, Name())
			return
		}

		if driver != DriverMySQL {
			break
		}
		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry number %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}

// Open connects with the given driver without migrating.
func Open(driver string) (*gorm.DB, error) {
	switch driver {
	case DriverMySQL:
		return gorm.Open(mysql.New(mysql.Config{
			DSN:                       MySQLDSN(),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{})
	case DriverSQLite:
		return gorm.Open(sqlite.Open(env.GetEnv("DB_PATH", "poc.db")), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}

// MySQLDSN builds the go-sql-driver DSN from DB_* settings.
func MySQLDSN() string {
	// "user:pass@tcp(127.0.0.1:3306)/dbname?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true"
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

// Name is the database name reported by the health endpoint.
func Name() string {
	if strings.ToLower(env.GetEnv("DB_DRIVER", DriverSQLite)) == DriverMySQL {
		return env.GetEnv("DB_NAME", "")
	}
	return env.GetEnv("DB_PATH", "poc.db")
}
