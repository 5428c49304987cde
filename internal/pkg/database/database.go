package database

import "gorm.io/gorm"

// DB is the process-wide connection set by SetupDatabase.
var DB *gorm.DB

func GetDB() *gorm.DB {
	return DB
}

// SetDB replaces the shared connection, e.g. with an in-memory test database.
func SetDB(db *gorm.DB) {
	DB = db
}
