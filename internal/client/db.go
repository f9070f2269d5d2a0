package client

import (
	"log"
	"pharmacy-payments/internal/model"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func InitDatabase(databaseURL string) *gorm.DB {
	var dialector gorm.Dialector
	if strings.HasPrefix(databaseURL, "file:") || strings.HasSuffix(databaseURL, ".db") {
		dialector = sqlite.Open(databaseURL)
	} else {
		dialector = mysql.Open(databaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal(err)
	}

	// Connection pool (important for webhooks)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Medication{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.InventoryRecord{},
		&model.InventoryDebit{},
		&model.GatewayEventRecord{},
	); err != nil {
		log.Fatal(err)
	}

	return db
}
